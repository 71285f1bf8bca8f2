package feed

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// IndexType selects an index list on the Index endpoint.
type IndexType int

const (
	IndexEquity   IndexType = 1
	IndexOTC      IndexType = 2
	IndexSelected IndexType = 3
)

// Endpoint is one feed resource. Name doubles as the cache key.
type Endpoint struct {
	Name  string
	Path  string
	Query url.Values
}

func GoldCurrency() Endpoint {
	return Endpoint{Name: "gold_currency", Path: "/Market/Gold_Currency.php"}
}

func Index(t IndexType) Endpoint {
	return Endpoint{
		Name:  "index_" + strconv.Itoa(int(t)),
		Path:  "/Tsetmc/Index.php",
		Query: url.Values{"type": {strconv.Itoa(int(t))}},
	}
}

func AllSymbols() Endpoint {
	return Endpoint{
		Name:  "all_symbols",
		Path:  "/Tsetmc/AllSymbols.php",
		Query: url.Values{"type": {"1"}},
	}
}

// EndpointByName resolves names produced by the constructors above.
func EndpointByName(name string) (Endpoint, bool) {
	switch name {
	case "gold_currency":
		return GoldCurrency(), true
	case "index_1":
		return Index(IndexEquity), true
	case "index_2":
		return Index(IndexOTC), true
	case "index_3":
		return Index(IndexSelected), true
	case "all_symbols":
		return AllSymbols(), true
	}
	return Endpoint{}, false
}

// Payload is one decoded feed response.
type Payload struct {
	Endpoint  string    `json:"endpoint"`
	Source    string    `json:"source"`
	Body      any       `json:"-"`
	Raw       []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// Source fetches one endpoint.
type Source interface {
	Fetch(ctx context.Context, ep Endpoint) (Payload, error)
}
