package normalize

import (
	"strings"

	"market-digest-bot/internal/numeric"
)

// Shape is the top-level structure of a feed response.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeCategoryBlock
	ShapeEntryList
)

func (s Shape) String() string {
	switch s {
	case ShapeCategoryBlock:
		return "category_block"
	case ShapeEntryList:
		return "entry_list"
	default:
		return "unknown"
	}
}

// Classify detects the shape of a decoded response. Objects are checked
// before arrays; anything else, including empty values, is ShapeUnknown.
func Classify(raw any) Shape {
	switch v := raw.(type) {
	case map[string]any:
		for _, bf := range blockFields {
			if _, ok := v[bf.Field]; ok {
				return ShapeCategoryBlock
			}
		}
		return ShapeUnknown
	case []any:
		if len(v) == 0 {
			return ShapeUnknown
		}
		return ShapeEntryList
	case []map[string]any:
		if len(v) == 0 {
			return ShapeUnknown
		}
		return ShapeEntryList
	default:
		return ShapeUnknown
	}
}

// AssetEntry is an item of a category block list.
type AssetEntry struct {
	Category      Category
	Code          string
	Name          string
	Price         float64
	Change        float64
	ChangePercent float64
	Unit          string
}

func (e AssetEntry) record(keys *KeyTable) Record {
	return Record{
		Key:           keys.AssetKey(e.Category, e.Code),
		Category:      e.Category,
		Value:         e.Price,
		Change:        e.Change,
		ChangePercent: e.ChangePercent,
		Unit:          e.Unit,
		DisplayName:   e.Name,
		Code:          e.Code,
	}
}

// IndexEntry is one market index snapshot.
type IndexEntry struct {
	Name          string
	Value         float64
	Change        float64
	ChangePercent float64
	State         any
	Date          any
	Time          any
}

func (e IndexEntry) record(keys *KeyTable) Record {
	return Record{
		Key:           keys.IndexKey(e.Name),
		Category:      CategoryIndex,
		Value:         e.Value,
		Change:        e.Change,
		ChangePercent: e.ChangePercent,
		DisplayName:   e.Name,
		Extra: []Field{
			{"_state", e.State},
			{"_date", e.Date},
			{"_time", e.Time},
		},
	}
}

// SymbolEntry is one tradable instrument snapshot.
type SymbolEntry struct {
	Code         string
	Name         string
	Last         float64
	LastChange   float64
	LastPercent  float64
	Close        float64
	CloseChange  float64
	ClosePercent float64
	TradeCount   float64
	Volume       float64
	TradedValue  float64
	MarketValue  float64
	Time         any
}

func (e SymbolEntry) record(keys *KeyTable) Record {
	return Record{
		Key:           keys.SymbolKey(e.Code),
		Category:      CategorySymbol,
		Value:         e.Last,
		Change:        e.LastChange,
		ChangePercent: e.LastPercent,
		DisplayName:   e.Name,
		Code:          e.Code,
		Extra: []Field{
			{"_close", e.Close},
			{"_close_change", e.CloseChange},
			{"_close_percent", e.ClosePercent},
			{"_name", e.Name},
			{"_volume", e.Volume},
			{"_value", e.TradedValue},
			{"_market_value", e.MarketValue},
			{"_trade_count", e.TradeCount},
			{"_time", e.Time},
		},
	}
}

// badField carries the wire field that failed coercion.
type badField string

func parseAsset(cat Category, m map[string]any) (AssetEntry, Reason, string) {
	code := numeric.Text(m["symbol"])
	if missingIdentifier(m["symbol"]) {
		return AssetEntry{}, ReasonMissingIdentifier, "symbol"
	}
	if numeric.IsBlank(m["price"]) {
		return AssetEntry{}, ReasonMissingPrice, "price"
	}
	e := AssetEntry{Category: cat, Code: code, Name: numeric.Text(m["name"]), Unit: numeric.Text(m["unit"])}
	var bad badField
	e.Price = coerce(m, "price", numeric.ToFloat, &bad)
	e.Change = coerce(m, "change_value", numeric.OrZero, &bad)
	e.ChangePercent = coerce(m, "change_percent", numeric.OrZero, &bad)
	if bad != "" {
		return AssetEntry{}, ReasonBadNumber, string(bad)
	}
	return e, "", ""
}

// parseIndex returns ok=false when the entry is not an index snapshot.
func parseIndex(m map[string]any) (e IndexEntry, ok bool, bad string) {
	name := numeric.Text(m["name"])
	if numeric.IsBlank(m["index"]) || name == "" {
		return IndexEntry{}, false, ""
	}
	e = IndexEntry{Name: name, State: text(m["state"]), Date: text(m["date"]), Time: text(m["time"])}
	var b badField
	e.Value = coerce(m, "index", numeric.ToFloat, &b)
	e.Change = coerce(m, "index_change", blankAsZero, &b)
	e.ChangePercent = coerce(m, "index_change_percent", blankAsZero, &b)
	if b != "" {
		return IndexEntry{}, true, string(b)
	}
	return e, true, ""
}

// parseSymbol returns ok=false when the entry is not a symbol snapshot.
func parseSymbol(m map[string]any) (e SymbolEntry, ok bool, bad string) {
	code := numeric.Text(m["l18"])
	if missingIdentifier(m["l18"]) || numeric.IsBlank(m["pl"]) {
		return SymbolEntry{}, false, ""
	}
	e = SymbolEntry{Code: code, Name: numeric.Text(m["l30"]), Time: text(m["time"])}
	var b badField
	e.Last = coerce(m, "pl", numeric.ToFloat, &b)
	e.LastChange = coerce(m, "plc", numeric.OrZero, &b)
	e.LastPercent = coerce(m, "plp", numeric.OrZero, &b)
	e.Close = coerce(m, "pc", numeric.OrZero, &b)
	e.CloseChange = coerce(m, "pcc", numeric.OrZero, &b)
	e.ClosePercent = coerce(m, "pcp", numeric.OrZero, &b)
	e.TradeCount = coerce(m, "tno", numeric.OrZero, &b)
	e.Volume = coerce(m, "tvol", numeric.OrZero, &b)
	e.TradedValue = coerce(m, "tval", numeric.OrZero, &b)
	e.MarketValue = coerce(m, "mv", numeric.OrZero, &b)
	if b != "" {
		return SymbolEntry{}, true, string(b)
	}
	return e, true, ""
}

// missingIdentifier reports an absent or falsy code. Unlike prices, the
// string "0" is a valid code; a numeric 0 or false is not.
func missingIdentifier(v any) bool {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return numeric.IsBlank(v) || numeric.Text(v) == ""
}

// coerce records the first failing field in bad and returns 0 on failure.
func coerce(m map[string]any, field string, fn func(any) (float64, error), bad *badField) float64 {
	f, err := fn(m[field])
	if err != nil {
		if *bad == "" {
			*bad = badField(field)
		}
		return 0
	}
	return f
}

// blankAsZero reads absent, empty and zero values as 0. Index change fields
// are published empty while the market is closed.
func blankAsZero(v any) (float64, error) {
	if numeric.IsBlank(v) {
		return 0, nil
	}
	return numeric.ToFloat(v)
}

// text keeps strings as strings and renders numbers; absent stays "".
func text(v any) any {
	if v == nil {
		return ""
	}
	if s := numeric.Text(v); s != "" {
		return s
	}
	return v
}
