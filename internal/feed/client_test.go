package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchDecodesWithNumbers(t *testing.T) {
	var gotQuery, gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		assert.Equal(t, "/Tsetmc/Index.php", r.URL.Path)
		_, _ = w.Write([]byte(` [{"name":"شاخص کل","index":2150000.5}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	p, err := c.Fetch(context.Background(), Index(IndexEquity))
	require.NoError(t, err)
	assert.Equal(t, "index_1", p.Endpoint)
	assert.Contains(t, gotQuery, "key=secret")
	assert.Contains(t, gotQuery, "type=1")
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Equal(t, "application/json", gotAccept)

	list, ok := p.Body.([]any)
	require.True(t, ok)
	entry := list[0].(map[string]any)
	assert.Equal(t, json.Number("2150000.5"), entry["index"])
}

func TestClientFetchRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"empty", http.StatusOK, "   ", ErrEmptyBody},
		{"html", http.StatusOK, "<html>limit</html>", ErrNonJSON},
		{"truncated", http.StatusOK, `{"gold":[`, ErrNonJSON},
		{"status", http.StatusForbidden, `{"error":"bad key"}`, ErrStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", time.Second).Fetch(context.Background(), GoldCurrency())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClientRetriesOnTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"gold":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 100*time.Millisecond)
	_, err := c.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMultiSourceFallsBack(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"currency":[]}`))
	}))
	defer good.Close()

	m := NewMultiSource(NewClient(bad.URL, "k", time.Second), NewClient(good.URL, "k", time.Second))
	p, err := m.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	assert.Equal(t, good.URL, p.Source)

	_, err = NewMultiSource().Fetch(context.Background(), GoldCurrency())
	assert.Error(t, err)
}

func TestEndpointByName(t *testing.T) {
	for _, ep := range []Endpoint{GoldCurrency(), Index(IndexEquity), Index(IndexOTC), Index(IndexSelected), AllSymbols()} {
		got, ok := EndpointByName(ep.Name)
		require.True(t, ok, ep.Name)
		assert.Equal(t, ep, got)
	}
	_, ok := EndpointByName("weather")
	assert.False(t, ok)
}
