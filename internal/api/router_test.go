package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest-bot/internal/delivery"
	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/feed"
	"market-digest-bot/internal/history"
	"market-digest-bot/internal/jobs"
	"market-digest-bot/internal/store"
)

type stubRunner struct {
	sum  jobs.Summary
	err  error
	runs []string
}

func (s *stubRunner) RunNow(_ context.Context, name string) (jobs.Summary, error) {
	s.runs = append(s.runs, name)
	return s.sum, s.err
}

func (s *stubRunner) Jobs() []jobs.Job { return jobs.DefaultJobs(jobs.DefaultIntervals()) }

func (s *stubRunner) Last() map[string]jobs.Summary { return map[string]jobs.Summary{} }

type stubDelivery struct {
	res  delivery.Result
	msgs []delivery.Message
}

func (s *stubDelivery) Deliver(_ context.Context, msg delivery.Message) delivery.Result {
	s.msgs = append(s.msgs, msg)
	return s.res
}

type stubFeed struct {
	body any
	err  error
}

func (s stubFeed) Fetch(_ context.Context, ep feed.Endpoint) (feed.Payload, error) {
	if s.err != nil {
		return feed.Payload{}, s.err
	}
	return feed.Payload{Endpoint: ep.Name, Source: "test", Body: s.body, FetchedAt: time.Unix(100, 0)}, nil
}

type failingSource struct{}

func (failingSource) Fetch(context.Context, feed.Endpoint) (feed.Payload, error) {
	return feed.Payload{}, feed.ErrEmptyBody
}

func newServer(t *testing.T, d Deps) *server.Hertz {
	t.Helper()
	h := server.Default()
	RegisterRoutes(h, d)
	return h
}

func decode(t *testing.T, w *ut.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &out))
	return out
}

func jsonBody(s string) *ut.Body {
	return &ut.Body{Body: bytes.NewBufferString(s), Len: len(s)}
}

var jsonHeader = ut.Header{Key: "Content-Type", Value: "application/json"}

func TestHealthz(t *testing.T) {
	hist := history.Open(context.Background(), nil)
	h := newServer(t, Deps{History: hist})
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "memory", out["history"].(map[string]any)["backend"])
	assert.NotContains(t, out, "feed_failures")
}

func TestHealthzFeedFailures(t *testing.T) {
	svc := feed.NewService(failingSource{}, 0, false)
	for i := 0; i < 2; i++ {
		_, err := svc.Fetch(context.Background(), feed.GoldCurrency())
		require.Error(t, err)
	}

	h := newServer(t, Deps{Feed: svc})
	w := ut.PerformRequest(h.Engine, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, map[string]any{"gold_currency": float64(2)}, out["feed_failures"])
}

func TestPricesGroupsHistory(t *testing.T) {
	hist := history.Open(context.Background(), nil)
	require.NoError(t, hist.Set(context.Background(), "dollar", 58000))
	require.NoError(t, hist.Set(context.Background(), "crypto_bitcoin", 64000))
	h := newServer(t, Deps{History: hist, Catalog: digest.DefaultCatalog(0)})

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/prices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, float64(2), out["count"])
	groups := out["groups"].([]any)
	require.Len(t, groups, 2)
	assert.Equal(t, "gold_dollar", groups[0].(map[string]any)["kind"])
	assert.Equal(t, "crypto", groups[1].(map[string]any)["kind"])
}

func TestExtractEndpoint(t *testing.T) {
	h := newServer(t, Deps{})
	body := `{"gold":[{"symbol":"USD","price":"58000","unit":"toman"},{"symbol":"X","price":""}]}`
	w := ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/extract", jsonBody(body), jsonHeader)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "category_block", out["shape"])
	records := out["records"].(map[string]any)
	assert.Equal(t, float64(58000), records["dollar"])
	assert.Equal(t, "toman", records["dollar_unit"])
	skipped := out["skipped"].([]any)
	require.Len(t, skipped, 1)
	assert.Equal(t, "missing_price", skipped[0].(map[string]any)["reason"])

	w = ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/extract", jsonBody(" "), jsonHeader)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedEndpoint(t *testing.T) {
	var body any
	require.NoError(t, json.Unmarshal([]byte(`[{"index":"2100000","name":"شاخص کل"}]`), &body))
	h := newServer(t, Deps{Feed: stubFeed{body: body}})

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/feed/index_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "entry_list", out["shape"])
	assert.Equal(t, float64(2100000), out["records"].(map[string]any)["bourse_total"])

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/feed/weather", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h = newServer(t, Deps{Feed: stubFeed{err: feed.ErrEmptyBody}})
	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/feed/gold_currency", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRunJob(t *testing.T) {
	r := &stubRunner{sum: jobs.Summary{RunID: "r1", Job: "gold_dollar", Status: "ok"}}
	h := newServer(t, Deps{Runner: r})

	w := ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/jobs/gold_dollar/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"gold_dollar"}, r.runs)
	assert.Equal(t, "r1", decode(t, w)["summary"].(map[string]any)["run_id"])

	r.err = jobs.ErrBusy
	w = ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/jobs/gold_dollar/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	r.err = fmt.Errorf("%w: nope", jobs.ErrUnknownJob)
	w = ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/jobs/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["jobs"].([]any), 3)
}

func TestTestPush(t *testing.T) {
	d := &stubDelivery{res: delivery.Result{Status: delivery.StatusSent}}
	h := newServer(t, Deps{Delivery: d})

	w := ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/test/push", jsonBody(`{"text":"سلام"}`), jsonHeader)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, d.msgs, 1)
	assert.Equal(t, "سلام", d.msgs[0].Text)
	assert.True(t, d.msgs[0].NoSticker)

	w = ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/test/push", jsonBody(`{"text":""}`), jsonHeader)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	d.res = delivery.Result{Status: delivery.StatusFailed, ErrorCode: 403, Error: errors.New("forbidden")}
	w = ut.PerformRequest(h.Engine, http.MethodPost, "/api/v1/test/push", jsonBody(`{"text":"x"}`), jsonHeader)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, float64(403), decode(t, w)["error_code"])
}

func TestRecordsAndDeliveries(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.InsertRecordSnapshots([]store.RecordSnapshot{{TS: 10, Key: "dollar", Value: 58000}}))
	day := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertDelivery(store.DeliveryRecord{TS: day.Unix(), Digest: "gold_dollar", Status: "sent"}))

	h := newServer(t, Deps{Store: st, Location: time.UTC})

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/records?key=dollar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["records"].([]any), 1)

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/records", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/records?key=dollar&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/deliveries?date=2025-03-01&status=sent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["deliveries"].([]any), 1)

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/deliveries?date=march", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseLimitOffset(t *testing.T) {
	v, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, 200, v)
	v, err = parseLimit("5000")
	require.NoError(t, err)
	assert.Equal(t, 1000, v)
	_, err = parseLimit("0")
	assert.Error(t, err)
	_, err = parseOffset("-2")
	assert.Error(t, err)
}
