package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/zeromicro/go-zero/core/logx"

	"market-digest-bot/internal/delivery"
	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/feed"
	"market-digest-bot/internal/history"
	"market-digest-bot/internal/jobs"
	"market-digest-bot/internal/normalize"
	"market-digest-bot/internal/store"
)

type JobRunner interface {
	RunNow(ctx context.Context, name string) (jobs.Summary, error)
	Jobs() []jobs.Job
	Last() map[string]jobs.Summary
}

type Deliverer interface {
	Deliver(ctx context.Context, msg delivery.Message) delivery.Result
}

type Fetcher interface {
	Fetch(ctx context.Context, ep feed.Endpoint) (feed.Payload, error)
}

// FeedHealth is implemented by fetchers that track consecutive failures.
type FeedHealth interface {
	FailureCounts() map[string]int
}

type StatusReporter interface {
	Status() map[string]any
}

// Deps are the services exposed over HTTP. Nil members disable their routes'
// behavior with a 500 response.
type Deps struct {
	Store      *store.Store
	History    *history.Store
	Extractor  *normalize.Extractor
	Catalog    digest.Catalog
	Runner     JobRunner
	Delivery   Deliverer
	Feed       Fetcher
	Commentary StatusReporter
	Location   *time.Location
}

type TestPushRequest struct {
	Text string `json:"text"`
}

func RegisterRoutes(h *server.Hertz, d Deps) {
	if d.Extractor == nil {
		d.Extractor = normalize.NewExtractor(nil)
	}
	if d.Catalog == nil {
		d.Catalog = digest.DefaultCatalog(0)
	}
	if d.Location == nil {
		d.Location = time.Local
	}

	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		out := map[string]any{"ok": true}
		if d.History != nil {
			out["history"] = map[string]any{
				"backend": d.History.BackendName(),
				"keys":    d.History.Len(),
			}
		}
		if d.Commentary != nil {
			out["commentary"] = d.Commentary.Status()
		}
		if d.Runner != nil {
			out["jobs"] = d.Runner.Last()
		}
		if fh, ok := d.Feed.(FeedHealth); ok {
			out["feed_failures"] = fh.FailureCounts()
		}
		c.JSON(http.StatusOK, out)
	})

	h.GET("/api/v1/prices", func(_ context.Context, c *app.RequestContext) {
		if d.History == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "history not configured",
			})
			return
		}
		values := d.History.Snapshot()
		c.JSON(http.StatusOK, map[string]any{
			"ok":     true,
			"count":  len(values),
			"groups": d.Catalog.Group(values),
		})
	})

	h.GET("/api/v1/records", func(_ context.Context, c *app.RequestContext) {
		if d.Store == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "store not configured",
			})
			return
		}
		key := strings.TrimSpace(c.Query("key"))
		if key == "" {
			c.JSON(http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": "key is required",
			})
			return
		}
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		offset, err := parseOffset(c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		records, err := d.Store.QueryRecordSnapshots(key, limit, offset)
		if err != nil {
			logx.Errorf("api: query records key=%s err=%v", key, err)
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":      true,
			"key":     key,
			"records": records,
		})
	})

	h.GET("/api/v1/deliveries", func(_ context.Context, c *app.RequestContext) {
		if d.Store == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "store not configured",
			})
			return
		}
		date := c.Query("date")
		if date == "" {
			date = time.Now().In(d.Location).Format("2006-01-02")
		}
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		offset, err := parseOffset(c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		items, err := d.Store.QueryDeliveriesByDate(date, c.Query("status"), c.Query("digest"), limit, offset)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":         true,
			"date":       date,
			"deliveries": items,
		})
	})

	h.POST("/api/v1/extract", func(_ context.Context, c *app.RequestContext) {
		body := c.Request.Body()
		if len(strings.TrimSpace(string(body))) == 0 {
			c.JSON(http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": "empty body",
			})
			return
		}
		c.JSON(http.StatusOK, extractResponse(d.Extractor.ExtractJSON(body)))
	})

	h.GET("/api/v1/feed/:endpoint", func(ctx context.Context, c *app.RequestContext) {
		if d.Feed == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "feed not configured",
			})
			return
		}
		ep, ok := feed.EndpointByName(c.Param("endpoint"))
		if !ok {
			c.JSON(http.StatusNotFound, map[string]any{
				"ok":    false,
				"error": fmt.Sprintf("unknown endpoint %q", c.Param("endpoint")),
			})
			return
		}
		p, err := d.Feed.Fetch(ctx, ep)
		if err != nil {
			logx.WithContext(ctx).Errorf("api: fetch endpoint=%s err=%v", ep.Name, err)
			c.JSON(http.StatusBadGateway, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		out := extractResponse(d.Extractor.Extract(p.Body))
		out["source"] = p.Source
		out["stale"] = p.Stale
		out["fetched_at"] = p.FetchedAt.Unix()
		c.JSON(http.StatusOK, out)
	})

	h.GET("/api/v1/jobs", func(_ context.Context, c *app.RequestContext) {
		if d.Runner == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "runner not configured",
			})
			return
		}
		last := d.Runner.Last()
		list := make([]map[string]any, 0)
		for _, j := range d.Runner.Jobs() {
			item := map[string]any{
				"name":         j.Name,
				"label":        j.Label,
				"enabled":      j.Enabled,
				"interval_sec": int(j.Interval / time.Second),
			}
			if s, ok := last[j.Name]; ok {
				item["last"] = s
			}
			list = append(list, item)
		}
		out := map[string]any{"ok": true, "jobs": list}
		if d.Store != nil {
			runs, err := d.Store.RecentJobRuns(c.Query("job"), 50)
			if err != nil {
				logx.Errorf("api: recent job runs err=%v", err)
			}
			out["runs"] = runs
		}
		c.JSON(http.StatusOK, out)
	})

	h.POST("/api/v1/jobs/:name/run", func(_ context.Context, c *app.RequestContext) {
		if d.Runner == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "runner not configured",
			})
			return
		}
		sum, err := d.Runner.RunNow(context.Background(), c.Param("name"))
		switch {
		case errors.Is(err, jobs.ErrUnknownJob):
			c.JSON(http.StatusNotFound, map[string]any{"ok": false, "error": err.Error()})
			return
		case errors.Is(err, jobs.ErrBusy):
			c.JSON(http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":      sum.Status != "failed",
			"summary": sum,
		})
	})

	h.POST("/api/v1/test/push", func(_ context.Context, c *app.RequestContext) {
		if d.Delivery == nil {
			c.JSON(http.StatusInternalServerError, map[string]any{
				"ok":    false,
				"error": "delivery not configured",
			})
			return
		}
		var req TestPushRequest
		if err := c.BindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			c.JSON(http.StatusBadRequest, map[string]any{
				"ok":    false,
				"error": "invalid json body",
			})
			return
		}
		res := d.Delivery.Deliver(context.Background(), delivery.Message{
			Kind:      "test",
			Text:      req.Text,
			NoSticker: true,
		})
		out := map[string]any{
			"ok":     res.Status == delivery.StatusSent,
			"status": string(res.Status),
		}
		if res.ErrorCode != 0 {
			out["error_code"] = res.ErrorCode
			out["description"] = res.Description
		}
		status := http.StatusOK
		if res.Error != nil {
			out["error"] = res.Error.Error()
			status = http.StatusBadGateway
		}
		c.JSON(status, out)
	})
}

func extractResponse(res normalize.Result) map[string]any {
	skipped := res.Skipped
	if skipped == nil {
		skipped = []normalize.Skip{}
	}
	return map[string]any{
		"ok":      true,
		"shape":   res.Shape.String(),
		"count":   res.Len(),
		"records": res.Flat(),
		"skipped": skipped,
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 200, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if v > 1000 {
		return 1000, nil
	}
	return v, nil
}

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid offset")
	}
	return v, nil
}
