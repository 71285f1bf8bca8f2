package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	_ "time/tzdata"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/zeromicro/go-zero/core/logx"

	"market-digest-bot/internal/api"
	"market-digest-bot/internal/commentary"
	"market-digest-bot/internal/config"
	"market-digest-bot/internal/delivery"
	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/feed"
	"market-digest-bot/internal/history"
	"market-digest-bot/internal/jobs"
	"market-digest-bot/internal/normalize"
	"market-digest-bot/internal/push/telegram"
	"market-digest-bot/internal/store"
	"market-digest-bot/internal/trend"
)

var configFile = flag.String("f", "configs/app.yaml", "the config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logx.MustSetup(logx.LogConf{
		ServiceName: "market-digest-bot",
		Mode:        cfg.Log.Mode,
		Encoding:    cfg.Log.Encoding,
		Path:        cfg.Log.Path,
		Level:       cfg.Log.Level,
	})
	defer logx.Close()

	loc, err := cfg.Location()
	if err != nil {
		logx.Must(err)
	}

	st, err := store.Open(cfg.Store.Sqlite.Path, loc)
	if err != nil {
		logx.Must(fmt.Errorf("store: %w", err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logx.Errorf("store close error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, closeBackend, err := openHistoryBackend(ctx, cfg, st)
	if err != nil {
		logx.Must(fmt.Errorf("history backend: %w", err))
	}
	defer closeBackend()
	hist := history.Open(ctx, backend)
	logx.Infof("history backend=%s keys=%d", hist.BackendName(), hist.Len())

	sources := make([]feed.Source, 0, len(cfg.Feed.BaseURLs))
	for _, base := range cfg.Feed.BaseURLs {
		sources = append(sources, feed.NewClient(base, cfg.Feed.APIKey, cfg.FeedTimeout()))
	}
	feedSvc := feed.NewService(feed.NewMultiSource(sources...), cfg.FeedMinInterval(), cfg.Feed.ServeStale)

	tg := telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.ParseMode, cfg.TelegramTimeout())
	deliverySvc := delivery.NewService(tg, st, delivery.Config{
		ChatID:     cfg.Telegram.ChatID,
		EscapeHTML: strings.EqualFold(cfg.Telegram.ParseMode, "HTML"),
		RateLimit: delivery.RateLimitConfig{
			PerMinute: cfg.Delivery.RateLimit.PerMinute,
			Burst:     cfg.Delivery.RateLimit.Burst,
		},
		StickerGap:    cfg.StickerGap(),
		MessageGap:    cfg.MessageGap(),
		MaxRetryAfter: cfg.MaxRetryAfter(),
		Stickers:      cfg.StickersByKind(),
	})

	extractor := normalize.NewExtractor(normalize.NewKeyTable(cfg.Normalize.IndexLabels))
	catalog := digest.DefaultCatalog(cfg.Digest.USDToToman)
	agent := commentary.New(commentary.Config{
		Enabled:    cfg.Commentary.Enabled,
		Model:      cfg.Commentary.Model,
		APIKey:     cfg.Commentary.APIKey,
		BaseURL:    cfg.Commentary.BaseURL,
		ByAzure:    cfg.Commentary.ByAzure,
		APIVersion: cfg.Commentary.APIVersion,
		TimeoutMs:  cfg.Commentary.TimeoutMs,
		MaxChars:   cfg.Commentary.MaxChars,
	})
	composer := digest.New(trend.NewDetector(hist), catalog, digest.Options{
		Location:   loc,
		Footer:     cfg.Digest.Footer,
		MixedLabel: cfg.Digest.MixedLabel,
		TopSymbols: cfg.Digest.TopSymbols,
	})
	if agent.Enabled() {
		composer.WithCommentary(agent)
	}

	runner := jobs.NewRunner(feedSvc, extractor, composer, deliverySvc, st, jobs.DefaultJobs(jobs.Intervals{
		GoldDollar:   cfg.JobInterval(cfg.Jobs.GoldDollarSec),
		Currency:     cfg.JobInterval(cfg.Jobs.CurrencySec),
		CryptoBourse: cfg.JobInterval(cfg.Jobs.CryptoBourseSec),
	}), jobs.Options{
		Location:   loc,
		Footer:     cfg.Digest.Footer,
		RunOnStart: cfg.Jobs.RunOnStart,
		Announce:   cfg.Jobs.Announce,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	api.RegisterRoutes(h, api.Deps{
		Store:      st,
		History:    hist,
		Extractor:  extractor,
		Catalog:    catalog,
		Runner:     runner,
		Delivery:   deliverySvc,
		Feed:       feedSvc,
		Commentary: agent,
		Location:   loc,
	})
	h.OnShutdown = append(h.OnShutdown, func(context.Context) {
		cancel()
		runner.Wait()
		logx.Info("job runner stopped")
	})

	runner.Start(ctx)

	logx.Infof("server starting on %s (log.level=%s)", addr, cfg.Log.Level)
	h.Spin()
}

func openHistoryBackend(ctx context.Context, cfg *config.Config, st *store.Store) (history.Backend, func(), error) {
	noop := func() {}
	switch cfg.History.Backend {
	case "memory":
		return nil, noop, nil
	case "file":
		return history.NewFileBackend(cfg.History.File.Path), noop, nil
	case "sqlite":
		return st.History(), noop, nil
	case "redis":
		b := history.NewRedisBackend(history.RedisOptions{
			Addr:     cfg.History.Redis.Addr,
			Password: cfg.History.Redis.Password,
			DB:       cfg.History.Redis.DB,
			Hash:     cfg.History.Redis.Hash,
		})
		if err := b.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, noop, err
		}
		return b, func() { _ = b.Close() }, nil
	case "postgres":
		b, err := history.ConnectPostgres(ctx, history.PostgresOptions{
			DSN:      cfg.History.Postgres.DSN,
			Password: cfg.History.Postgres.Password,
			MinConns: cfg.History.Postgres.MinConns,
			MaxConns: cfg.History.Postgres.MaxConns,
		})
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
}
