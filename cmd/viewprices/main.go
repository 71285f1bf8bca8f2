package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"market-digest-bot/internal/config"
	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/history"
	"market-digest-bot/internal/store"
)

var (
	configFile = flag.String("f", "configs/app.yaml", "the config file")
	limit      = flag.Int("n", 10, "max items per group, 0 for all")
)

func main() {
	flag.Parse()
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ config: %v\n", err)
		os.Exit(1)
	}
	values, err := loadValues(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ خطا در خواندن قیمت‌ها: %v\n", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()
	if loc == nil {
		loc = time.Local
	}
	render(os.Stdout, digest.DefaultCatalog(0).Group(values), len(values), *limit, time.Now().In(loc))
}

func loadValues(ctx context.Context, cfg *config.Config) (map[string]float64, error) {
	switch cfg.History.Backend {
	case "sqlite":
		loc, _ := cfg.Location()
		st, err := store.Open(cfg.Store.Sqlite.Path, loc)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.History().Load(ctx)
	case "redis":
		b := history.NewRedisBackend(history.RedisOptions{
			Addr:     cfg.History.Redis.Addr,
			Password: cfg.History.Redis.Password,
			DB:       cfg.History.Redis.DB,
			Hash:     cfg.History.Redis.Hash,
		})
		defer b.Close()
		return b.Load(ctx)
	case "postgres":
		b, err := history.ConnectPostgres(ctx, history.PostgresOptions{
			DSN:      cfg.History.Postgres.DSN,
			Password: cfg.History.Postgres.Password,
		})
		if err != nil {
			return nil, err
		}
		defer b.Close()
		return b.Load(ctx)
	default:
		return history.NewFileBackend(cfg.History.File.Path).Load(ctx)
	}
}

func render(w io.Writer, groups []digest.Group, total, limit int, now time.Time) {
	p := message.NewPrinter(language.English)
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "💰 قیمت‌های ذخیره شده در ربات")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "📅 آخرین به‌روزرسانی: %s\n\n", now.Format("2006/01/02 15:04:05"))

	for _, g := range groups {
		title := g.Title
		if title == "" {
			title = "🔹 سایر"
		}
		fmt.Fprintln(w, title+":")
		fmt.Fprintln(w, strings.Repeat("-", 30))
		for i, item := range g.Items {
			if limit > 0 && i >= limit {
				fmt.Fprintf(w, "… %d مورد دیگر\n", len(g.Items)-limit)
				break
			}
			fmt.Fprintln(w, p.Sprintf("• %s: %.2f", item.Label, item.Value))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "📊 تعداد کل قیمت‌ها: %d\n", total)
	fmt.Fprintln(w, rule)
}
