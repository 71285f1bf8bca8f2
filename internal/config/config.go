package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"market-digest-bot/internal/normalize"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Feed       FeedConfig       `yaml:"feed"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	History    HistoryConfig    `yaml:"history"`
	Store      StoreConfig      `yaml:"store"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Digest     DigestConfig     `yaml:"digest"`
	Normalize  NormalizeConfig  `yaml:"normalize"`
	Commentary CommentaryConfig `yaml:"commentary"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Mode     string `yaml:"mode"`
	Encoding string `yaml:"encoding"`
	Path     string `yaml:"path"`
}

type FeedConfig struct {
	APIKey               string   `yaml:"api_key"`
	BaseURLs             []string `yaml:"base_urls"`
	TimeoutMs            int      `yaml:"timeout_ms"`
	MinRequestIntervalMs int      `yaml:"min_request_interval_ms"`
	ServeStale           bool     `yaml:"serve_stale"`
}

type TelegramConfig struct {
	APIBase   string `yaml:"api_base"`
	BotToken  string `yaml:"bot_token"`
	ChatID    string `yaml:"chat_id"`
	ParseMode string `yaml:"parse_mode"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type DeliveryConfig struct {
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	StickerGapMs    int             `yaml:"sticker_gap_ms"`
	MessageGapMs    int             `yaml:"message_gap_ms"`
	MaxRetryAfterMs int             `yaml:"max_retry_after_ms"`
	Stickers        StickerConfig   `yaml:"stickers"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

// StickerConfig holds Telegram sticker file ids. Empty ids send no sticker.
type StickerConfig struct {
	Gold   string `yaml:"gold"`
	Dollar string `yaml:"dollar"`
	Crypto string `yaml:"crypto"`
	Bourse string `yaml:"bourse"`
}

type HistoryConfig struct {
	// Backend is one of file, sqlite, redis, postgres or memory.
	Backend  string         `yaml:"backend"`
	File     FileConfig     `yaml:"file"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Hash     string `yaml:"hash"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	MinConns int    `yaml:"min_conns"`
	MaxConns int    `yaml:"max_conns"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type JobsConfig struct {
	GoldDollarSec   int  `yaml:"gold_dollar_sec"`
	CurrencySec     int  `yaml:"currency_sec"`
	CryptoBourseSec int  `yaml:"crypto_bourse_sec"`
	RunOnStart      bool `yaml:"run_on_start"`
	Announce        bool `yaml:"announce"`
}

type DigestConfig struct {
	Timezone   string  `yaml:"timezone"`
	Footer     string  `yaml:"footer"`
	MixedLabel bool    `yaml:"mixed_label"`
	USDToToman float64 `yaml:"usd_to_toman"`
	TopSymbols int     `yaml:"top_symbols"`
}

type NormalizeConfig struct {
	IndexLabels []normalize.IndexLabel `yaml:"index_labels"`
}

type CommentaryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxChars   int    `yaml:"max_chars"`
}

// Env holds secrets and deployment overrides read from the environment.
type Env struct {
	BrsAPIKey        string `envconfig:"BRSAPI_KEY"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	Port             int    `envconfig:"PORT"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
	PGPassword       string `envconfig:"PG_PASSWORD"`
	HistoryBackend   string `envconfig:"HISTORY_BACKEND"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Mode: "console", Encoding: "plain"},
		Feed: FeedConfig{
			BaseURLs:             []string{"https://BrsApi.ir/Api"},
			TimeoutMs:            30000,
			MinRequestIntervalMs: 1000,
		},
		Telegram: TelegramConfig{
			APIBase:   "https://api.telegram.org",
			ParseMode: "HTML",
			TimeoutMs: 30000,
		},
		Delivery: DeliveryConfig{
			RateLimit:       RateLimitConfig{PerMinute: 20, Burst: 5},
			StickerGapMs:    1000,
			MessageGapMs:    3000,
			MaxRetryAfterMs: 30000,
		},
		History: HistoryConfig{
			Backend: "file",
			File:    FileConfig{Path: "data/price_history.json"},
			Redis:   RedisConfig{Addr: "127.0.0.1:6379", Hash: "pricebot:price_history"},
			Postgres: PostgresConfig{
				MinConns: 1,
				MaxConns: 4,
			},
		},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/pricebot.db"},
		},
		Jobs: JobsConfig{
			GoldDollarSec:   120,
			CurrencySec:     600,
			CryptoBourseSec: 900,
			Announce:        true,
		},
		Digest: DigestConfig{
			Timezone:   "Asia/Tehran",
			Footer:     "📢 کانال ما: @Dollar_404_58",
			USDToToman: 580000,
			TopSymbols: 10,
		},
		Commentary: CommentaryConfig{
			Enabled:   false,
			Model:     "gpt-4.1-mini",
			TimeoutMs: 10000,
			MaxChars:  160,
		},
	}
}

// Load reads the YAML file over Default, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("process env: %w", err)
	}
	if env.Port != 0 {
		if env.Port < 0 || env.Port > 65535 {
			return fmt.Errorf("invalid PORT: %d", env.Port)
		}
		cfg.Server.Port = env.Port
	}
	if env.BrsAPIKey != "" {
		cfg.Feed.APIKey = env.BrsAPIKey
	}
	if env.TelegramBotToken != "" {
		cfg.Telegram.BotToken = env.TelegramBotToken
	}
	if env.TelegramChatID != "" {
		cfg.Telegram.ChatID = env.TelegramChatID
	}
	if env.OpenAIAPIKey != "" {
		cfg.Commentary.APIKey = env.OpenAIAPIKey
	}
	if env.RedisPassword != "" {
		cfg.History.Redis.Password = env.RedisPassword
	}
	if env.PGPassword != "" {
		cfg.History.Postgres.Password = env.PGPassword
	}
	if env.HistoryBackend != "" {
		cfg.History.Backend = env.HistoryBackend
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.History.Backend {
	case "file", "sqlite", "redis", "postgres", "memory":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.History.Backend == "postgres" && c.History.Postgres.DSN == "" {
		return fmt.Errorf("history.postgres.dsn is required for the postgres backend")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Jobs.GoldDollarSec < 0 || c.Jobs.CurrencySec < 0 || c.Jobs.CryptoBourseSec < 0 {
		return fmt.Errorf("job intervals must not be negative")
	}
	if len(c.Feed.BaseURLs) == 0 {
		return fmt.Errorf("feed.base_urls is empty")
	}
	if c.Digest.USDToToman < 0 {
		return fmt.Errorf("digest.usd_to_toman must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the digest timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Digest.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Digest.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Digest.Timezone, err)
	}
	return loc, nil
}

// StickersByKind maps digest kinds to sticker ids. Symbols share the bourse sticker.
func (c *Config) StickersByKind() map[string]string {
	s := c.Delivery.Stickers
	return map[string]string{
		"gold_dollar": s.Gold,
		"currency":    s.Dollar,
		"crypto":      s.Crypto,
		"bourse":      s.Bourse,
		"symbols":     s.Bourse,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c *Config) FeedTimeout() time.Duration {
	return ms(c.Feed.TimeoutMs)
}

func (c *Config) FeedMinInterval() time.Duration {
	return ms(c.Feed.MinRequestIntervalMs)
}

func (c *Config) TelegramTimeout() time.Duration {
	return ms(c.Telegram.TimeoutMs)
}

func (c *Config) StickerGap() time.Duration {
	return ms(c.Delivery.StickerGapMs)
}

func (c *Config) MessageGap() time.Duration {
	return ms(c.Delivery.MessageGapMs)
}

func (c *Config) MaxRetryAfter() time.Duration {
	return ms(c.Delivery.MaxRetryAfterMs)
}

func (c *Config) JobInterval(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
