package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file", cfg.History.Backend)
	assert.Equal(t, 120, cfg.Jobs.GoldDollarSec)
	assert.Equal(t, 580000.0, cfg.Digest.USDToToman)
	assert.Equal(t, "HTML", cfg.Telegram.ParseMode)
	assert.Equal(t, 3*time.Second, cfg.MessageGap())
	assert.Equal(t, time.Second, cfg.StickerGap())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadYAMLOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
feed:
  base_urls: ["https://a.example/Api", "https://b.example/Api"]
history:
  backend: redis
  redis:
    addr: "redis:6379"
normalize:
  index_labels:
    - contains: "هم وزن"
      key: bourse_equal_weight
delivery:
  stickers:
    gold: g1
    bourse: b1
`))
	require.NoError(t, err)
	assert.Len(t, cfg.Feed.BaseURLs, 2)
	assert.Equal(t, "redis:6379", cfg.History.Redis.Addr)
	assert.Equal(t, "pricebot:price_history", cfg.History.Redis.Hash, "untouched defaults survive")
	require.Len(t, cfg.Normalize.IndexLabels, 1)
	assert.Equal(t, "bourse_equal_weight", cfg.Normalize.IndexLabels[0].Key)

	stickers := cfg.StickersByKind()
	assert.Equal(t, "g1", stickers["gold_dollar"])
	assert.Equal(t, "b1", stickers["symbols"])
	assert.Empty(t, stickers["crypto"])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("BRSAPI_KEY", "feed-key")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("TELEGRAM_CHAT_ID", "@chan")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("HISTORY_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "feed-key", cfg.Feed.APIKey)
	assert.Equal(t, "bot-token", cfg.Telegram.BotToken)
	assert.Equal(t, "@chan", cfg.Telegram.ChatID)
	assert.Equal(t, "sk-test", cfg.Commentary.APIKey)
	assert.Equal(t, "memory", cfg.History.Backend)
}

func TestInvalidPortEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.History.Backend = "etcd" },
		"postgres no dsn":   func(c *Config) { c.History.Backend = "postgres" },
		"negative interval": func(c *Config) { c.Jobs.CurrencySec = -1 },
		"no base urls":      func(c *Config) { c.Feed.BaseURLs = nil },
		"bad timezone":      func(c *Config) { c.Digest.Timezone = "Mars/Olympus" },
		"bad port":          func(c *Config) { c.Server.Port = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	require.NoError(t, cfg.Validate())
}
