package commentary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/zeromicro/go-zero/core/logx"

	"market-digest-bot/internal/digest"
)

const defaultMaxChars = 160

type Config struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxChars   int    `yaml:"max_chars"`
}

type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Agent writes a short market remark for a composed digest. A disabled agent
// returns an empty remark and no error.
type Agent struct {
	enabled        bool
	model          generator
	modelName      string
	maxChars       int
	disabledReason string

	logMu   sync.Mutex
	lastLog time.Time
}

func New(cfg Config) *Agent {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if !cfg.Enabled {
		return &Agent{disabledReason: "disabled by config", maxChars: maxChars}
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		logx.Infof("commentary disabled: missing api key or model")
		return &Agent{disabledReason: "api_key or model missing", maxChars: maxChars}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	m, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		logx.Errorf("commentary init error: %v", err)
		return &Agent{disabledReason: "init failed", maxChars: maxChars}
	}
	return &Agent{enabled: true, model: m, modelName: cfg.Model, maxChars: maxChars}
}

func (a *Agent) Enabled() bool { return a != nil && a.enabled && a.model != nil }

// Status reports whether remarks come from the model, for the health endpoint.
func (a *Agent) Status() map[string]any {
	if !a.Enabled() {
		reason := "not configured"
		if a != nil && a.disabledReason != "" {
			reason = a.disabledReason
		}
		return map[string]any{"mode": "off", "reason": reason}
	}
	return map[string]any{"mode": "llm", "model": a.modelName}
}

const systemPrompt = `You write one short sentence in Persian commenting on an Iranian market price digest.
Rules:
- Use only the numbers and directions given. Do not invent prices.
- No buy or sell advice, no predictions.
- Output a single line of plain text. No markdown, no emoji, no quotes.`

func (a *Agent) Comment(ctx context.Context, d digest.Digest) (string, error) {
	if !a.Enabled() || d.NoData || len(d.Lines) == 0 {
		return "", nil
	}
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(buildPrompt(d)),
	}
	resp, err := a.model.Generate(ctx, messages)
	if err != nil {
		a.logErrorOnce(err)
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("empty model response")
	}
	return sanitize(resp.Content, a.maxChars), nil
}

func buildPrompt(d digest.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digest=%s overall=%s up=%d down=%d unchanged=%d\n",
		d.Kind, d.Overall, d.Tally.Up, d.Tally.Down, d.Tally.Unchanged)
	for _, l := range d.Lines {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", l.Label, l.Display, l.Trend)
	}
	return b.String()
}

// sanitize folds the model output into a single line of at most maxChars runes.
func sanitize(text string, maxChars int) string {
	fields := strings.FieldsFunc(text, unicode.IsSpace)
	out := strings.Join(fields, " ")
	out = strings.Trim(out, "\"'`*_ ")
	runes := []rune(out)
	if maxChars > 0 && len(runes) > maxChars {
		out = strings.TrimSpace(string(runes[:maxChars])) + "…"
	}
	return out
}

func (a *Agent) logErrorOnce(err error) {
	a.logMu.Lock()
	if time.Since(a.lastLog) < 5*time.Second {
		a.logMu.Unlock()
		return
	}
	a.lastLog = time.Now()
	a.logMu.Unlock()

	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		logx.Errorf("commentary api error: status=%d message=%s", apiErr.HTTPStatusCode, msg)
		return
	}
	logx.Errorf("commentary error: %v", err)
}
