package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Client calls the Telegram Bot API.
type Client struct {
	apiBase    string
	token      string
	parseMode  string
	httpClient *http.Client
}

// Response is the Bot API envelope.
type Response struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func NewClient(apiBase, token, parseMode string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBase:   strings.TrimRight(apiBase, "/"),
		token:     token,
		parseMode: parseMode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string) (*Response, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if c.parseMode != "" {
		payload["parse_mode"] = c.parseMode
	}
	return c.call(ctx, "sendMessage", payload)
}

func (c *Client) SendSticker(ctx context.Context, chatID, fileID string) (*Response, error) {
	return c.call(ctx, "sendSticker", map[string]any{
		"chat_id": chatID,
		"sticker": fileID,
	})
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (*Response, error) {
	if c.token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the token; keep it out of errors and logs
		return nil, fmt.Errorf("http request %s: %s", method, redact(err.Error(), c.token))
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w (status %d)", err, resp.StatusCode)
	}
	return &out, nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
