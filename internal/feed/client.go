package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrStatus    = errors.New("feed: unexpected status")
	ErrEmptyBody = errors.New("feed: empty body")
	ErrNonJSON   = errors.New("feed: body is not json")
)

const (
	DefaultBaseURL   = "https://BrsApi.ir/Api"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBodyBytes     = 32 << 20
)

// Client talks to one feed base URL.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	client    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		userAgent: defaultUserAgent,
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Fetch(ctx context.Context, ep Endpoint) (Payload, error) {
	u, err := url.Parse(c.baseURL + ep.Path)
	if err != nil {
		return Payload{}, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	for k, vs := range ep.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	var body []byte
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		body, err = c.do(ctx, u.String())
		if err != nil {
			if ctx.Err() == nil && shouldRetry(err) && attempt < 2 {
				lastErr = err
				if !sleepCtx(ctx, 150*time.Millisecond) {
					return Payload{}, ctx.Err()
				}
				continue
			}
			return Payload{}, fmt.Errorf("request %s: %w", ep.Name, err)
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return Payload{}, fmt.Errorf("request %s: %w", ep.Name, lastErr)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{}, fmt.Errorf("%s: %w", ep.Name, ErrEmptyBody)
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return Payload{}, fmt.Errorf("%s: %w", ep.Name, ErrNonJSON)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return Payload{}, fmt.Errorf("%s: %w: %v", ep.Name, ErrNonJSON, err)
	}
	return Payload{
		Endpoint:  ep.Name,
		Source:    c.baseURL,
		Body:      decoded,
		Raw:       trimmed,
		FetchedAt: time.Now(),
	}, nil
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "reset by peer") {
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
