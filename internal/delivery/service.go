package delivery

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"market-digest-bot/internal/push/telegram"
	"market-digest-bot/internal/store"
)

type Status string

const (
	StatusSent        Status = "sent"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
	StatusSkipped     Status = "skipped"
)

// Sender is the part of the Telegram client the service needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) (*telegram.Response, error)
	SendSticker(ctx context.Context, chatID, fileID string) (*telegram.Response, error)
}

type Message struct {
	Kind  string
	Text  string
	RunID string
	// NoSticker suppresses the sticker that normally follows a digest.
	NoSticker bool
}

type Result struct {
	Status      Status
	Error       error
	ErrorCode   int
	Description string
	StickerSent bool
}

type Config struct {
	ChatID        string
	EscapeHTML    bool
	RateLimit     RateLimitConfig
	RateLimitWait time.Duration
	StickerGap    time.Duration
	MessageGap    time.Duration
	MaxRetryAfter time.Duration
	// Stickers maps a digest kind to a Telegram sticker file id.
	Stickers map[string]string
}

type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

type Service struct {
	sender  Sender
	cfg     Config
	limiter *TokenBucket
	store   *store.Store
	sleep   func(context.Context, time.Duration) error
}

func NewService(sender Sender, st *store.Store, cfg Config) *Service {
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = 5 * time.Second
	}
	return &Service{
		sender:  sender,
		cfg:     cfg,
		limiter: NewTokenBucket(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		store:   st,
		sleep:   sleepCtx,
	}
}

// Deliver sends one message to the configured chat, then its sticker, then
// waits out the message gap so consecutive deliveries stay spaced.
func (s *Service) Deliver(ctx context.Context, msg Message) Result {
	res := s.deliver(ctx, msg)
	s.record(msg, res)
	if res.Status == StatusSent && s.cfg.MessageGap > 0 {
		_ = s.sleep(ctx, s.cfg.MessageGap)
	}
	return res
}

func (s *Service) deliver(ctx context.Context, msg Message) Result {
	if s.sender == nil || s.cfg.ChatID == "" {
		return Result{Status: StatusSkipped, Error: fmt.Errorf("telegram not configured")}
	}
	if strings.TrimSpace(msg.Text) == "" {
		return Result{Status: StatusSkipped, Error: fmt.Errorf("empty message")}
	}
	if !s.limiter.Allow() && !s.limiter.WaitForToken(ctx, s.cfg.RateLimitWait) {
		return Result{Status: StatusRateLimited, Error: fmt.Errorf("rate limited")}
	}

	text := msg.Text
	if s.cfg.EscapeHTML {
		text = html.EscapeString(text)
	}
	res := s.sendText(ctx, text)
	if res.Status != StatusSent || msg.NoSticker {
		return res
	}

	sticker := s.cfg.Stickers[msg.Kind]
	if sticker == "" {
		return res
	}
	if s.cfg.StickerGap > 0 {
		if err := s.sleep(ctx, s.cfg.StickerGap); err != nil {
			return res
		}
	}
	resp, err := s.sender.SendSticker(ctx, s.cfg.ChatID, sticker)
	switch {
	case err != nil:
		logx.WithContext(ctx).Errorf("delivery: sticker kind=%s err=%v", msg.Kind, err)
	case !resp.OK:
		logx.WithContext(ctx).Errorf("delivery: sticker kind=%s code=%d desc=%s", msg.Kind, resp.ErrorCode, resp.Description)
	default:
		res.StickerSent = true
	}
	return res
}

// sendText retries once when Telegram answers with a retry_after hint.
func (s *Service) sendText(ctx context.Context, text string) Result {
	var res Result
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := s.sender.SendMessage(ctx, s.cfg.ChatID, text)
		if err != nil {
			return Result{Status: StatusFailed, Error: err}
		}
		if resp.OK {
			return Result{Status: StatusSent}
		}
		res = Result{
			Status:      StatusFailed,
			ErrorCode:   resp.ErrorCode,
			Description: resp.Description,
			Error:       fmt.Errorf("telegram error_code=%d description=%s", resp.ErrorCode, resp.Description),
		}
		wait := retryAfter(resp)
		if wait <= 0 || wait > s.cfg.MaxRetryAfter {
			return res
		}
		if err := s.sleep(ctx, wait); err != nil {
			return res
		}
	}
	return res
}

func retryAfter(resp *telegram.Response) time.Duration {
	if resp == nil || resp.Parameters == nil || resp.Parameters.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(resp.Parameters.RetryAfter) * time.Second
}

func (s *Service) record(msg Message, res Result) {
	if res.Error != nil {
		logx.Errorf("delivery: kind=%s run=%s status=%s err=%v", msg.Kind, msg.RunID, res.Status, res.Error)
	} else {
		logx.Infof("delivery: kind=%s run=%s status=%s sticker=%t", msg.Kind, msg.RunID, res.Status, res.StickerSent)
	}
	if s.store == nil {
		return
	}
	rec := store.DeliveryRecord{
		TS:          time.Now().Unix(),
		RunID:       msg.RunID,
		Digest:      msg.Kind,
		ChatID:      s.cfg.ChatID,
		Status:      string(res.Status),
		ErrorCode:   res.ErrorCode,
		StickerSent: res.StickerSent,
		Text:        msg.Text,
	}
	if res.Error != nil {
		rec.ErrorMsg = res.Error.Error()
	}
	if err := s.store.InsertDelivery(rec); err != nil {
		logx.Errorf("delivery: insert record err=%v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
