package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// Service caches payloads per endpoint. Requests inside minInterval are served
// from cache. With serveStale set, a failed fetch falls back to the last payload.
type Service struct {
	source      Source
	minInterval time.Duration
	serveStale  bool

	mu       sync.Mutex
	cache    map[string]Payload
	failures map[string]int
	now      func() time.Time
}

func NewService(source Source, minInterval time.Duration, serveStale bool) *Service {
	if minInterval < 0 {
		minInterval = 0
	}
	return &Service{
		source:      source,
		minInterval: minInterval,
		serveStale:  serveStale,
		cache:       make(map[string]Payload),
		failures:    make(map[string]int),
		now:         time.Now,
	}
}

func (s *Service) Fetch(ctx context.Context, ep Endpoint) (Payload, error) {
	if s.source == nil {
		return Payload{}, fmt.Errorf("feed source not configured")
	}
	s.mu.Lock()
	if cached, ok := s.cache[ep.Name]; ok && s.minInterval > 0 && s.now().Sub(cached.FetchedAt) < s.minInterval {
		s.mu.Unlock()
		cached.Source = "cache"
		return cached, nil
	}
	s.mu.Unlock()

	p, err := s.source.Fetch(ctx, ep)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.cache[ep.Name] = p
		s.failures[ep.Name] = 0
		return p, nil
	}

	s.failures[ep.Name]++
	if cached, ok := s.cache[ep.Name]; ok && s.serveStale {
		logx.WithContext(ctx).Errorf("feed: fetch endpoint=%s failures=%d err=%v, serving stale payload", ep.Name, s.failures[ep.Name], err)
		cached.Stale = true
		cached.Source = "cache"
		return cached, nil
	}
	return Payload{}, err
}

// FailureCounts returns the consecutive failure count of every endpoint that
// has been fetched.
func (s *Service) FailureCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}
