package feed

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
)

// MultiSource tries each source in order and returns the first success.
type MultiSource struct {
	sources []Source
}

func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Fetch(ctx context.Context, ep Endpoint) (Payload, error) {
	if len(m.sources) == 0 {
		return Payload{}, fmt.Errorf("no feed sources configured")
	}
	var lastErr error
	for i, s := range m.sources {
		p, err := s.Fetch(ctx, ep)
		if err == nil {
			return p, nil
		}
		if i < len(m.sources)-1 {
			logx.WithContext(ctx).Infof("feed: source %d failed endpoint=%s err=%v, trying next", i, ep.Name, err)
		}
		lastErr = err
	}
	return Payload{}, lastErr
}
