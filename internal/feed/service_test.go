package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	calls int
	errs  []error
}

func (s *scriptedSource) Fetch(_ context.Context, ep Endpoint) (Payload, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Payload{}, s.errs[i]
	}
	return Payload{Endpoint: ep.Name, Source: "scripted", Body: map[string]any{"n": i}, FetchedAt: time.Now()}, nil
}

func TestServiceMinIntervalServesCache(t *testing.T) {
	src := &scriptedSource{}
	s := NewService(src, time.Minute, false)

	first, err := s.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	second, err := s.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "cache", second.Source)
	assert.Equal(t, first.Body, second.Body)

	_, err = s.Fetch(context.Background(), AllSymbols())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "cache is per endpoint")
}

func TestServiceFailureWithoutStale(t *testing.T) {
	boom := errors.New("down")
	src := &scriptedSource{errs: []error{nil, boom, boom}}
	s := NewService(src, 0, false)

	_, err := s.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), GoldCurrency())
	assert.ErrorIs(t, err, boom)
	_, err = s.Fetch(context.Background(), GoldCurrency())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]int{"gold_currency": 2}, s.FailureCounts())

	_, err = s.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	assert.Equal(t, 0, s.FailureCounts()["gold_currency"])
}

func TestServiceServesStale(t *testing.T) {
	src := &scriptedSource{errs: []error{nil, errors.New("down")}}
	s := NewService(src, 0, true)

	_, err := s.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	p, err := s.Fetch(context.Background(), GoldCurrency())
	require.NoError(t, err)
	assert.True(t, p.Stale)
	assert.Equal(t, "cache", p.Source)
	assert.Equal(t, 1, s.FailureCounts()["gold_currency"])
}
