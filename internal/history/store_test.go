package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	persists int
}

func (f *failingBackend) Name() string { return "failing" }
func (f *failingBackend) Load(context.Context) (map[string]float64, error) {
	return nil, errors.New("boom")
}
func (f *failingBackend) Persist(context.Context, string, map[string]float64) error {
	f.persists++
	return errors.New("disk full")
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "price_history.json")

	s := Open(ctx, NewFileBackend(path))
	require.Equal(t, 0, s.Len())

	for _, v := range []any{58000.0, "58,000", "  61000.25 "} {
		_ = s.Set(ctx, "dollar", v)
	}
	require.NoError(t, s.Set(ctx, "gold_ounce", 2400.5))

	got, ok := s.Get("dollar")
	require.True(t, ok)
	assert.InDelta(t, 61000.25, got, 1e-9)

	reopened := Open(ctx, NewFileBackend(path))
	assert.Equal(t, s.Snapshot(), reopened.Snapshot())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"gold_ounce": 2400.5`)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSetConversionErrorLeavesStore(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, NewFileBackend(filepath.Join(t.TempDir(), "h.json")))
	require.NoError(t, s.Set(ctx, "dollar", 58000))

	err := s.Set(ctx, "dollar", "not-a-number")
	require.ErrorIs(t, err, ErrConversion)
	err = s.Set(ctx, "euro", nil)
	require.ErrorIs(t, err, ErrConversion)

	v, ok := s.Get("dollar")
	assert.True(t, ok)
	assert.InDelta(t, 58000.0, v, 1e-9)
	_, ok = s.Get("euro")
	assert.False(t, ok)
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := Open(context.Background(), NewFileBackend(path))
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Set(context.Background(), "dollar", 1.0))
	reopened := Open(context.Background(), NewFileBackend(path))
	assert.Equal(t, map[string]float64{"dollar": 1}, reopened.Snapshot())
}

func TestFileLoadDropsNonNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dollar": 58000, "note": "x", "coin": "120.5"}`), 0o644))

	s := Open(context.Background(), NewFileBackend(path))
	assert.Equal(t, map[string]float64{"dollar": 58000, "coin": 120.5}, s.Snapshot())
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	fb := &failingBackend{}
	s := Open(context.Background(), fb)

	require.NoError(t, s.Set(context.Background(), "dollar", 10))
	assert.Equal(t, 1, fb.persists)
	v, ok := s.Get("dollar")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	assert.Error(t, s.Reload(context.Background()))
	assert.Equal(t, 1, s.Len())
}

func TestSwapReturnsPrevious(t *testing.T) {
	s := Open(context.Background(), nil)
	_, had, err := s.Swap(context.Background(), "k", 1)
	require.NoError(t, err)
	assert.False(t, had)

	prev, had, err := s.Swap(context.Background(), "k", 2)
	require.NoError(t, err)
	assert.True(t, had)
	assert.Equal(t, 1.0, prev)
	assert.Equal(t, []string{"k"}, s.Keys())
	assert.Equal(t, "memory", s.BackendName())
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "h.json")
	s := Open(ctx, NewFileBackend(path))
	require.NoError(t, s.Set(ctx, "dollar", 1))

	require.NoError(t, os.WriteFile(path, []byte(`{"dollar": 2, "euro": 3}`), 0o644))
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, map[string]float64{"dollar": 2, "euro": 3}, s.Snapshot())
}
