package numeric

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat(t *testing.T) {
	ok := []struct {
		in   any
		want float64
	}{
		{58000.0, 58000},
		{" 12.5 ", 12.5},
		{json.Number("-3"), -3},
		{7, 7},
		{int64(8), 8},
	}
	for _, tt := range ok {
		got, err := ToFloat(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.InDelta(t, tt.want, got, 1e-12)
	}

	for _, bad := range []any{nil, "", "abc", true, math.NaN(), math.Inf(1), "NaN", []any{}} {
		_, err := ToFloat(bad)
		assert.ErrorIs(t, err, ErrNotNumber, "%v", bad)
	}
}

func TestOrZero(t *testing.T) {
	f, err := OrZero(nil)
	require.NoError(t, err)
	assert.Zero(t, f)

	_, err = OrZero("")
	assert.Error(t, err)
}

func TestIsBlank(t *testing.T) {
	for _, v := range []any{nil, "", "  ", "0", 0.0, json.Number("0"), false} {
		assert.True(t, IsBlank(v), "%#v", v)
	}
	for _, v := range []any{"x", "0.1", 1.0, true} {
		assert.False(t, IsBlank(v), "%#v", v)
	}
}
