package numeric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNotNumber is returned when a value cannot be read as a finite float64.
var ErrNotNumber = errors.New("not a number")

// ToFloat coerces a decoded JSON value (or a Go number) to float64.
// Strings are trimmed and parsed; empty strings, booleans, NaN and Inf are rejected.
func ToFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		p, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumber, string(t))
		}
		f = p
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, fmt.Errorf("%w: empty string", ErrNotNumber)
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumber, t)
		}
		f = p
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumber, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite", ErrNotNumber)
	}
	return f, nil
}

// OrZero is ToFloat where an absent value (nil) reads as 0.
func OrZero(v any) (float64, error) {
	if v == nil {
		return 0, nil
	}
	return ToFloat(v)
}

// IsBlank reports whether v is absent or falsy in the feed's sense:
// nil, "", numeric zero, or a numeric string equal to zero.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	if b, ok := v.(bool); ok {
		return !b
	}
	f, err := ToFloat(v)
	if err != nil {
		return false
	}
	return f == 0
}

// Text returns v as a trimmed string when it is a string or a JSON number.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
