package trend

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"
)

// Direction is the change of a value relative to the last one seen.
type Direction int

const (
	Unknown Direction = iota
	Up
	Down
	Unchanged
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Overall is the aggregated trend of one digest.
type Overall string

const (
	OverallUp     Overall = "up"
	OverallDown   Overall = "down"
	OverallStable Overall = "stable"
	OverallMixed  Overall = "mixed"
)

// History is the last-value store consulted by the detector.
// Swap must store value and return the value it replaced atomically.
type History interface {
	Swap(ctx context.Context, key string, value any) (prev float64, had bool, err error)
}

type Detector struct {
	history History
}

func NewDetector(h History) *Detector {
	return &Detector{history: h}
}

// Classify compares value with the last stored value for key and stores value.
// A value that cannot be stored is reported as Unknown.
func (d *Detector) Classify(ctx context.Context, key string, value float64) Direction {
	prev, had, err := d.history.Swap(ctx, key, value)
	if err != nil {
		logx.WithContext(ctx).Errorf("trend: store key=%s err=%v", key, err)
		return Unknown
	}
	if !had {
		return Unknown
	}
	return Compare(prev, value)
}

// Compare classifies next against prev.
func Compare(prev, next float64) Direction {
	switch {
	case next > prev:
		return Up
	case next < prev:
		return Down
	default:
		return Unchanged
	}
}

// Tally counts directions seen while composing one digest.
type Tally struct {
	Up        int `json:"up"`
	Down      int `json:"down"`
	Unchanged int `json:"unchanged"`
	Unknown   int `json:"unknown"`
}

func (t *Tally) Add(d Direction) {
	switch d {
	case Up:
		t.Up++
	case Down:
		t.Down++
	case Unchanged:
		t.Unchanged++
	default:
		t.Unknown++
	}
}

func (t Tally) Total() int { return t.Up + t.Down + t.Unchanged + t.Unknown }

// Overall reports up when anything rose, else down when anything fell, else stable.
// With mixed set, a tally holding both rises and falls reports OverallMixed.
func (t Tally) Overall(mixed bool) Overall {
	switch {
	case mixed && t.Up > 0 && t.Down > 0:
		return OverallMixed
	case t.Up > 0:
		return OverallUp
	case t.Down > 0:
		return OverallDown
	default:
		return OverallStable
	}
}
