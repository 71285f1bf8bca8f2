package normalize

import "fmt"

// Field is an auxiliary value stored under "{key}{Suffix}" in the flat mapping.
type Field struct {
	Suffix string
	Value  any
}

// Record is one canonical quantity produced by an extraction pass.
type Record struct {
	Key           string
	Category      Category
	Value         float64
	Change        float64
	ChangePercent float64
	Unit          string
	DisplayName   string
	// Code is the upstream identifier (asset code or symbol short code).
	Code  string
	Extra []Field
}

func (r Record) percentSuffix() string {
	switch r.Category {
	case CategoryIndex, CategorySymbol:
		return "_percent"
	default:
		return "_change_percent"
	}
}

// Reason says why an entry produced no record.
type Reason string

const (
	ReasonNotObject         Reason = "not_object"
	ReasonMissingIdentifier Reason = "missing_identifier"
	ReasonMissingPrice      Reason = "missing_price"
	ReasonBadNumber         Reason = "bad_number"
	ReasonNoInterpretation  Reason = "no_interpretation"
)

// Skip describes one dropped entry.
type Skip struct {
	Section  string `json:"section"`
	Position int    `json:"position"`
	Reason   Reason `json:"reason"`
	Field    string `json:"field,omitempty"`
}

func (s Skip) String() string {
	if s.Field != "" {
		return fmt.Sprintf("%s[%d]: %s (%s)", s.Section, s.Position, s.Reason, s.Field)
	}
	return fmt.Sprintf("%s[%d]: %s", s.Section, s.Position, s.Reason)
}

// Result is the outcome of one extraction pass. Records are unique by key;
// a later entry with the same key replaces the earlier one in place.
type Result struct {
	Shape   Shape
	Records []Record
	Skipped []Skip

	index map[string]int
}

func (r *Result) put(rec Record) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[rec.Key]; ok {
		r.Records[i] = rec
		return
	}
	r.index[rec.Key] = len(r.Records)
	r.Records = append(r.Records, rec)
}

func (r *Result) skip(s Skip) {
	r.Skipped = append(r.Skipped, s)
}

// Len is the number of canonical records.
func (r Result) Len() int { return len(r.Records) }

// Get returns the record stored under key.
func (r Result) Get(key string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Key == key {
			return rec, true
		}
	}
	return Record{}, false
}

// SkipCounts aggregates skipped entries by reason.
func (r Result) SkipCounts() map[Reason]int {
	out := make(map[Reason]int, len(r.Skipped))
	for _, s := range r.Skipped {
		out[s.Reason]++
	}
	return out
}

// Flat renders the result as the flat key/value mapping: the record value under
// its key plus derived keys for change, percent, unit and auxiliary fields.
func (r Result) Flat() map[string]any {
	out := make(map[string]any, len(r.Records)*4)
	for _, rec := range r.Records {
		out[rec.Key] = rec.Value
		out[rec.Key+"_change"] = rec.Change
		out[rec.Key+rec.percentSuffix()] = rec.ChangePercent
		switch rec.Category {
		case CategoryGold, CategoryCurrency, CategoryCrypto:
			out[rec.Key+"_unit"] = rec.Unit
		}
		for _, f := range rec.Extra {
			out[rec.Key+f.Suffix] = f.Value
		}
	}
	return out
}
