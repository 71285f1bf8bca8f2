package normalize

import (
	"bytes"
	"encoding/json"
)

// Extractor turns decoded feed responses into canonical records.
type Extractor struct {
	keys *KeyTable
}

func NewExtractor(keys *KeyTable) *Extractor {
	if keys == nil {
		keys = NewKeyTable(nil)
	}
	return &Extractor{keys: keys}
}

var defaultExtractor = NewExtractor(nil)

// Extract uses the default key table.
func Extract(raw any) Result { return defaultExtractor.Extract(raw) }

// ExtractJSON uses the default key table.
func ExtractJSON(body []byte) Result { return defaultExtractor.ExtractJSON(body) }

// ExtractJSON decodes body with json.Number preserved and extracts it.
// Undecodable bodies yield an empty result.
func (x *Extractor) ExtractJSON(body []byte) Result {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Result{}
	}
	return x.Extract(raw)
}

// Extract never fails: malformed entries are reported in Result.Skipped and
// unrecognised shapes produce an empty result.
func (x *Extractor) Extract(raw any) Result {
	res := Result{Shape: Classify(raw)}
	switch res.Shape {
	case ShapeCategoryBlock:
		x.extractBlock(raw.(map[string]any), &res)
	case ShapeEntryList:
		x.extractList(entries(raw), &res)
	}
	return res
}

func (x *Extractor) extractBlock(block map[string]any, res *Result) {
	for _, bf := range blockFields {
		list, ok := block[bf.Field].([]any)
		if !ok {
			continue
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				res.skip(Skip{Section: bf.Field, Position: i, Reason: ReasonNotObject})
				continue
			}
			e, reason, field := parseAsset(bf.Category, m)
			if reason != "" {
				res.skip(Skip{Section: bf.Field, Position: i, Reason: reason, Field: field})
				continue
			}
			res.put(e.record(x.keys))
		}
	}
}

func (x *Extractor) extractList(list []any, res *Result) {
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			res.skip(Skip{Section: "list", Position: i, Reason: ReasonNotObject})
			continue
		}
		idx, isIndex, idxBad := parseIndex(m)
		sym, isSymbol, symBad := parseSymbol(m)
		switch {
		case !isIndex && !isSymbol:
			res.skip(Skip{Section: "list", Position: i, Reason: ReasonNoInterpretation})
			continue
		case idxBad != "":
			res.skip(Skip{Section: "list", Position: i, Reason: ReasonBadNumber, Field: idxBad})
			continue
		case symBad != "":
			res.skip(Skip{Section: "list", Position: i, Reason: ReasonBadNumber, Field: symBad})
			continue
		}
		if isIndex {
			res.put(idx.record(x.keys))
		}
		if isSymbol {
			res.put(sym.record(x.keys))
		}
	}
}

func entries(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	}
	return nil
}
