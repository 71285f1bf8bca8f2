package digest

import (
	"sort"
	"strings"
)

// PriceItem is one stored price with its display label.
type PriceItem struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Group lists the stored prices that belong to one digest.
type Group struct {
	Kind  Kind        `json:"kind"`
	Title string      `json:"title"`
	Items []PriceItem `json:"items"`
}

// KindOther collects keys that no template claims.
const KindOther Kind = "other"

// Group sorts a history snapshot into digests. Well-known keys come first in
// template order; remaining keys are matched by their label prefix and sorted.
func (c Catalog) Group(values map[string]float64) []Group {
	seen := make(map[string]struct{}, len(values))
	byKind := make(map[Kind]*Group)
	get := func(k Kind, title string) *Group {
		g, ok := byKind[k]
		if !ok {
			g = &Group{Kind: k, Title: title}
			byKind[k] = g
		}
		return g
	}

	for _, kind := range Kinds {
		t, ok := c[kind]
		if !ok {
			continue
		}
		for _, l := range t.Lines {
			v, ok := values[l.Key]
			if !ok {
				continue
			}
			seen[l.Key] = struct{}{}
			g := get(kind, t.Title)
			g.Items = append(g.Items, PriceItem{Key: l.Key, Label: l.Label, Value: v})
		}
	}

	rest := make([]string, 0, len(values))
	for k := range values {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		kind, t := c.byPrefix(k)
		g := get(kind, t.Title)
		label := k
		if kind != KindOther {
			label = t.genericLabel(k)
		}
		g.Items = append(g.Items, PriceItem{Key: k, Label: label, Value: values[k]})
	}

	out := make([]Group, 0, len(byKind))
	for _, kind := range append(append([]Kind(nil), Kinds...), KindOther) {
		if g, ok := byKind[kind]; ok {
			out = append(out, *g)
		}
	}
	return out
}

func (c Catalog) byPrefix(key string) (Kind, Template) {
	for _, kind := range Kinds {
		t, ok := c[kind]
		if ok && t.LabelPrefix != "" && strings.HasPrefix(key, t.LabelPrefix) {
			return kind, t
		}
	}
	return KindOther, Template{}
}
