package digest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"market-digest-bot/internal/normalize"
	"market-digest-bot/internal/trend"
)

const (
	markerUp        = "🔺"
	markerDown      = "🔻"
	markerUnchanged = "➖"

	trendPrefix = "📊 تحلیل روند: "
	separator   = "=============================="
)

var overallLabels = map[trend.Overall]string{
	trend.OverallUp:     "صعودی 📈",
	trend.OverallDown:   "نزولی 📉",
	trend.OverallStable: "پایدار 📊",
	trend.OverallMixed:  "نوسانی 🔀",
}

// Classifier is the change detector consulted for every rendered line.
type Classifier interface {
	Classify(ctx context.Context, key string, value float64) trend.Direction
}

// Commentator adds an optional one-line remark below the trend summary.
type Commentator interface {
	Comment(ctx context.Context, d Digest) (string, error)
}

type Options struct {
	Location   *time.Location
	Footer     string
	MixedLabel bool
	TopSymbols int
	Now        func() time.Time
}

// Line is one rendered quantity.
type Line struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Value     float64         `json:"value"`
	Display   string          `json:"display"`
	Direction trend.Direction `json:"-"`
	Trend     string          `json:"trend"`
	Text      string          `json:"text"`
}

// Digest is a composed summary.
type Digest struct {
	Kind       Kind          `json:"kind"`
	Text       string        `json:"text"`
	Lines      []Line        `json:"lines"`
	Tally      trend.Tally   `json:"tally"`
	Overall    trend.Overall `json:"overall"`
	Commentary string        `json:"commentary,omitempty"`
	NoData     bool          `json:"no_data"`
}

type Composer struct {
	detector   Classifier
	catalog    Catalog
	wellKnown  map[string]struct{}
	opts       Options
	printer    *message.Printer
	commentary Commentator
}

func New(detector Classifier, catalog Catalog, opts Options) *Composer {
	if catalog == nil {
		catalog = DefaultCatalog(0)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Composer{
		detector:  detector,
		catalog:   catalog,
		wellKnown: catalog.wellKnownKeys(),
		opts:      opts,
		printer:   message.NewPrinter(language.English),
	}
}

// WithCommentary sets the remark source. Nil disables remarks.
func (c *Composer) WithCommentary(cm Commentator) *Composer {
	c.commentary = cm
	return c
}

// Compose renders the digest of kind from one extraction pass. Every rendered
// line advances the price history. When no record belongs to the digest the
// no-data message is returned instead.
func (c *Composer) Compose(ctx context.Context, kind Kind, records []normalize.Record) (Digest, error) {
	tmpl, ok := c.catalog[kind]
	if !ok {
		return Digest{}, fmt.Errorf("unknown digest kind %q", kind)
	}
	d := Digest{Kind: kind}
	items := c.selectLines(tmpl, records)
	if len(items) == 0 {
		d.Text = tmpl.NoData
		d.NoData = true
		d.Overall = trend.OverallStable
		return d, nil
	}

	for _, item := range items {
		dir := c.detector.Classify(ctx, item.rec.Key, item.rec.Value)
		d.Tally.Add(dir)
		d.Lines = append(d.Lines, c.renderLine(item, dir))
	}
	d.Overall = d.Tally.Overall(c.opts.MixedLabel)

	if c.commentary != nil {
		remark, err := c.commentary.Comment(ctx, d)
		if err != nil {
			logx.WithContext(ctx).Errorf("digest: commentary kind=%s err=%v", kind, err)
		}
		d.Commentary = remark
	}
	d.Text = c.renderText(tmpl, d)
	return d, nil
}

type lineItem struct {
	rec    normalize.Record
	icon   string
	label  string
	unit   string
	format Format
	conv   *Conversion
}

func (c *Composer) selectLines(tmpl Template, records []normalize.Record) []lineItem {
	if tmpl.Ranked {
		return c.rankedLines(tmpl, records)
	}
	byKey := make(map[string]normalize.Record, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}

	var out []lineItem
	for _, w := range tmpl.Lines {
		r, ok := byKey[w.Key]
		if !ok {
			continue
		}
		out = append(out, lineItem{rec: r, icon: w.Icon, label: w.Label, unit: w.Unit, format: w.Format, conv: w.Conversion})
	}
	for _, r := range records {
		if !tmpl.member(r.Category) {
			continue
		}
		if _, known := c.wellKnown[r.Key]; known {
			continue
		}
		out = append(out, lineItem{rec: r, icon: tmpl.Icon, label: tmpl.genericLabel(r.Key), unit: tmpl.Unit, format: tmpl.Format})
	}
	return out
}

func (c *Composer) rankedLines(tmpl Template, records []normalize.Record) []lineItem {
	var members []normalize.Record
	for _, r := range records {
		if tmpl.member(r.Category) {
			members = append(members, r)
		}
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].Value > members[j].Value })
	n := tmpl.TopN
	if c.opts.TopSymbols > 0 {
		n = c.opts.TopSymbols
	}
	if n > 0 && len(members) > n {
		members = members[:n]
	}
	out := make([]lineItem, 0, len(members))
	for _, r := range members {
		code := r.Code
		if code == "" {
			code = strings.TrimPrefix(r.Key, tmpl.LabelPrefix)
		}
		code = strings.ToUpper(code)
		name := r.DisplayName
		if name == "" {
			name = code
		}
		out = append(out, lineItem{rec: r, icon: tmpl.Icon, label: fmt.Sprintf("%s (%s)", name, code), unit: tmpl.Unit, format: tmpl.Format})
	}
	return out
}

func (c *Composer) renderLine(item lineItem, dir trend.Direction) Line {
	display := c.formatValue(item.conv.apply(item.rec.Value), item.format)
	var b strings.Builder
	b.WriteString(item.icon)
	b.WriteString(" ")
	b.WriteString(item.label)
	b.WriteString(": ")
	b.WriteString(display)
	if item.unit != "" && item.format != FormatDollar {
		b.WriteString(" ")
		b.WriteString(item.unit)
	}
	if m := marker(dir); m != "" {
		b.WriteString(" ")
		b.WriteString(m)
	}
	return Line{
		Key:       item.rec.Key,
		Label:     item.label,
		Value:     item.rec.Value,
		Display:   display,
		Direction: dir,
		Trend:     dir.String(),
		Text:      b.String(),
	}
}

func (c *Composer) formatValue(v float64, f Format) string {
	switch f {
	case FormatDollar:
		return c.printer.Sprintf("$%.2f", v)
	default:
		return c.printer.Sprintf("%d", int64(math.Trunc(v)))
	}
}

func (c *Composer) renderText(tmpl Template, d Digest) string {
	var b strings.Builder
	b.WriteString(tmpl.Title)
	b.WriteString("\n⏰ ")
	b.WriteString(c.opts.Now().In(c.opts.Location).Format("2006/01/02 15:04:05"))
	b.WriteString("\n")
	b.WriteString(separator)
	b.WriteString("\n\n")
	for _, l := range d.Lines {
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(trendPrefix)
	b.WriteString(overallLabels[d.Overall])
	if d.Commentary != "" {
		b.WriteString("\n💬 ")
		b.WriteString(d.Commentary)
	}
	if c.opts.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(c.opts.Footer)
	}
	return b.String()
}

func marker(d trend.Direction) string {
	switch d {
	case trend.Up:
		return markerUp
	case trend.Down:
		return markerDown
	case trend.Unchanged:
		return markerUnchanged
	default:
		return ""
	}
}

// OverallLabel is the human label used in the trend summary line.
func OverallLabel(o trend.Overall) string {
	return overallLabels[o]
}
