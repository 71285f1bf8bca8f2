package commentary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/trend"
)

type stubModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (s *stubModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.seen = input
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.reply, nil), nil
}

func sample() digest.Digest {
	return digest.Digest{
		Kind:    digest.KindGoldDollar,
		Overall: trend.OverallUp,
		Tally:   trend.Tally{Up: 2},
		Lines: []digest.Line{
			{Key: "dollar", Label: "دلار", Display: "58,500", Trend: "up"},
			{Key: "gold_18k", Label: "طلای 18 عیار", Display: "3,200,000", Trend: "up"},
		},
	}
}

func TestDisabledAgentIsSilent(t *testing.T) {
	a := New(Config{})
	assert.False(t, a.Enabled())
	assert.Equal(t, "off", a.Status()["mode"])

	remark, err := a.Comment(context.Background(), sample())
	require.NoError(t, err)
	assert.Empty(t, remark)
}

func TestCommentSanitizesOutput(t *testing.T) {
	m := &stubModel{reply: "  \"بازار امروز\n  صعودی بود.\"  "}
	a := &Agent{enabled: true, model: m, maxChars: 100}

	remark, err := a.Comment(context.Background(), sample())
	require.NoError(t, err)
	assert.Equal(t, "بازار امروز صعودی بود.", remark)

	require.Len(t, m.seen, 2)
	assert.Equal(t, schema.System, m.seen[0].Role)
	assert.Contains(t, m.seen[1].Content, "overall=up")
	assert.Contains(t, m.seen[1].Content, "- دلار: 58,500 (up)")
}

func TestCommentSkipsNoData(t *testing.T) {
	m := &stubModel{reply: "x"}
	a := &Agent{enabled: true, model: m, maxChars: 100}
	remark, err := a.Comment(context.Background(), digest.Digest{NoData: true})
	require.NoError(t, err)
	assert.Empty(t, remark)
	assert.Nil(t, m.seen)
}

func TestCommentError(t *testing.T) {
	a := &Agent{enabled: true, model: &stubModel{err: errors.New("boom")}, maxChars: 100}
	_, err := a.Comment(context.Background(), sample())
	assert.Error(t, err)
}

func TestSanitizeTruncatesRunes(t *testing.T) {
	out := sanitize(strings.Repeat("ب", 20), 5)
	assert.Equal(t, "ببببب…", out)
	assert.Equal(t, "a b", sanitize("a\n\tb", 0))
}
