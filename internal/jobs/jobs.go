package jobs

import (
	"time"

	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/feed"
)

const (
	GoldDollar   = "gold_dollar"
	Currency     = "currency"
	CryptoBourse = "crypto_bourse"
)

// Step fetches one endpoint and renders one digest from it.
type Step struct {
	Endpoint feed.Endpoint
	Digest   digest.Kind
}

// Job is a named, periodically repeated list of steps.
type Job struct {
	Name     string
	Label    string
	Interval time.Duration
	Enabled  bool
	Steps    []Step
}

// Intervals holds the period of each built-in job. Zero disables a job.
type Intervals struct {
	GoldDollar   time.Duration
	Currency     time.Duration
	CryptoBourse time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		GoldDollar:   120 * time.Second,
		Currency:     600 * time.Second,
		CryptoBourse: 900 * time.Second,
	}
}

// DefaultJobs returns the three built-in jobs in announcement order.
func DefaultJobs(iv Intervals) []Job {
	return []Job{
		{
			Name:     GoldDollar,
			Label:    "طلا و دلار",
			Interval: iv.GoldDollar,
			Enabled:  iv.GoldDollar > 0,
			Steps: []Step{
				{Endpoint: feed.GoldCurrency(), Digest: digest.KindGoldDollar},
			},
		},
		{
			Name:     Currency,
			Label:    "ارزهای مختلف",
			Interval: iv.Currency,
			Enabled:  iv.Currency > 0,
			Steps: []Step{
				{Endpoint: feed.GoldCurrency(), Digest: digest.KindCurrency},
				{Endpoint: feed.AllSymbols(), Digest: digest.KindSymbols},
			},
		},
		{
			Name:     CryptoBourse,
			Label:    "ارزهای دیجیتال و بورس",
			Interval: iv.CryptoBourse,
			Enabled:  iv.CryptoBourse > 0,
			Steps: []Step{
				{Endpoint: feed.GoldCurrency(), Digest: digest.KindCrypto},
				{Endpoint: feed.Index(feed.IndexEquity), Digest: digest.KindBourse},
				{Endpoint: feed.Index(feed.IndexOTC), Digest: digest.KindBourse},
				{Endpoint: feed.Index(feed.IndexSelected), Digest: digest.KindBourse},
			},
		},
	}
}
