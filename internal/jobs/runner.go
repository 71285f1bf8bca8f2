package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"market-digest-bot/internal/delivery"
	"market-digest-bot/internal/digest"
	"market-digest-bot/internal/feed"
	"market-digest-bot/internal/normalize"
	"market-digest-bot/internal/store"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrBusy       = errors.New("job already running")
)

type Fetcher interface {
	Fetch(ctx context.Context, ep feed.Endpoint) (feed.Payload, error)
}

type Composer interface {
	Compose(ctx context.Context, kind digest.Kind, records []normalize.Record) (digest.Digest, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, msg delivery.Message) delivery.Result
}

type Options struct {
	Location *time.Location
	Footer   string
	// RunOnStart runs every enabled job once right after Start instead of
	// waiting a full interval.
	RunOnStart bool
	// Announce sends the schedule message when Start is called.
	Announce bool
	Now      func() time.Time
}

// Summary describes one run of a job.
type Summary struct {
	RunID      string    `json:"run_id"`
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Records    int       `json:"records"`
	Skipped    int       `json:"skipped"`
	Messages   int       `json:"messages"`
	Errors     []string  `json:"errors,omitempty"`
}

type Runner struct {
	fetcher   Fetcher
	extractor *normalize.Extractor
	composer  Composer
	deliverer Deliverer
	store     *store.Store
	opts      Options

	jobs  map[string]Job
	order []string

	mu       sync.Mutex
	running  map[string]bool
	failures map[string]int
	last     map[string]Summary

	wg sync.WaitGroup
}

func NewRunner(fetcher Fetcher, extractor *normalize.Extractor, composer Composer, deliverer Deliverer, st *store.Store, jobs []Job, opts Options) *Runner {
	if extractor == nil {
		extractor = normalize.NewExtractor(nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Runner{
		fetcher:   fetcher,
		extractor: extractor,
		composer:  composer,
		deliverer: deliverer,
		store:     st,
		opts:      opts,
		jobs:      make(map[string]Job, len(jobs)),
		running:   make(map[string]bool),
		failures:  make(map[string]int),
		last:      make(map[string]Summary),
	}
	for _, j := range jobs {
		r.jobs[j.Name] = j
		r.order = append(r.order, j.Name)
	}
	return r
}

// Jobs returns the configured jobs in declaration order.
func (r *Runner) Jobs() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.jobs[name])
	}
	return out
}

// Last returns the latest summary of every job that ran at least once.
func (r *Runner) Last() map[string]Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Summary, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}

// Start launches one loop per enabled job. Loops stop when ctx is cancelled;
// Wait blocks until they have.
func (r *Runner) Start(ctx context.Context) {
	if r.opts.Announce {
		r.Announce(ctx)
	}
	for _, job := range r.Jobs() {
		if !job.Enabled || job.Interval <= 0 {
			logx.Infof("jobs: %s disabled", job.Name)
			continue
		}
		r.wg.Add(1)
		go func(job Job) {
			defer r.wg.Done()
			r.loop(ctx, job)
		}(job)
	}
}

func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) loop(ctx context.Context, job Job) {
	wait := job.Interval
	if r.opts.RunOnStart {
		wait = 0
	}
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		sum, err := r.RunNow(ctx, job.Name)
		if errors.Is(err, ErrBusy) {
			logx.Infof("jobs: %s still running, tick skipped", job.Name)
		}
		wait = r.nextInterval(job.Name, job.Interval, err == nil && sum.Status == statusFailed)
	}
}

// nextInterval backs off while a job keeps failing.
func (r *Runner) nextInterval(name string, base time.Duration, failed bool) time.Duration {
	if !failed {
		return base
	}
	r.mu.Lock()
	failures := r.failures[name]
	r.mu.Unlock()
	if failures >= 6 {
		return base * 4
	}
	if failures >= 3 {
		return base * 2
	}
	return base
}

const (
	statusRunning = "running"
	statusOK      = "ok"
	statusPartial = "partial"
	statusFailed  = "failed"
)

// RunNow runs a job immediately. A job never overlaps with itself.
func (r *Runner) RunNow(ctx context.Context, name string) (Summary, error) {
	job, ok := r.jobs[name]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		return Summary{}, ErrBusy
	}
	r.running[name] = true
	r.mu.Unlock()

	sum := r.run(ctx, job)

	r.mu.Lock()
	r.running[name] = false
	if sum.Status == statusFailed {
		r.failures[name]++
	} else {
		r.failures[name] = 0
	}
	r.last[name] = sum
	r.mu.Unlock()
	return sum, nil
}

func (r *Runner) run(ctx context.Context, job Job) Summary {
	sum := Summary{RunID: uuid.NewString(), Job: job.Name, StartedAt: r.opts.Now(), Status: statusRunning}
	ctx = logx.ContextWithFields(ctx, logx.Field("run_id", sum.RunID), logx.Field("job", job.Name))
	r.saveRun(sum)
	logx.WithContext(ctx).Infof("jobs: start %s steps=%d", job.Name, len(job.Steps))

	failedSteps := 0
	for _, step := range job.Steps {
		if ctx.Err() != nil {
			sum.Errors = append(sum.Errors, ctx.Err().Error())
			failedSteps++
			break
		}
		if err := r.runStep(ctx, step, &sum); err != nil {
			sum.Errors = append(sum.Errors, err.Error())
			failedSteps++
		}
	}

	switch {
	case failedSteps == 0:
		sum.Status = statusOK
	case failedSteps >= len(job.Steps):
		sum.Status = statusFailed
	default:
		sum.Status = statusPartial
	}
	sum.FinishedAt = r.opts.Now()
	r.saveRun(sum)
	logx.WithContext(ctx).Infof("jobs: done %s status=%s records=%d skipped=%d messages=%d",
		job.Name, sum.Status, sum.Records, sum.Skipped, sum.Messages)
	return sum
}

// runStep never aborts the job: a fetch failure still delivers the no-data
// message of the step's digest.
func (r *Runner) runStep(ctx context.Context, step Step, sum *Summary) error {
	var records []normalize.Record
	var stepErr error

	payload, err := r.fetcher.Fetch(ctx, step.Endpoint)
	if err != nil {
		logx.WithContext(ctx).Errorf("jobs: fetch endpoint=%s err=%v", step.Endpoint.Name, err)
		stepErr = fmt.Errorf("fetch %s: %w", step.Endpoint.Name, err)
	} else {
		res := r.extractor.Extract(payload.Body)
		if res.Shape == normalize.ShapeUnknown {
			logx.WithContext(ctx).Errorf("jobs: endpoint=%s unrecognized response shape", step.Endpoint.Name)
		}
		for reason, n := range res.SkipCounts() {
			logx.WithContext(ctx).Infof("jobs: endpoint=%s skipped reason=%s count=%d", step.Endpoint.Name, reason, n)
		}
		records = res.Records
		sum.Records += len(res.Records)
		sum.Skipped += len(res.Skipped)
		r.saveSnapshots(ctx, sum.RunID, payload, res.Records)
	}

	d, err := r.composer.Compose(ctx, step.Digest, records)
	if err != nil {
		return fmt.Errorf("compose %s: %w", step.Digest, err)
	}
	res := r.deliverer.Deliver(ctx, delivery.Message{
		Kind:      string(step.Digest),
		Text:      d.Text,
		RunID:     sum.RunID,
		NoSticker: d.NoData,
	})
	if res.Status == delivery.StatusSent {
		sum.Messages++
	}
	return stepErr
}

func (r *Runner) saveSnapshots(ctx context.Context, runID string, p feed.Payload, records []normalize.Record) {
	if r.store == nil || len(records) == 0 || p.Source == "cache" {
		return
	}
	ts := p.FetchedAt.Unix()
	rows := make([]store.RecordSnapshot, 0, len(records))
	for _, rec := range records {
		rows = append(rows, store.RecordSnapshot{
			TS:            ts,
			RunID:         runID,
			Endpoint:      p.Endpoint,
			Key:           rec.Key,
			Category:      string(rec.Category),
			Value:         rec.Value,
			Change:        rec.Change,
			ChangePercent: rec.ChangePercent,
			Unit:          rec.Unit,
			DisplayName:   rec.DisplayName,
		})
	}
	if err := r.store.InsertRecordSnapshots(rows); err != nil {
		logx.WithContext(ctx).Errorf("jobs: save snapshots endpoint=%s err=%v", p.Endpoint, err)
	}
}

func (r *Runner) saveRun(sum Summary) {
	if r.store == nil {
		return
	}
	rec := store.JobRun{
		RunID:     sum.RunID,
		Job:       sum.Job,
		StartedAt: sum.StartedAt.Unix(),
		Status:    sum.Status,
		Records:   sum.Records,
		Skipped:   sum.Skipped,
		Messages:  sum.Messages,
		Error:     strings.Join(sum.Errors, "; "),
	}
	if !sum.FinishedAt.IsZero() {
		rec.FinishedAt = sum.FinishedAt.Unix()
	}
	if err := r.store.UpsertJobRun(rec); err != nil {
		logx.Errorf("jobs: save run=%s err=%v", sum.RunID, err)
	}
}

// Announce delivers the startup message listing each enabled job's period.
func (r *Runner) Announce(ctx context.Context) delivery.Result {
	return r.deliverer.Deliver(ctx, delivery.Message{
		Kind:      "announce",
		Text:      r.AnnouncementText(),
		NoSticker: true,
	})
}

func (r *Runner) AnnouncementText() string {
	var b strings.Builder
	b.WriteString("🤖 ربات قیمت‌یاب شروع به کار کرد!\n\n")
	b.WriteString("📅 زمان‌بندی:\n")
	for _, job := range r.Jobs() {
		if !job.Enabled || job.Interval <= 0 {
			continue
		}
		fmt.Fprintf(&b, "• %s: هر %s\n", job.Label, period(job.Interval))
	}
	b.WriteString("\n⏰ ")
	b.WriteString(r.opts.Now().In(r.opts.Location).Format("2006/01/02 15:04:05"))
	if r.opts.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(r.opts.Footer)
	}
	return b.String()
}

// period prints whole minutes as minutes and anything else as seconds.
func period(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d دقیقه", int(d/time.Minute))
	}
	return fmt.Sprintf("%d ثانیه", int(d.Round(time.Second)/time.Second))
}
