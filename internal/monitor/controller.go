package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsestack/pulse-monitor/internal/aggregate"
	"github.com/pulsestack/pulse-monitor/internal/alert"
	"github.com/pulsestack/pulse-monitor/internal/metrics"
	"github.com/pulsestack/pulse-monitor/internal/models"
	"github.com/pulsestack/pulse-monitor/internal/normalize"
	"github.com/pulsestack/pulse-monitor/internal/scoring"
	"github.com/pulsestack/pulse-monitor/internal/stats"
	"github.com/pulsestack/pulse-monitor/internal/utils"
)

// Fetcher queries raw documents from the log store over a time range.
type Fetcher interface {
	FetchRecords(ctx context.Context, from, to time.Time) ([]map[string]any, int, error)
	PageSize() int
}

// WatermarkStore persists the watermark between process runs.
type WatermarkStore interface {
	SetWatermark(t time.Time) error
}

// Options wires the pipeline stages into a Controller.
type Options struct {
	Logger     *slog.Logger
	Fetcher    Fetcher
	Normalizer *normalize.Normalizer
	Aggregator *aggregate.Aggregator
	Engine     *scoring.Engine
	Tracker    *stats.Tracker
	Dispatcher *alert.Dispatcher
	Store      WatermarkStore

	Interval  time.Duration
	Watermark time.Time

	// Now is the clock; tests substitute a fixed one.
	Now func() time.Time
}

// Controller drives the fetch → normalize → aggregate → score → report
// pipeline once per interval. It owns the watermark: the boundary advances
// only after a check completes (including the benign no-data paths), never on
// failure, so a failed interval is refetched on the next check.
//
// Checks run strictly one at a time; the watermark and the statistics tracker
// are only touched between checks.
type Controller struct {
	logger     *slog.Logger
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	aggregator *aggregate.Aggregator
	engine     *scoring.Engine
	tracker    *stats.Tracker
	dispatcher *alert.Dispatcher
	store      WatermarkStore
	interval   time.Duration
	now        func() time.Time
	latencies  *utils.LatencyTracker

	mu          sync.RWMutex
	state       models.State
	watermark   time.Time
	lastSummary *models.CheckSummary
	checkMu     sync.Mutex
}

// New constructs a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("scoring engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(opts.Logger)
	}
	if opts.Aggregator == nil {
		opts.Aggregator = aggregate.New(time.Minute)
	}
	if opts.Tracker == nil {
		opts.Tracker = stats.NewTracker(0)
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	watermark := opts.Watermark
	if watermark.IsZero() {
		watermark = opts.Now().Add(-5 * time.Minute)
	}

	return &Controller{
		logger:     opts.Logger,
		fetcher:    opts.Fetcher,
		normalizer: opts.Normalizer,
		aggregator: opts.Aggregator,
		engine:     opts.Engine,
		tracker:    opts.Tracker,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		interval:   opts.Interval,
		now:        opts.Now,
		latencies:  utils.NewLatencyTracker(512),
		state:      models.StateIdle,
		watermark:  watermark,
	}, nil
}

// Run executes checks on the configured interval until ctx is cancelled.
// Cancellation during the sleep is immediate; an in-flight check finishes and
// the loop exits before the next one.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("monitor loop started",
		slog.Duration("interval", c.interval),
		slog.Time("watermark", c.Watermark()),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("monitor loop stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := c.RunCheck(ctx); err != nil && ctx.Err() != nil {
			c.logger.Info("monitor loop stopped")
			return ctx.Err()
		}

		timer.Reset(c.interval)
	}
}

// RunCheck executes a single check now. Failures are contained to the check:
// the error is returned for observability, the watermark stays put, and the
// next interval retries the widened range.
func (c *Controller) RunCheck(ctx context.Context) (models.CheckSummary, error) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	started := c.now()
	summary := models.CheckSummary{
		CheckID:       uuid.NewString(),
		StartedAt:     started,
		IntervalStart: c.Watermark(),
		IntervalEnd:   started,
	}

	err := c.runStages(ctx, &summary)

	summary.Duration = c.now().Sub(started)
	c.latencies.Observe(summary.Duration)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveCheck(summary.Duration, outcome)

	// A failed check is contained, not absorbing; the loop idles and retries.
	c.setState(models.StateIdle)
	c.setLastSummary(summary)
	c.logSummary(summary, err)

	if count := c.latencies.Count(); count >= 20 && count%20 == 0 {
		c.logger.Info("check latency", slog.Duration("p95", c.latencies.Percentile(95)), slog.Int("samples", count))
	}

	return summary, err
}

func (c *Controller) runStages(ctx context.Context, summary *models.CheckSummary) error {
	from, to := summary.IntervalStart, summary.IntervalEnd

	c.setState(models.StateFetching)
	sources, total, err := c.fetcher.FetchRecords(ctx, from, to)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	summary.RecordsFetched = len(sources)
	if total > len(sources) {
		// Accepted data-loss risk of the bounded page; flagged, not hidden.
		c.logger.Warn("fetch page overflow, records beyond page size were skipped",
			slog.Int("total", total),
			slog.Int("page_size", c.fetcher.PageSize()),
		)
	}

	records, rejected := c.normalizer.NormalizeBatch(sources)
	summary.RecordsRejected = rejected
	metrics.CountRecords(len(sources), rejected)

	if len(records) == 0 {
		// No traffic is a valid outcome; advance so the empty interval is
		// not refetched forever.
		return c.advance(to)
	}

	c.setState(models.StateAggregating)
	windows := c.aggregator.Build(records)
	summary.Windows = len(windows)
	if len(windows) == 0 {
		return c.advance(to)
	}

	c.setState(models.StateScoring)
	results, warnings := c.engine.Score(windows, to)
	summary.ScoringWarnings = warnings
	for _, result := range results {
		if result.IsAnomaly {
			summary.Anomalies++
		}
	}
	metrics.CountWindows(len(windows), summary.Anomalies)

	c.setState(models.StateReporting)
	c.tracker.Update(results)

	if c.dispatcher != nil {
		outcome, dispatchErr := c.dispatcher.Dispatch(ctx, results)
		summary.AlertsSent = outcome.Sent
		summary.AlertsFailed = outcome.Failed
		if dispatchErr != nil {
			// Sink entirely unreachable: the watermark stays put so the
			// affected windows are recomputed and redispatched next check.
			return fmt.Errorf("dispatch: %w", dispatchErr)
		}
	}

	return c.advance(to)
}

// advance moves the watermark to the end of the processed interval and
// persists it. A persistence failure does not fail the check; the in-memory
// watermark still advances and the persisted copy catches up next check.
func (c *Controller) advance(to time.Time) error {
	c.mu.Lock()
	c.watermark = to
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SetWatermark(to); err != nil {
			c.logger.Warn("persist watermark", slog.Any("error", err))
		}
	}
	return nil
}

func (c *Controller) logSummary(summary models.CheckSummary, err error) {
	attrs := []any{
		slog.String("check_id", summary.CheckID),
		slog.Int("records_fetched", summary.RecordsFetched),
		slog.Int("records_rejected", summary.RecordsRejected),
		slog.Int("windows", summary.Windows),
		slog.Int("anomalies", summary.Anomalies),
		slog.Int("alerts_sent", summary.AlertsSent),
		slog.Int("alerts_failed", summary.AlertsFailed),
		slog.Int("scoring_warnings", summary.ScoringWarnings),
		slog.Duration("took", summary.Duration),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		c.logger.Error("check failed", attrs...)
		return
	}
	c.logger.Info("check completed", attrs...)
}

// State returns the current loop phase.
func (c *Controller) State() models.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Watermark returns the end of the last successfully processed interval.
func (c *Controller) Watermark() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watermark
}

// LastSummary returns the most recent check summary, or nil before the first
// check.
func (c *Controller) LastSummary() *models.CheckSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastSummary == nil {
		return nil
	}
	copied := *c.lastSummary
	return &copied
}

// ModelMetadata exposes the training metadata of the loaded model.
func (c *Controller) ModelMetadata() scoring.Metadata {
	return c.engine.Metadata()
}

func (c *Controller) setState(state models.State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) setLastSummary(summary models.CheckSummary) {
	c.mu.Lock()
	c.lastSummary = &summary
	c.mu.Unlock()
}
