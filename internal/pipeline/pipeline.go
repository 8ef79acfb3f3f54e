package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/notify"
	"github.com/sentimetry/pipeline/internal/store"
	"github.com/sentimetry/pipeline/pkg/sentiment"
)

const (
	defaultInterval         = 5 * time.Minute
	defaultLookback         = 7 * 24 * time.Hour
	defaultLikeThreshold    = 10
	defaultDateLagAllowance = 24 * time.Hour
)

// RunEventPublisher receives one event per finished partition run.
type RunEventPublisher interface {
	PublishRun(ctx context.Context, event notify.RunEvent)
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  *store.Store
	Events RunEventPublisher

	// Interval is the service-mode cycle cadence.
	Interval time.Duration
	// Lookback bounds work discovery to recent partitions; <= 0 means the
	// default window.
	Lookback time.Duration
	// Workers is the partition fan-out width.
	Workers int
	// LikeThreshold feeds the daily_engagement rollup.
	LikeThreshold int64
	// DateLagAllowance is how far created_at may drift from the partition
	// date before the record counts as malformed. Collectors file records
	// shortly after midnight, so a day of drift is legitimate.
	DateLagAllowance time.Duration

	// Languages is an optional allow-list feed filter; empty keeps all.
	Languages []string
	// SkipRetweets drops "RT @" records when set.
	SkipRetweets bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.LikeThreshold <= 0 {
		cfg.LikeThreshold = defaultLikeThreshold
	}
	if cfg.DateLagAllowance <= 0 {
		cfg.DateLagAllowance = defaultDateLagAllowance
	}
	return nil
}

// PartitionResult is the outcome of one partition run.
type PartitionResult struct {
	Date           time.Time
	Status         string
	RawCount       int64
	ProcessedCount int64
	MalformedCount int64
	FilteredCount  int64
	Duration       time.Duration
	Err            error
}

// Pipeline processes raw partitions into scored rows and rollups. Partitions
// fan out across a worker pool; a per-partition lock keeps each one
// single-writer in-process, and the store's conflict retry covers the rest.
type Pipeline struct {
	log        *slog.Logger
	cfg        Config
	store      *store.Store
	classifier *sentiment.Classifier
	scores     *ristretto.Cache
	pool       pond.ResultPool[PartitionResult]

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	classifier, err := sentiment.DefaultClassifier()
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}

	scores, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     100_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create score cache: %w", err)
	}

	return &Pipeline{
		log:        cfg.Logger,
		cfg:        cfg,
		store:      cfg.Store,
		classifier: classifier,
		scores:     scores,
		pool:       pond.NewResultPool[PartitionResult](cfg.Workers),
		locks:      make(map[string]*sync.Mutex),
		readyCh:    make(chan struct{}),
	}, nil
}

func (p *Pipeline) Ready() bool {
	select {
	case <-p.readyCh:
		return true
	default:
		return false
	}
}

func (p *Pipeline) WaitReady(ctx context.Context) error {
	select {
	case <-p.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for pipeline: %w", ctx.Err())
	}
}

// Start runs the service-mode loop: one stale-partition cycle immediately,
// then one per tick.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		p.log.Info("pipeline: starting run loop", "interval", p.cfg.Interval)

		if _, err := p.RunStale(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.log.Error("pipeline: initial cycle failed", "error", err)
		}
		ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if _, err := p.RunStale(ctx); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					p.log.Error("pipeline: cycle failed", "error", err)
				}
			}
		}
	}()
}

// RunStale discovers stale partitions inside the lookback window and
// processes them. An empty warehouse is a successful, empty cycle.
func (p *Pipeline) RunStale(ctx context.Context) ([]PartitionResult, error) {
	since := p.cfg.Clock.Now().UTC().Add(-p.cfg.Lookback).Truncate(24 * time.Hour)
	statuses, err := p.store.ListPartitionStatus(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition status: %w", err)
	}

	dates := make([]time.Time, 0, len(statuses))
	for _, status := range statuses {
		if status.Stale() {
			dates = append(dates, status.Date)
		}
	}
	p.log.Debug("pipeline: discovered work", "partitions", len(statuses), "stale", len(dates))

	results, err := p.RunDates(ctx, dates)
	if err != nil {
		return results, err
	}
	p.readyOnce.Do(func() {
		close(p.readyCh)
		p.log.Info("pipeline: ready")
	})
	return results, nil
}

// RunDates processes the given partitions across the worker pool. Partition
// failures are isolated: every date gets a result, and the error return only
// reports cancellation.
func (p *Pipeline) RunDates(ctx context.Context, dates []time.Time) ([]PartitionResult, error) {
	if len(dates) == 0 {
		return nil, nil
	}

	group := p.pool.NewGroupContext(ctx)
	for _, date := range dates {
		date := date
		group.Submit(func() PartitionResult {
			return p.runPartition(ctx, date)
		})
	}
	results, err := group.Wait()
	if err != nil {
		return results, fmt.Errorf("failed to run partitions: %w", err)
	}

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	p.log.Info("pipeline: cycle completed", "partitions", len(results), "failed", failed)
	return results, nil
}

// lockPartition serializes runs of the same partition within this process.
func (p *Pipeline) lockPartition(key string) func() {
	p.locksMu.Lock()
	mu, ok := p.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		p.locks[key] = mu
	}
	p.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (p *Pipeline) runPartition(ctx context.Context, date time.Time) PartitionResult {
	date = date.UTC().Truncate(24 * time.Hour)
	unlock := p.lockPartition(date.Format(time.DateOnly))
	defer unlock()

	metrics.PartitionsInFlight.Inc()
	defer metrics.PartitionsInFlight.Dec()

	startedAt := p.cfg.Clock.Now().UTC()
	p.log.Debug("pipeline: partition run started", "date", date.Format(time.DateOnly))

	result := PartitionResult{Date: date, Status: store.RunStatusCompleted}
	counts, err := p.processPartition(ctx, date)
	result.RawCount = counts.raw
	result.ProcessedCount = counts.processed
	result.MalformedCount = counts.malformed
	result.FilteredCount = counts.filtered
	if err != nil {
		result.Status = store.RunStatusFailed
		result.Err = err
	} else if err := p.refreshAggregates(ctx, date); err != nil {
		result.Status = store.RunStatusFailed
		result.Err = err
	}

	completedAt := p.cfg.Clock.Now().UTC()
	result.Duration = completedAt.Sub(startedAt)

	run := store.PipelineRun{
		Date:           date,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		Status:         result.Status,
		RawCount:       result.RawCount,
		ProcessedCount: result.ProcessedCount,
		MalformedCount: result.MalformedCount,
		FilteredCount:  result.FilteredCount,
	}
	if result.Err != nil {
		run.Error = result.Err.Error()
	}
	if err := p.store.RecordRun(ctx, run); err != nil {
		p.log.Error("pipeline: failed to record run", "date", date.Format(time.DateOnly), "error", err)
		if result.Err == nil {
			result.Err = fmt.Errorf("failed to record run: %w", err)
		}
	}

	metrics.PartitionRunsTotal.WithLabelValues(result.Status).Inc()
	metrics.PartitionRunDuration.Observe(result.Duration.Seconds())

	if p.cfg.Events != nil {
		p.cfg.Events.PublishRun(ctx, notify.RunEvent{
			Date:           date.Format(time.DateOnly),
			Status:         result.Status,
			StartedAt:      startedAt,
			CompletedAt:    completedAt,
			DurationMs:     result.Duration.Milliseconds(),
			RawCount:       result.RawCount,
			ProcessedCount: result.ProcessedCount,
			MalformedCount: result.MalformedCount,
			FilteredCount:  result.FilteredCount,
			Error:          run.Error,
		})
	}

	if result.Err != nil {
		p.log.Error("pipeline: partition run failed",
			"date", date.Format(time.DateOnly), "duration", result.Duration.String(), "error", result.Err)
	} else {
		p.log.Info("pipeline: partition run completed",
			"date", date.Format(time.DateOnly),
			"raw", result.RawCount,
			"processed", result.ProcessedCount,
			"malformed", result.MalformedCount,
			"filtered", result.FilteredCount,
			"duration", result.Duration.String(),
		)
	}
	return result
}

// refreshAggregates recomputes the three rollups for one partition after its
// processed rows have been swapped in.
func (p *Pipeline) refreshAggregates(ctx context.Context, date time.Time) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.refreshAggregate(ctx, "hourly_sentiment", date, p.store.RefreshHourlySentiment)
	})
	g.Go(func() error {
		return p.refreshAggregate(ctx, "daily_sentiment", date, p.store.RefreshDailySentiment)
	})
	g.Go(func() error {
		return p.refreshAggregate(ctx, "daily_engagement", date, func(ctx context.Context, date time.Time) error {
			return p.store.RefreshDailyEngagement(ctx, date, p.cfg.LikeThreshold)
		})
	})
	return g.Wait()
}

func (p *Pipeline) refreshAggregate(ctx context.Context, name string, date time.Time, fn func(context.Context, time.Time) error) error {
	start := time.Now()
	err := fn(ctx, date)
	metrics.AggregateRefreshDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AggregateRefreshTotal.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("failed to refresh %s: %w", name, err)
	}
	metrics.AggregateRefreshTotal.WithLabelValues(name, "success").Inc()
	return nil
}
