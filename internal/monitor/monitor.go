package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"github.com/slack-go/slack"

	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/store"
)

const (
	defaultInterval = 15 * time.Minute
	defaultMaxLag   = 24 * time.Hour
	defaultAlertTTL = 6 * time.Hour

	freshnessAlertKey = "freshness"
)

type SlackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  *store.Store

	// Slack and Channel are optional; without them stale data is only
	// logged and counted.
	Slack   SlackClient
	Channel string

	// Interval is the check cadence.
	Interval time.Duration
	// MaxLag is how old the last successful run may get before alerting.
	MaxLag time.Duration
	// AlertTTL suppresses repeat alerts for the same ongoing condition.
	AlertTTL time.Duration
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
	if cfg.MaxLag <= 0 {
		cfg.MaxLag = defaultMaxLag
	}
	if cfg.AlertTTL <= 0 {
		cfg.AlertTTL = defaultAlertTTL
	}
	return nil
}

// Monitor watches warehouse freshness. It observes and alerts only; it never
// drives or fails the pipeline.
type Monitor struct {
	log     *slog.Logger
	cfg     Config
	store   *store.Store
	alerted *ttlcache.Cache[string, time.Time]
}

func New(cfg Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	alerted := ttlcache.New(
		ttlcache.WithTTL[string, time.Time](cfg.AlertTTL),
	)

	return &Monitor{
		log:     cfg.Logger,
		cfg:     cfg,
		store:   cfg.Store,
		alerted: alerted,
	}, nil
}

func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.log.Info("monitor: starting freshness checks", "interval", m.cfg.Interval, "max_lag", m.cfg.MaxLag)

		if err := m.Check(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.log.Error("monitor: check failed", "error", err)
		}
		ticker := m.cfg.Clock.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if err := m.Check(ctx); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					m.log.Error("monitor: check failed", "error", err)
				}
			}
		}
	}()
}

// Check reads warehouse freshness, updates the age gauge, and alerts when
// the last successful run is older than MaxLag.
func (m *Monitor) Check(ctx context.Context) error {
	fresh, err := m.store.GetFreshness(ctx)
	if err != nil {
		return fmt.Errorf("failed to read freshness: %w", err)
	}
	if fresh.LastSuccessfulRun.IsZero() {
		m.log.Debug("monitor: no successful runs yet")
		return nil
	}

	age := m.cfg.Clock.Now().UTC().Sub(fresh.LastSuccessfulRun)
	metrics.ProcessedDataAgeHours.Set(age.Hours())
	m.log.Debug("monitor: freshness checked",
		"age_hours", age.Hours(), "latest_partition", fresh.LatestPartition.Format(time.DateOnly))

	if age > m.cfg.MaxLag {
		m.alert(ctx, fresh, age)
	}
	return nil
}

func (m *Monitor) alert(ctx context.Context, fresh *store.Freshness, age time.Duration) {
	if m.alerted.Get(freshnessAlertKey) != nil {
		m.log.Debug("monitor: alert suppressed", "age_hours", age.Hours())
		return
	}

	if m.cfg.Slack == nil || m.cfg.Channel == "" {
		m.log.Warn("monitor: processed data is stale",
			"age_hours", age.Hours(),
			"last_run", fresh.LastSuccessfulRun.Format(time.RFC3339),
			"latest_partition", fresh.LatestPartition.Format(time.DateOnly))
		m.alerted.Set(freshnessAlertKey, m.cfg.Clock.Now(), ttlcache.DefaultTTL)
		return
	}

	text := fmt.Sprintf(
		"sentiment pipeline is stale: last successful run %s (%.1fh ago), newest processed partition %s",
		fresh.LastSuccessfulRun.Format(time.RFC3339), age.Hours(), fresh.LatestPartition.Format(time.DateOnly))
	if _, _, err := m.cfg.Slack.PostMessageContext(ctx, m.cfg.Channel, slack.MsgOptionText(text, false)); err != nil {
		metrics.AlertsSentTotal.WithLabelValues("error").Inc()
		m.log.Error("monitor: failed to send alert", "error", err)
		return
	}
	metrics.AlertsSentTotal.WithLabelValues("ok").Inc()
	m.alerted.Set(freshnessAlertKey, m.cfg.Clock.Now(), ttlcache.DefaultTTL)
	m.log.Info("monitor: alert sent", "channel", m.cfg.Channel, "age_hours", age.Hours())
}
