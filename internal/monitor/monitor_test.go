package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/sentimetry/pipeline/internal/store"
	"github.com/sentimetry/pipeline/pkg/duck"
)

type fakeSlack struct {
	mu       sync.Mutex
	attempts []string
	err      error
}

func (f *fakeSlack) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, channelID)
	if f.err != nil {
		return "", "", f.err
	}
	return channelID, "1700000000.000100", nil
}

func (f *fakeSlack) Attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

func (f *fakeSlack) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func testStore(t *testing.T) *store.Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	db, err := duck.NewDB(t.Context(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.NewStore(store.StoreConfig{Logger: log, DB: db})
	require.NoError(t, err)
	require.NoError(t, s.CreateTablesIfNotExists())
	require.NoError(t, s.CreateOrReplaceViews(t.Context()))
	return s
}

func testMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func seedRun(t *testing.T, s *store.Store, date string, startedAt time.Time) {
	t.Helper()

	day, err := time.Parse(time.DateOnly, date)
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(t.Context(), store.PipelineRun{
		Date:           day,
		StartedAt:      startedAt,
		CompletedAt:    startedAt.Add(30 * time.Second),
		Status:         store.RunStatusCompleted,
		RawCount:       10,
		ProcessedCount: 9,
		MalformedCount: 1,
	}))
}

func TestMonitor_New(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{Store: testStore(t)})
		require.ErrorContains(t, err, "logger is required")
	})

	t.Run("missing store", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))})
		require.ErrorContains(t, err, "store is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		m := testMonitor(t, Config{Store: testStore(t)})
		require.Equal(t, defaultInterval, m.cfg.Interval)
		require.Equal(t, defaultMaxLag, m.cfg.MaxLag)
		require.Equal(t, defaultAlertTTL, m.cfg.AlertTTL)
		require.NotNil(t, m.cfg.Clock)
	})
}

func TestMonitor_Check(t *testing.T) {
	t.Parallel()

	t.Run("empty warehouse is quiet", func(t *testing.T) {
		t.Parallel()

		slackClient := &fakeSlack{}
		m := testMonitor(t, Config{
			Store:   testStore(t),
			Clock:   clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)),
			Slack:   slackClient,
			Channel: "#pipeline-alerts",
		})

		require.NoError(t, m.Check(t.Context()))
		require.Empty(t, slackClient.Attempts())
	})

	t.Run("fresh data does not alert", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
		s := testStore(t)
		seedRun(t, s, "2024-01-10", clock.Now().UTC().Add(-time.Hour))

		slackClient := &fakeSlack{}
		m := testMonitor(t, Config{
			Store:   s,
			Clock:   clock,
			Slack:   slackClient,
			Channel: "#pipeline-alerts",
		})

		require.NoError(t, m.Check(t.Context()))
		require.Empty(t, slackClient.Attempts())
	})

	t.Run("stale data alerts once", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
		s := testStore(t)
		seedRun(t, s, "2024-01-08", clock.Now().UTC().Add(-48*time.Hour))

		slackClient := &fakeSlack{}
		m := testMonitor(t, Config{
			Store:   s,
			Clock:   clock,
			Slack:   slackClient,
			Channel: "#pipeline-alerts",
		})

		require.NoError(t, m.Check(t.Context()))
		require.Equal(t, []string{"#pipeline-alerts"}, slackClient.Attempts())

		// Repeat checks inside the TTL window stay silent.
		require.NoError(t, m.Check(t.Context()))
		require.Equal(t, []string{"#pipeline-alerts"}, slackClient.Attempts())
	})

	t.Run("failed send is retried on the next check", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
		s := testStore(t)
		seedRun(t, s, "2024-01-08", clock.Now().UTC().Add(-48*time.Hour))

		slackClient := &fakeSlack{}
		slackClient.setErr(errors.New("slack is down"))
		m := testMonitor(t, Config{
			Store:   s,
			Clock:   clock,
			Slack:   slackClient,
			Channel: "#pipeline-alerts",
		})

		require.NoError(t, m.Check(t.Context()))
		require.Len(t, slackClient.Attempts(), 1)

		slackClient.setErr(nil)
		require.NoError(t, m.Check(t.Context()))
		require.Len(t, slackClient.Attempts(), 2)

		require.NoError(t, m.Check(t.Context()))
		require.Len(t, slackClient.Attempts(), 2)
	})

	t.Run("without slack stale data only logs", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
		s := testStore(t)
		seedRun(t, s, "2024-01-08", clock.Now().UTC().Add(-48*time.Hour))

		m := testMonitor(t, Config{Store: s, Clock: clock})
		require.NoError(t, m.Check(t.Context()))
	})
}

func TestMonitor_Start(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	s := testStore(t)
	seedRun(t, s, "2024-01-10", clock.Now().UTC().Add(-time.Hour))

	slackClient := &fakeSlack{}
	m := testMonitor(t, Config{
		Store:    s,
		Clock:    clock,
		Slack:    slackClient,
		Channel:  "#pipeline-alerts",
		Interval: 15 * time.Minute,
		MaxLag:   24 * time.Hour,
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	m.Start(ctx)

	// The initial check sees fresh data and stays quiet.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Empty(t, slackClient.Attempts())

	// Two days later the same run is stale and the next tick alerts.
	clock.Advance(48 * time.Hour)
	require.Eventually(t, func() bool {
		return len(slackClient.Attempts()) == 1
	}, 10*time.Second, 20*time.Millisecond)
}
