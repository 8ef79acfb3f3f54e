package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/sentimetry/pipeline/internal/notify"
	"github.com/sentimetry/pipeline/internal/store"
	"github.com/sentimetry/pipeline/pkg/duck"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []notify.RunEvent
}

func (c *capturePublisher) PublishRun(_ context.Context, event notify.RunEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) Events() []notify.RunEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.RunEvent(nil), c.events...)
}

func testStore(t *testing.T) (*store.Store, duck.DB) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	db, err := duck.NewDB(t.Context(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.NewStore(store.StoreConfig{Logger: log, DB: db})
	require.NoError(t, err)
	require.NoError(t, s.CreateTablesIfNotExists())
	require.NoError(t, s.CreateOrReplaceViews(t.Context()))
	return s, db
}

func testPipeline(t *testing.T, cfg Config) (*Pipeline, *capturePublisher) {
	t.Helper()

	events := &capturePublisher{}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Events == nil {
		cfg.Events = events
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p, events
}

func testDate(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := time.Parse(time.DateOnly, value)
	require.NoError(t, err)
	return date
}

func TestPipeline_New(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		s, _ := testStore(t)
		_, err := New(Config{Store: s})
		require.ErrorContains(t, err, "logger is required")
	})

	t.Run("missing store", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))})
		require.ErrorContains(t, err, "store is required")
	})
}

func TestPipeline_RunDates(t *testing.T) {
	t.Parallel()

	date := testDate(t, "2024-01-01")

	t.Run("processes a partition end to end", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC))
		p, events := testPipeline(t, Config{Store: s, Clock: clock})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:           "t1",
				Text:         "I love this!",
				CreatedAt:    time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC),
				AuthorID:     "a1",
				Lang:         "en",
				LikeCount:    10,
				RetweetCount: 2,
				CollectedAt:  time.Date(2024, 1, 1, 10, 16, 0, 0, time.UTC),
			},
			{
				ID:          "t2",
				Text:        "This is terrible",
				CreatedAt:   time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC),
				AuthorID:    "a2",
				Lang:        "en",
				LikeCount:   1,
				CollectedAt: time.Date(2024, 1, 1, 10, 46, 0, 0, time.UTC),
			},
		}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		require.Equal(t, store.RunStatusCompleted, results[0].Status)
		require.EqualValues(t, 2, results[0].RawCount)
		require.EqualValues(t, 2, results[0].ProcessedCount)
		require.Zero(t, results[0].MalformedCount)
		require.Zero(t, results[0].FilteredCount)

		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Equal(t, "positive", rows[0].SentimentLabel)
		require.Equal(t, 10, rows[0].TweetHour)
		require.Equal(t, "negative", rows[1].SentimentLabel)
		require.Equal(t, 10, rows[1].TweetHour)

		trends, err := s.GetHourlyTrends(ctx, date)
		require.NoError(t, err)
		require.Len(t, trends, 1)
		require.EqualValues(t, 1, trends[0].PositiveCount)
		require.EqualValues(t, 1, trends[0].NegativeCount)
		require.EqualValues(t, 2, trends[0].TotalCount)

		daily, err := s.GetDailyTrends(ctx, 0)
		require.NoError(t, err)
		require.Len(t, daily, 2)

		runs, err := s.GetRunsForDate(ctx, date)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, store.RunStatusCompleted, runs[0].Status)
		require.EqualValues(t, 2, runs[0].RawCount)
		require.EqualValues(t, 2, runs[0].ProcessedCount)
		require.Equal(t, clock.Now().UTC(), runs[0].StartedAt)

		published := events.Events()
		require.Len(t, published, 1)
		require.Equal(t, "2024-01-01", published[0].Date)
		require.Equal(t, store.RunStatusCompleted, published[0].Status)
		require.EqualValues(t, 2, published[0].ProcessedCount)
	})

	t.Run("collapses duplicate deliveries", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:          "t1",
				Text:        "good",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
			},
			{
				ID:          "t1",
				Text:        "good, edited to great",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
			},
		}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.EqualValues(t, 2, results[0].RawCount)
		require.EqualValues(t, 1, results[0].ProcessedCount)

		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "good, edited to great", rows[0].Text)
		require.Equal(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), rows[0].CollectedAt)
	})

	t.Run("processes records without author attribution", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		// The collector may omit author_id and lang; neither makes a
		// record malformed, and both land as NULLs in the raw partition.
		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:          "t1",
				Text:        "I love this!",
				CreatedAt:   time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC),
				LikeCount:   10,
				CollectedAt: time.Date(2024, 1, 1, 10, 16, 0, 0, time.UTC),
			},
			{
				ID:          "t2",
				Text:        "This is terrible",
				CreatedAt:   time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC),
				LikeCount:   1,
				CollectedAt: time.Date(2024, 1, 1, 10, 46, 0, 0, time.UTC),
			},
		}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		require.Equal(t, store.RunStatusCompleted, results[0].Status)
		require.EqualValues(t, 2, results[0].ProcessedCount)
		require.Zero(t, results[0].MalformedCount)

		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Empty(t, rows[0].AuthorID)
		require.Empty(t, rows[0].Lang)
		require.Equal(t, "positive", rows[0].SentimentLabel)
		require.Equal(t, "negative", rows[1].SentimentLabel)
	})

	t.Run("breaks exact duplicate ties deterministically", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		// Identical (id, collected_at): neither delivery is newer, so the
		// greater text wins no matter which row the engine returns first.
		collected := time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC)
		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:          "t1",
				Text:        "zulu take",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: collected,
			},
			{
				ID:          "t1",
				Text:        "alpha take",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: collected,
			},
		}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.EqualValues(t, 1, results[0].ProcessedCount)

		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "zulu take", rows[0].Text)
	})

	t.Run("excludes malformed records", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				// No id.
				Text:        "orphan",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
				TweetDate:   date,
			},
			{
				// No creation time.
				ID:          "t2",
				Text:        "timeless",
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
				TweetDate:   date,
			},
			{
				// Filed days away from its creation date.
				ID:          "t3",
				Text:        "drifted",
				CreatedAt:   time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
				TweetDate:   date,
			},
			{
				ID:          "t4",
				Text:        "good",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
				TweetDate:   date,
			},
		}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		require.EqualValues(t, 4, results[0].RawCount)
		require.EqualValues(t, 1, results[0].ProcessedCount)
		require.EqualValues(t, 3, results[0].MalformedCount)

		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "t4", rows[0].ID)
	})

	t.Run("tolerates collection lag within the allowance", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		// Created just before midnight, filed under the next day.
		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{{
			ID:          "t1",
			Text:        "good",
			CreatedAt:   time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC),
			CollectedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
			TweetDate:   date,
		}}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.EqualValues(t, 1, results[0].ProcessedCount)
		require.Zero(t, results[0].MalformedCount)
	})

	t.Run("applies feed filters when configured", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{
			Store:        s,
			Clock:        clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
			Languages:    []string{"en"},
			SkipRetweets: true,
		})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:          "t1",
				Text:        "good",
				Lang:        "en",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
			},
			{
				ID:          "t2",
				Text:        "bueno",
				Lang:        "es",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
			},
			{
				ID:          "t3",
				Text:        "RT @someone: good",
				Lang:        "en",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
			},
		}))

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.EqualValues(t, 3, results[0].RawCount)
		require.EqualValues(t, 1, results[0].ProcessedCount)
		require.EqualValues(t, 2, results[0].FilteredCount)

		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "t1", rows[0].ID)
	})

	t.Run("rerun reproduces identical rows", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:          "t1",
				Text:        "very good",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
			},
			{
				ID:          "t2",
				Text:        "not great",
				CreatedAt:   time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 11, 1, 0, 0, time.UTC),
			},
		}))

		_, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		first, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)

		_, err = p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		second, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)

		require.Equal(t, first, second)
		require.Len(t, second, 2)

		runs, err := s.GetRunsForDate(ctx, date)
		require.NoError(t, err)
		require.Len(t, runs, 2)
	})

	t.Run("records rollup failures", func(t *testing.T) {
		t.Parallel()

		s, db := testStore(t)
		p, events := testPipeline(t, Config{Store: s, Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{{
			ID:          "t1",
			Text:        "good",
			CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
		}}))

		conn, err := db.Conn(ctx)
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s.%s.daily_engagement", db.Catalog(), db.Schema()))
		require.NoError(t, err)
		require.NoError(t, conn.Close())

		results, err := p.RunDates(ctx, []time.Time{date})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Error(t, results[0].Err)
		require.Equal(t, store.RunStatusFailed, results[0].Status)

		// The swap already committed; the failure is isolated to the rollup.
		rows, err := s.GetProcessedTweets(ctx, date)
		require.NoError(t, err)
		require.Len(t, rows, 1)

		runs, err := s.GetRunsForDate(ctx, date)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, store.RunStatusFailed, runs[0].Status)
		require.Contains(t, runs[0].Error, "daily_engagement")

		published := events.Events()
		require.Len(t, published, 1)
		require.Equal(t, store.RunStatusFailed, published[0].Status)
	})

	t.Run("no dates is a no-op", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s})

		results, err := p.RunDates(context.Background(), nil)
		require.NoError(t, err)
		require.Empty(t, results)
	})
}

func TestPipeline_RunStale(t *testing.T) {
	t.Parallel()

	t.Run("processes stale partitions then settles", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
		p, _ := testPipeline(t, Config{Store: s, Clock: clock})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{
			{
				ID:          "t1",
				Text:        "good",
				CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
			},
			{
				ID:          "t2",
				Text:        "bad",
				CreatedAt:   time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
				CollectedAt: time.Date(2024, 1, 2, 9, 1, 0, 0, time.UTC),
			},
		}))

		results, err := p.RunStale(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.True(t, p.Ready())

		// Nothing changed: the next cycle finds no work.
		clock.Advance(time.Hour)
		results, err = p.RunStale(ctx)
		require.NoError(t, err)
		require.Empty(t, results)

		// Late data reopens exactly one partition.
		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{{
			ID:          "t3",
			Text:        "late addition",
			CreatedAt:   time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC),
			CollectedAt: clock.Now().UTC().Add(30 * time.Minute),
		}}))
		clock.Advance(time.Hour)
		results, err = p.RunStale(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, testDate(t, "2024-01-01"), results[0].Date)
		require.EqualValues(t, 2, results[0].ProcessedCount)
	})

	t.Run("ignores partitions outside the lookback window", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		p, _ := testPipeline(t, Config{Store: s, Clock: clock, Lookback: 7 * 24 * time.Hour})
		ctx := context.Background()

		require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{{
			ID:          "t1",
			Text:        "ancient",
			CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
		}}))

		results, err := p.RunStale(ctx)
		require.NoError(t, err)
		require.Empty(t, results)
	})

	t.Run("empty warehouse is a successful cycle", func(t *testing.T) {
		t.Parallel()

		s, _ := testStore(t)
		p, _ := testPipeline(t, Config{Store: s})

		results, err := p.RunStale(context.Background())
		require.NoError(t, err)
		require.Empty(t, results)
		require.True(t, p.Ready())
	})
}

func TestPipeline_Start(t *testing.T) {
	t.Parallel()

	s, _ := testStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	p, _ := testPipeline(t, Config{Store: s, Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	date := testDate(t, "2024-01-01")
	require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{{
		ID:          "t1",
		Text:        "good",
		CreatedAt:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CollectedAt: time.Date(2024, 1, 1, 9, 1, 0, 0, time.UTC),
	}}))

	p.Start(ctx)
	require.NoError(t, p.WaitReady(ctx))

	rows, err := s.GetProcessedTweets(ctx, date)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// New data lands between ticks; the next cycle picks it up.
	require.NoError(t, s.AppendRawTweets(ctx, []store.RawTweet{{
		ID:          "t2",
		Text:        "bad",
		CreatedAt:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		CollectedAt: clock.Now().UTC().Add(time.Minute),
	}}))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(p.cfg.Interval)

	require.Eventually(t, func() bool {
		rows, err := s.GetProcessedTweets(ctx, date)
		return err == nil && len(rows) == 2
	}, 10*time.Second, 20*time.Millisecond)
}

func TestPipeline_Malformed(t *testing.T) {
	t.Parallel()

	s, _ := testStore(t)
	p, _ := testPipeline(t, Config{Store: s})
	date := testDate(t, "2024-01-01")

	valid := store.RawTweet{
		ID:        "t1",
		Text:      "fine",
		CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	require.False(t, p.malformed(valid, date))

	zeroCreated := valid
	zeroCreated.CreatedAt = time.Time{}
	require.True(t, p.malformed(zeroCreated, date))

	badEncoding := valid
	badEncoding.Text = "broken \xff\xfe text"
	require.True(t, p.malformed(badEncoding, date))

	drifted := valid
	drifted.CreatedAt = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	require.True(t, p.malformed(drifted, date))

	dayEarly := valid
	dayEarly.CreatedAt = time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)
	require.False(t, p.malformed(dayEarly, date))
}
