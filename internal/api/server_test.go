package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentimetry/pipeline/internal/store"
	"github.com/sentimetry/pipeline/pkg/duck"
	"github.com/sentimetry/pipeline/pkg/sentiment"
)

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *store.Store {
	db, err := duck.NewDB(t.Context(), "", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	s, err := store.NewStore(store.StoreConfig{Logger: testLogger(t), DB: db})
	require.NoError(t, err)
	require.NoError(t, s.CreateTablesIfNotExists())
	require.NoError(t, s.CreateOrReplaceViews(context.Background()))
	return s
}

// seedPartition writes two scored tweets for 2024-01-01 and refreshes the
// rollups, mirroring what one pipeline partition run produces.
func seedPartition(t *testing.T, s *store.Store) time.Time {
	ctx := context.Background()
	date, err := time.Parse(time.DateOnly, "2024-01-01")
	require.NoError(t, err)

	var tweets []store.ProcessedTweet
	for _, tc := range []struct {
		id, text       string
		likes, retweet int64
	}{
		{"1", "I love this!", 10, 2},
		{"2", "This is terrible", 1, 0},
	} {
		score := sentiment.Analyze(tc.text)
		tweets = append(tweets, store.ProcessedTweet{
			RawTweet: store.RawTweet{
				ID:           tc.id,
				Text:         tc.text,
				CreatedAt:    date.Add(10 * time.Hour),
				AuthorID:     "author-" + tc.id,
				Lang:         "en",
				RetweetCount: tc.retweet,
				LikeCount:    tc.likes,
				CollectedAt:  date.Add(11 * time.Hour),
				TweetDate:    date,
			},
			ProcessedAt:    date.Add(12 * time.Hour),
			TweetHour:      10,
			Polarity:       score.Polarity,
			Subjectivity:   score.Subjectivity,
			SentimentLabel: string(score.Label),
			Confidence:     score.Confidence,
		})
	}
	require.NoError(t, s.ReplaceProcessedTweets(ctx, date, tweets))
	require.NoError(t, s.RefreshHourlySentiment(ctx, date))
	require.NoError(t, s.RefreshDailySentiment(ctx, date))
	return date
}

func testServer(t *testing.T, s *store.Store, ready ReadyChecker) *Server {
	srv, err := New(Config{
		Logger: testLogger(t),
		Store:  s,
		Ready:  ready,
	})
	require.NoError(t, err)
	return srv
}

type staticReady bool

func (r staticReady) Ready() bool { return bool(r) }

func TestAPI_Server_Health(t *testing.T) {
	t.Parallel()

	t.Run("healthz_is_always_ok", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t, testStore(t), nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz_reflects_pipeline_readiness", func(t *testing.T) {
		t.Parallel()
		s := testStore(t)

		srv := testServer(t, s, staticReady(false))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		srv = testServer(t, s, staticReady(true))
		rec = httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz_without_checker_is_ok", func(t *testing.T) {
		t.Parallel()
		srv := testServer(t, testStore(t), nil)

		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAPI_Server_Catalog(t *testing.T) {
	t.Parallel()

	srv := testServer(t, testStore(t), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var schema store.SchemaInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	names := make(map[string]string)
	for _, table := range schema.Tables {
		names[table.Name] = table.Type
	}
	require.Equal(t, "table", names["raw_tweets"])
	require.Equal(t, "table", names["processed_tweets"])
	require.Equal(t, "view", names["sentiment_trends"])
	require.Equal(t, "view", names["hourly_trends"])
}

func TestAPI_Server_Summary(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	seedPartition(t, s)
	srv := testServer(t, s, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.TotalProcessed)
	require.Equal(t, "2024-01-01", resp.LatestDate)
	require.Equal(t, int64(1), resp.LastDayCounts["positive"])
	require.Equal(t, int64(1), resp.LastDayCounts["negative"])
}

func TestAPI_Server_Trends(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	seedPartition(t, s)
	srv := testServer(t, s, nil)

	t.Run("daily_trends", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trends/daily?days=7", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []DailyTrendRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		for _, row := range rows {
			require.Equal(t, "2024-01-01", row.Date)
			require.Equal(t, int64(1), row.TweetCount)
		}
	})

	t.Run("daily_trends_rejects_bad_days", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trends/daily?days=x", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("hourly_trends_for_date", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trends/hourly?date=2024-01-01", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []HourlyTrendRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		require.Equal(t, 10, rows[0].Hour)
		require.Equal(t, int64(1), rows[0].PositiveCount)
		require.Equal(t, int64(1), rows[0].NegativeCount)
		require.Equal(t, int64(0), rows[0].NeutralCount)
		require.Equal(t, int64(2), rows[0].TotalCount)
	})

	t.Run("hourly_trends_rejects_bad_date", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trends/hourly?date=Jan1", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_Server_Query(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	seedPartition(t, s)
	srv := testServer(t, s, nil)

	post := func(t *testing.T, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		return rec
	}

	t.Run("runs_select", func(t *testing.T) {
		rec := post(t, `{"query": "SELECT COUNT(*) AS n FROM processed_tweets;"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Empty(t, resp.Error)
		require.Equal(t, []string{"n"}, resp.Columns)
		require.Equal(t, 1, resp.RowCount)
	})

	t.Run("rejects_writes", func(t *testing.T) {
		rec := post(t, `{"query": "DELETE FROM processed_tweets"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects_multiple_statements", func(t *testing.T) {
		rec := post(t, `{"query": "SELECT 1; DELETE FROM processed_tweets"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects_empty_query", func(t *testing.T) {
		rec := post(t, `{"query": "  ;  "}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports_sql_errors_in_body", func(t *testing.T) {
		rec := post(t, `{"query": "SELECT * FROM no_such_table"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Contains(t, resp.Error, "no_such_table")
	})

	t.Run("truncates_large_results", func(t *testing.T) {
		small, err := New(Config{
			Logger:       testLogger(t),
			Store:        s,
			MaxQueryRows: 1,
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/query",
			bytes.NewBufferString(`{"query": "SELECT id FROM processed_tweets ORDER BY id"}`))
		rec := httptest.NewRecorder()
		small.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.Truncated)
		require.Equal(t, 1, resp.RowCount)
	})
}
