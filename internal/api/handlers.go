package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sentimetry/pipeline/internal/store"
)

var (
	errQueryRequired       = errors.New("query is required")
	errQueryMultiStatement = errors.New("only a single statement is allowed")
	errQueryNotReadOnly    = errors.New("only SELECT and WITH queries are allowed")
)

type SummaryResponse struct {
	// TotalProcessed is the all-time processed tweet count.
	TotalProcessed int64 `json:"total_processed"`
	// LatestDate is the newest processed partition, empty on a fresh warehouse.
	LatestDate string `json:"latest_date,omitempty"`
	// LastDayCounts is the sentiment distribution of the newest partition.
	LastDayCounts map[string]int64 `json:"last_day_counts,omitempty"`
	// LastDayAvgPolarity is the mean polarity of the newest partition.
	LastDayAvgPolarity float64 `json:"last_day_avg_polarity"`
}

type DailyTrendRow struct {
	Date              string  `json:"date"`
	SentimentLabel    string  `json:"sentiment_label"`
	TweetCount        int64   `json:"tweet_count"`
	AvgPolarity       float64 `json:"avg_polarity"`
	TotalLikes        int64   `json:"total_likes"`
	TotalRetweets     int64   `json:"total_retweets"`
	SentimentCategory string  `json:"sentiment_category"`
}

type HourlyTrendRow struct {
	Date          string `json:"date"`
	Hour          int    `json:"hour"`
	PositiveCount int64  `json:"positive_count"`
	NegativeCount int64  `json:"negative_count"`
	NeutralCount  int64  `json:"neutral_count"`
	TotalCount    int64  `json:"total_count"`
}

type QueryRequest struct {
	Query string `json:"query"`
}

type QueryResponse struct {
	Columns   []string `json:"columns"`
	Types     []string `json:"types"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, store.Schema)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var summary *store.Summary
	if item := s.summary.Get(summaryCacheKey); item != nil {
		summary = item.Value()
	} else {
		var err error
		summary, err = s.store.GetSummary(r.Context())
		if err != nil {
			s.log.Error("api: failed to compute summary", "error", err)
			http.Error(w, "failed to compute summary", http.StatusInternalServerError)
			return
		}
		s.summary.Set(summaryCacheKey, summary, ttlcache.DefaultTTL)
	}

	resp := SummaryResponse{
		TotalProcessed:     summary.TotalProcessed,
		LastDayCounts:      summary.LastDayCounts,
		LastDayAvgPolarity: summary.LastDayAvgPolarity,
	}
	if !summary.LatestDate.IsZero() {
		resp.LatestDate = summary.LatestDate.Format(time.DateOnly)
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleDailyTrends(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.DefaultTrendDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	trends, err := s.store.GetDailyTrends(r.Context(), days)
	if err != nil {
		s.log.Error("api: failed to read daily trends", "error", err)
		http.Error(w, "failed to read daily trends", http.StatusInternalServerError)
		return
	}

	rows := make([]DailyTrendRow, 0, len(trends))
	for _, t := range trends {
		rows = append(rows, DailyTrendRow{
			Date:              t.Date.Format(time.DateOnly),
			SentimentLabel:    t.SentimentLabel,
			TweetCount:        t.TweetCount,
			AvgPolarity:       t.AvgPolarity,
			TotalLikes:        t.TotalLikes,
			TotalRetweets:     t.TotalRetweets,
			SentimentCategory: t.SentimentCategory,
		})
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleHourlyTrends(w http.ResponseWriter, r *http.Request) {
	var (
		trends []store.HourlyTrend
		err    error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, parseErr := time.Parse(time.DateOnly, raw)
		if parseErr != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		trends, err = s.store.GetHourlyTrends(r.Context(), date)
	} else {
		trends, err = s.store.GetHourlyTrendsRange(r.Context(), s.cfg.DefaultTrendDays)
	}
	if err != nil {
		s.log.Error("api: failed to read hourly trends", "error", err)
		http.Error(w, "failed to read hourly trends", http.StatusInternalServerError)
		return
	}

	rows := make([]HourlyTrendRow, 0, len(trends))
	for _, t := range trends {
		rows = append(rows, HourlyTrendRow{
			Date:          t.Date.Format(time.DateOnly),
			Hour:          t.Hour,
			PositiveCount: t.PositiveCount,
			NegativeCount: t.NegativeCount,
			NeutralCount:  t.NeutralCount,
			TotalCount:    t.TotalCount,
		})
	}
	s.writeJSON(w, rows)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	query, err := validateReadOnlyQuery(req.Query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.store.Query(r.Context(), query, s.cfg.MaxQueryRows)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		// DuckDB error text carries no credentials and is what a SQL
		// console user expects to see.
		s.writeJSON(w, QueryResponse{Error: err.Error(), ElapsedMs: elapsed})
		return
	}

	s.writeJSON(w, QueryResponse{
		Columns:   result.Columns,
		Types:     result.Types,
		Rows:      result.Rows,
		RowCount:  len(result.Rows),
		Truncated: result.Truncated,
		ElapsedMs: elapsed,
	})
}

// validateReadOnlyQuery enforces the read-only contract of /api/query: a
// single SELECT or WITH statement, nothing else.
func validateReadOnlyQuery(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	query = strings.TrimSuffix(query, ";")
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errQueryRequired
	}
	if strings.Contains(query, ";") {
		return "", errQueryMultiStatement
	}
	upper := strings.ToUpper(query)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", errQueryNotReadOnly
	}
	return query, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("api: failed to encode response", "error", err)
	}
}
