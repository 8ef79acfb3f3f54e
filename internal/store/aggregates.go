package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sentimetry/pipeline/pkg/duck"
)

// DailyTrend is one sentiment_trends view row.
type DailyTrend struct {
	Date              time.Time
	SentimentLabel    string
	TweetCount        int64
	AvgPolarity       float64
	TotalLikes        int64
	TotalRetweets     int64
	SentimentCategory string
}

// HourlyTrend is one hourly_trends view row.
type HourlyTrend struct {
	Date          time.Time
	Hour          int
	PositiveCount int64
	NegativeCount int64
	NeutralCount  int64
	TotalCount    int64
}

// DailyRollup is one daily_sentiment partition collapsed across labels.
type DailyRollup struct {
	Date          time.Time
	TweetCount    int64
	AvgPolarity   float64
	TotalLikes    int64
	TotalRetweets int64
}

// Summary is the dashboard rollup: all-time processed volume plus the
// sentiment distribution of the newest partition.
type Summary struct {
	TotalProcessed     int64
	LatestDate         time.Time
	LastDayCounts      map[string]int64
	LastDayAvgPolarity float64
}

// RefreshHourlySentiment recomputes the hourly rollup for one partition from
// processed_tweets. The stale rows are deleted and the fresh ones inserted in
// a single transaction, so readers never observe a partial rollup.
func (s *Store) RefreshHourlySentiment(ctx context.Context, date time.Time) error {
	q := s.qualified()
	deleteSQL := fmt.Sprintf(`DELETE FROM %s.hourly_sentiment WHERE tweet_date = DATE '%s'`, q, sqlDate(date))
	insertSQL := fmt.Sprintf(`
		INSERT INTO %s.hourly_sentiment
		SELECT tweet_date, tweet_hour, sentiment_label,
		       COUNT(*) AS tweet_count,
		       AVG(polarity) AS avg_polarity,
		       AVG(confidence) AS avg_confidence
		FROM %s.processed_tweets
		WHERE tweet_date = DATE '%s'
		GROUP BY tweet_date, tweet_hour, sentiment_label`,
		q, q, sqlDate(date))
	return s.refreshPartition(ctx, "refresh hourly_sentiment", deleteSQL, insertSQL)
}

// RefreshDailySentiment recomputes the daily rollup for one partition.
func (s *Store) RefreshDailySentiment(ctx context.Context, date time.Time) error {
	q := s.qualified()
	deleteSQL := fmt.Sprintf(`DELETE FROM %s.daily_sentiment WHERE tweet_date = DATE '%s'`, q, sqlDate(date))
	insertSQL := fmt.Sprintf(`
		INSERT INTO %s.daily_sentiment
		SELECT tweet_date, sentiment_label,
		       COUNT(*) AS tweet_count,
		       AVG(polarity) AS avg_polarity,
		       CAST(SUM(like_count) AS BIGINT) AS total_likes,
		       CAST(SUM(retweet_count) AS BIGINT) AS total_retweets
		FROM %s.processed_tweets
		WHERE tweet_date = DATE '%s'
		GROUP BY tweet_date, sentiment_label`,
		q, q, sqlDate(date))
	return s.refreshPartition(ctx, "refresh daily_sentiment", deleteSQL, insertSQL)
}

// RefreshDailyEngagement recomputes the high-engagement rollup for one
// partition, counting only rows with like_count above likeThreshold.
func (s *Store) RefreshDailyEngagement(ctx context.Context, date time.Time, likeThreshold int64) error {
	q := s.qualified()
	deleteSQL := fmt.Sprintf(`DELETE FROM %s.daily_engagement WHERE tweet_date = DATE '%s'`, q, sqlDate(date))
	insertSQL := fmt.Sprintf(`
		INSERT INTO %s.daily_engagement
		SELECT tweet_date,
		       COUNT(*) AS tweet_count,
		       CAST(SUM(like_count) AS BIGINT) AS total_engagement,
		       AVG(polarity) AS avg_polarity
		FROM %s.processed_tweets
		WHERE tweet_date = DATE '%s' AND like_count > %d
		GROUP BY tweet_date`,
		q, q, sqlDate(date), likeThreshold)
	return s.refreshPartition(ctx, "refresh daily_engagement", deleteSQL, insertSQL)
}

// refreshPartition runs a delete-then-recompute pair in one transaction with
// conflict retry. Rollups are always replaced wholesale, never merged.
func (s *Store) refreshPartition(ctx context.Context, operation, deleteSQL, insertSQL string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return duck.RetryWithBackoff(ctx, s.log, operation, func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.log.Debug("Failed to rollback transaction", "error", err)
			}
		}()

		if _, err := tx.ExecContext(ctx, deleteSQL); err != nil {
			return fmt.Errorf("failed to delete stale rollup rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
			return fmt.Errorf("failed to insert rollup rows: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// GetDailyTrends reads the sentiment_trends view for the most recent `days`
// distinct partitions; days <= 0 reads everything.
func (s *Store) GetDailyTrends(ctx context.Context, days int) ([]DailyTrend, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	q := s.qualified()
	where := ""
	if days > 0 {
		where = fmt.Sprintf(`
		WHERE tweet_date IN (
			SELECT DISTINCT tweet_date FROM %s.daily_sentiment
			ORDER BY tweet_date DESC LIMIT %d
		)`, q, days)
	}
	query := fmt.Sprintf(`
		SELECT tweet_date, sentiment_label, tweet_count, avg_polarity,
		       total_likes, total_retweets, sentiment_category
		FROM %s.sentiment_trends%s
		ORDER BY tweet_date DESC, sentiment_label`,
		q, where)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment trends: %w", err)
	}
	defer rows.Close()

	var trends []DailyTrend
	for rows.Next() {
		var t DailyTrend
		if err := rows.Scan(&t.Date, &t.SentimentLabel, &t.TweetCount, &t.AvgPolarity,
			&t.TotalLikes, &t.TotalRetweets, &t.SentimentCategory); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment trend: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sentiment trends: %w", err)
	}
	return trends, nil
}

// GetHourlyTrends reads the hourly_trends view for one partition.
func (s *Store) GetHourlyTrends(ctx context.Context, date time.Time) ([]HourlyTrend, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		SELECT tweet_date, tweet_hour, positive_count, negative_count,
		       neutral_count, total_count
		FROM %s.hourly_trends
		WHERE tweet_date = DATE '%s'
		ORDER BY tweet_hour DESC`,
		s.qualified(), sqlDate(date))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly trends: %w", err)
	}
	defer rows.Close()

	var trends []HourlyTrend
	for rows.Next() {
		var t HourlyTrend
		if err := rows.Scan(&t.Date, &t.Hour, &t.PositiveCount, &t.NegativeCount,
			&t.NeutralCount, &t.TotalCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly trend: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly trends: %w", err)
	}
	return trends, nil
}

// GetHourlyTrendsRange reads the hourly_trends view for the most recent
// `days` distinct partitions; days <= 0 reads everything.
func (s *Store) GetHourlyTrendsRange(ctx context.Context, days int) ([]HourlyTrend, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	q := s.qualified()
	where := ""
	if days > 0 {
		where = fmt.Sprintf(`
		WHERE tweet_date IN (
			SELECT DISTINCT tweet_date FROM %s.hourly_sentiment
			ORDER BY tweet_date DESC LIMIT %d
		)`, q, days)
	}
	query := fmt.Sprintf(`
		SELECT tweet_date, tweet_hour, positive_count, negative_count,
		       neutral_count, total_count
		FROM %s.hourly_trends%s
		ORDER BY tweet_date DESC, tweet_hour DESC`,
		q, where)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly trends: %w", err)
	}
	defer rows.Close()

	var trends []HourlyTrend
	for rows.Next() {
		var t HourlyTrend
		if err := rows.Scan(&t.Date, &t.Hour, &t.PositiveCount, &t.NegativeCount,
			&t.NeutralCount, &t.TotalCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly trend: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly trends: %w", err)
	}
	return trends, nil
}

// GetDailyRollups collapses daily_sentiment across labels into one row per
// partition, for the most recent `days` partitions; days <= 0 reads
// everything. The polarity average is weighted by tweet count.
func (s *Store) GetDailyRollups(ctx context.Context, days int) ([]DailyRollup, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	q := s.qualified()
	where := ""
	if days > 0 {
		where = fmt.Sprintf(`
		WHERE tweet_date IN (
			SELECT DISTINCT tweet_date FROM %s.daily_sentiment
			ORDER BY tweet_date DESC LIMIT %d
		)`, q, days)
	}
	query := fmt.Sprintf(`
		SELECT tweet_date,
		       CAST(SUM(tweet_count) AS BIGINT) AS tweet_count,
		       SUM(avg_polarity * tweet_count) / SUM(tweet_count) AS avg_polarity,
		       CAST(SUM(total_likes) AS BIGINT) AS total_likes,
		       CAST(SUM(total_retweets) AS BIGINT) AS total_retweets
		FROM %s.daily_sentiment%s
		GROUP BY tweet_date
		ORDER BY tweet_date DESC`,
		q, where)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily rollups: %w", err)
	}
	defer rows.Close()

	var rollups []DailyRollup
	for rows.Next() {
		var r DailyRollup
		if err := rows.Scan(&r.Date, &r.TweetCount, &r.AvgPolarity,
			&r.TotalLikes, &r.TotalRetweets); err != nil {
			return nil, fmt.Errorf("failed to scan daily rollup: %w", err)
		}
		rollups = append(rollups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily rollups: %w", err)
	}
	return rollups, nil
}

// GetSummary computes the dashboard summary in one store call.
func (s *Store) GetSummary(ctx context.Context) (*Summary, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	q := s.qualified()
	summary := &Summary{LastDayCounts: make(map[string]int64)}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s.processed_tweets`, q)
	if err := conn.QueryRowContext(ctx, countQuery).Scan(&summary.TotalProcessed); err != nil {
		return nil, fmt.Errorf("failed to count processed tweets: %w", err)
	}
	if summary.TotalProcessed == 0 {
		return summary, nil
	}

	latestQuery := fmt.Sprintf(`SELECT MAX(tweet_date) FROM %s.processed_tweets`, q)
	if err := conn.QueryRowContext(ctx, latestQuery).Scan(&summary.LatestDate); err != nil {
		return nil, fmt.Errorf("failed to find latest partition: %w", err)
	}

	distQuery := fmt.Sprintf(`
		SELECT sentiment_label, COUNT(*)
		FROM %s.processed_tweets
		WHERE tweet_date = DATE '%s'
		GROUP BY sentiment_label`,
		q, sqlDate(summary.LatestDate))
	rows, err := conn.QueryContext(ctx, distQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment distribution: %w", err)
		}
		summary.LastDayCounts[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sentiment distribution: %w", err)
	}

	avgQuery := fmt.Sprintf(`
		SELECT AVG(polarity) FROM %s.processed_tweets WHERE tweet_date = DATE '%s'`,
		q, sqlDate(summary.LatestDate))
	if err := conn.QueryRowContext(ctx, avgQuery).Scan(&summary.LastDayAvgPolarity); err != nil {
		return nil, fmt.Errorf("failed to compute average polarity: %w", err)
	}

	return summary, nil
}
