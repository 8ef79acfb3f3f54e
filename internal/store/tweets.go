package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/sentimetry/pipeline/pkg/duck"
)

// RawTweet is one record of the external collector's feed. TweetDate is the
// partition the collector filed the record under; when zero it is derived
// from CreatedAt.
type RawTweet struct {
	ID           string
	Text         string
	CreatedAt    time.Time
	AuthorID     string
	Lang         string
	RetweetCount int64
	LikeCount    int64
	ReplyCount   int64
	QuoteCount   int64
	CollectedAt  time.Time
	TweetDate    time.Time
}

// PartitionDate returns the partition this record belongs to.
func (r RawTweet) PartitionDate() time.Time {
	if !r.TweetDate.IsZero() {
		return r.TweetDate
	}
	return r.CreatedAt.UTC().Truncate(24 * time.Hour)
}

// ProcessedTweet is one scored record in processed_tweets.
type ProcessedTweet struct {
	RawTweet

	ProcessedAt    time.Time
	TweetHour      int
	Polarity       float64
	Subjectivity   float64
	SentimentLabel string
	Confidence     float64
}

// AppendRawTweets is the collector-facing write path for the raw feed. The
// feed is at-least-once: re-delivered ids appear as duplicate rows and are
// collapsed downstream.
func (s *Store) AppendRawTweets(ctx context.Context, tweets []RawTweet) error {
	s.log.Debug("store: appending raw tweets", "count", len(tweets))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	cfg := FactTableConfigRawTweets()
	if err := duck.CreateFactTable(ctx, s.log, conn, cfg); err != nil {
		return fmt.Errorf("failed to create raw_tweets table: %w", err)
	}
	return duck.AppendTableViaCSV(
		ctx,
		s.log,
		conn,
		fmt.Sprintf("%s.raw_tweets", s.qualified()),
		len(tweets),
		func(w *csv.Writer, i int) error {
			t := tweets[i]
			return w.Write([]string{
				t.ID,
				t.Text,
				t.CreatedAt.UTC().Format(time.RFC3339Nano),
				t.AuthorID,
				t.Lang,
				fmt.Sprintf("%d", t.RetweetCount),
				fmt.Sprintf("%d", t.LikeCount),
				fmt.Sprintf("%d", t.ReplyCount),
				fmt.Sprintf("%d", t.QuoteCount),
				t.CollectedAt.UTC().Format(time.RFC3339Nano),
				sqlDate(t.PartitionDate()),
			})
		},
	)
}

// ReplaceProcessedTweets swaps the processed partition for date in a single
// transaction: rows for other dates are untouched, and a failure leaves the
// prior partition contents visible.
func (s *Store) ReplaceProcessedTweets(ctx context.Context, date time.Time, tweets []ProcessedTweet) error {
	s.log.Debug("store: replacing processed partition", "date", sqlDate(date), "count", len(tweets))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	cfg := FactTableConfigProcessedTweets()
	return duck.ReplacePartitionViaCSV(
		ctx,
		s.log,
		conn,
		cfg,
		sqlDate(date),
		len(tweets),
		func(w *csv.Writer, i int) error {
			t := tweets[i]
			return w.Write([]string{
				t.ID,
				t.Text,
				t.CreatedAt.UTC().Format(time.RFC3339Nano),
				t.AuthorID,
				t.Lang,
				fmt.Sprintf("%d", t.RetweetCount),
				fmt.Sprintf("%d", t.LikeCount),
				fmt.Sprintf("%d", t.ReplyCount),
				fmt.Sprintf("%d", t.QuoteCount),
				t.CollectedAt.UTC().Format(time.RFC3339Nano),
				sqlDate(date),
				t.ProcessedAt.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%d", t.TweetHour),
				strconv.FormatFloat(t.Polarity, 'g', -1, 64),
				strconv.FormatFloat(t.Subjectivity, 'g', -1, 64),
				t.SentimentLabel,
				strconv.FormatFloat(t.Confidence, 'g', -1, 64),
			})
		},
	)
}

// GetRawTweetsForDate reads the complete raw partition for date, duplicates
// included, in a stable order.
func (s *Store) GetRawTweetsForDate(ctx context.Context, date time.Time) ([]RawTweet, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		SELECT id, text, created_at, author_id, lang,
		       retweet_count, like_count, reply_count, quote_count,
		       collected_at, tweet_date
		FROM %s.raw_tweets
		WHERE tweet_date = DATE '%s'
		ORDER BY id, collected_at`,
		s.qualified(), sqlDate(date))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw tweets: %w", err)
	}
	defer rows.Close()

	var tweets []RawTweet
	for rows.Next() {
		// Empty strings stage through CSV as NULLs; read them back as "".
		var (
			t      RawTweet
			id     sql.NullString
			text   sql.NullString
			author sql.NullString
			lang   sql.NullString
		)
		if err := rows.Scan(&id, &text, &t.CreatedAt, &author, &lang,
			&t.RetweetCount, &t.LikeCount, &t.ReplyCount, &t.QuoteCount,
			&t.CollectedAt, &t.TweetDate); err != nil {
			return nil, fmt.Errorf("failed to scan raw tweet: %w", err)
		}
		t.ID = id.String
		t.Text = text.String
		t.AuthorID = author.String
		t.Lang = lang.String
		tweets = append(tweets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw tweets: %w", err)
	}
	return tweets, nil
}

// GetProcessedTweets reads the processed partition for date in a stable order.
func (s *Store) GetProcessedTweets(ctx context.Context, date time.Time) ([]ProcessedTweet, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		SELECT id, text, created_at, author_id, lang,
		       retweet_count, like_count, reply_count, quote_count,
		       collected_at, tweet_date, processed_at, tweet_hour,
		       polarity, subjectivity, sentiment_label, confidence
		FROM %s.processed_tweets
		WHERE tweet_date = DATE '%s'
		ORDER BY id`,
		s.qualified(), sqlDate(date))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed tweets: %w", err)
	}
	defer rows.Close()

	var tweets []ProcessedTweet
	for rows.Next() {
		var (
			t      ProcessedTweet
			text   sql.NullString
			author sql.NullString
			lang   sql.NullString
		)
		if err := rows.Scan(&t.ID, &text, &t.CreatedAt, &author, &lang,
			&t.RetweetCount, &t.LikeCount, &t.ReplyCount, &t.QuoteCount,
			&t.CollectedAt, &t.TweetDate, &t.ProcessedAt, &t.TweetHour,
			&t.Polarity, &t.Subjectivity, &t.SentimentLabel, &t.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan processed tweet: %w", err)
		}
		t.Text = text.String
		t.AuthorID = author.String
		t.Lang = lang.String
		tweets = append(tweets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processed tweets: %w", err)
	}
	return tweets, nil
}

// CountProcessedTweets returns the processed row count for one partition.
func (s *Store) CountProcessedTweets(ctx context.Context, date time.Time) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.processed_tweets WHERE tweet_date = DATE '%s'`,
		s.qualified(), sqlDate(date))
	if err := conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed tweets: %w", err)
	}
	return count, nil
}
