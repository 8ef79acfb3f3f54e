package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentimetry/pipeline/pkg/duck"
	"github.com/sentimetry/pipeline/pkg/sentiment"
)

const dateLayout = "2006-01-02"

type StoreConfig struct {
	Logger *slog.Logger
	DB     duck.DB
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg StoreConfig
	db  duck.DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
		db:  cfg.DB,
	}, nil
}

// FactTableConfigRawTweets returns the fact table config for the external
// collector's raw tweet feed.
func FactTableConfigRawTweets() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName:       "raw_tweets",
		PartitionByDate: true,
		DateColumn:      "tweet_date",
		Columns: []string{
			"id:VARCHAR",
			"text:VARCHAR",
			"created_at:TIMESTAMP",
			"author_id:VARCHAR",
			"lang:VARCHAR",
			"retweet_count:BIGINT",
			"like_count:BIGINT",
			"reply_count:BIGINT",
			"quote_count:BIGINT",
			"collected_at:TIMESTAMP",
			"tweet_date:DATE",
		},
	}
}

// FactTableConfigProcessedTweets returns the fact table config for scored tweets.
func FactTableConfigProcessedTweets() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName:       "processed_tweets",
		PartitionByDate: true,
		DateColumn:      "tweet_date",
		Columns: []string{
			"id:VARCHAR",
			"text:VARCHAR",
			"created_at:TIMESTAMP",
			"author_id:VARCHAR",
			"lang:VARCHAR",
			"retweet_count:BIGINT",
			"like_count:BIGINT",
			"reply_count:BIGINT",
			"quote_count:BIGINT",
			"collected_at:TIMESTAMP",
			"tweet_date:DATE",
			"processed_at:TIMESTAMP",
			"tweet_hour:INTEGER",
			"polarity:DOUBLE",
			"subjectivity:DOUBLE",
			"sentiment_label:VARCHAR",
			"confidence:DOUBLE",
		},
	}
}

// FactTableConfigHourlySentiment returns the fact table config for the hourly rollup.
func FactTableConfigHourlySentiment() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "hourly_sentiment",
		Columns: []string{
			"tweet_date:DATE",
			"tweet_hour:INTEGER",
			"sentiment_label:VARCHAR",
			"tweet_count:BIGINT",
			"avg_polarity:DOUBLE",
			"avg_confidence:DOUBLE",
		},
	}
}

// FactTableConfigDailySentiment returns the fact table config for the daily rollup.
func FactTableConfigDailySentiment() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "daily_sentiment",
		Columns: []string{
			"tweet_date:DATE",
			"sentiment_label:VARCHAR",
			"tweet_count:BIGINT",
			"avg_polarity:DOUBLE",
			"total_likes:BIGINT",
			"total_retweets:BIGINT",
		},
	}
}

// FactTableConfigDailyEngagement returns the fact table config for the
// high-engagement rollup.
func FactTableConfigDailyEngagement() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "daily_engagement",
		Columns: []string{
			"tweet_date:DATE",
			"tweet_count:BIGINT",
			"total_engagement:BIGINT",
			"avg_polarity:DOUBLE",
		},
	}
}

// FactTableConfigPipelineRuns returns the fact table config for run tracking.
func FactTableConfigPipelineRuns() duck.FactTableConfig {
	return duck.FactTableConfig{
		TableName: "pipeline_runs",
		Columns: []string{
			"tweet_date:DATE",
			"started_at:TIMESTAMP",
			"completed_at:TIMESTAMP",
			"status:VARCHAR",
			"raw_count:BIGINT",
			"processed_count:BIGINT",
			"malformed_count:BIGINT",
			"filtered_count:BIGINT",
			"error:VARCHAR",
		},
	}
}

func (s *Store) CreateTablesIfNotExists() error {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	configs := []duck.FactTableConfig{
		FactTableConfigRawTweets(),
		FactTableConfigProcessedTweets(),
		FactTableConfigHourlySentiment(),
		FactTableConfigDailySentiment(),
		FactTableConfigDailyEngagement(),
		FactTableConfigPipelineRuns(),
	}
	for _, cfg := range configs {
		if err := duck.CreateFactTable(ctx, s.log, conn, cfg); err != nil {
			return fmt.Errorf("failed to create %s table: %w", cfg.TableName, err)
		}
	}

	return nil
}

// CreateOrReplaceViews (re)creates the reporting views. Views are computed
// on read, so this only needs to run at bootstrap.
func (s *Store) CreateOrReplaceViews(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	qualified := s.qualified()

	sentimentTrends := fmt.Sprintf(`
		CREATE OR REPLACE VIEW %s.sentiment_trends AS
		SELECT
			tweet_date,
			sentiment_label,
			tweet_count,
			avg_polarity,
			total_likes,
			total_retweets,
			CASE
				WHEN avg_polarity > 0.3 THEN 'Very Positive'
				WHEN avg_polarity > 0.1 THEN 'Positive'
				WHEN avg_polarity >= -0.1 THEN 'Neutral'
				WHEN avg_polarity >= -0.3 THEN 'Negative'
				ELSE 'Very Negative'
			END AS sentiment_category
		FROM %s.daily_sentiment
		ORDER BY tweet_date DESC
	`, qualified, qualified)
	if _, err := conn.ExecContext(ctx, sentimentTrends); err != nil {
		return fmt.Errorf("failed to create sentiment_trends view: %w", err)
	}

	// SUM over BIGINT widens to HUGEINT in DuckDB; cast back so clients scan int64.
	hourlyTrends := fmt.Sprintf(`
		CREATE OR REPLACE VIEW %s.hourly_trends AS
		SELECT
			tweet_date,
			tweet_hour,
			CAST(SUM(CASE WHEN sentiment_label = '%s' THEN tweet_count ELSE 0 END) AS BIGINT) AS positive_count,
			CAST(SUM(CASE WHEN sentiment_label = '%s' THEN tweet_count ELSE 0 END) AS BIGINT) AS negative_count,
			CAST(SUM(CASE WHEN sentiment_label = '%s' THEN tweet_count ELSE 0 END) AS BIGINT) AS neutral_count,
			CAST(SUM(tweet_count) AS BIGINT) AS total_count
		FROM %s.hourly_sentiment
		GROUP BY tweet_date, tweet_hour
		ORDER BY tweet_date DESC, tweet_hour DESC
	`, qualified, sentiment.LabelPositive, sentiment.LabelNegative, sentiment.LabelNeutral, qualified)
	if _, err := conn.ExecContext(ctx, hourlyTrends); err != nil {
		return fmt.Errorf("failed to create hourly_trends view: %w", err)
	}

	return nil
}

// qualified returns the catalog.schema prefix for fully qualified table names.
func (s *Store) qualified() string {
	return fmt.Sprintf("%s.%s", s.db.Catalog(), s.db.Schema())
}

func sqlDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
