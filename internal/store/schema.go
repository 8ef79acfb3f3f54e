package store

// SchemaInfo describes the warehouse for catalog consumers (the HTTP API and
// SQL gateway clients).
type SchemaInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tables      []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

var Schema = &SchemaInfo{
	Name: "sentimetry-pipeline",
	Description: `
Batch sentiment analytics over a social media feed:
- raw_tweets is the external collector's append-only feed, partitioned by tweet_date
- processed_tweets carries one scored row per tweet id per partition
- rollups (hourly_sentiment, daily_sentiment, daily_engagement) are recomputed wholesale per partition
- sentiment labels: positive (polarity > 0.1), negative (polarity < -0.1), neutral otherwise
`,
	Tables: []TableInfo{
		{
			Name:        "raw_tweets",
			Type:        "table",
			Description: "Collector feed, at-least-once: the same id may appear multiple times; the newest collected_at wins downstream.",
			Columns: []ColumnInfo{
				{Name: "id", Type: "VARCHAR", Description: "Tweet id; unique per partition only after processing"},
				{Name: "text", Type: "VARCHAR", Description: "Tweet body"},
				{Name: "created_at", Type: "TIMESTAMP", Description: "Authoring time (UTC)"},
				{Name: "author_id", Type: "VARCHAR", Description: "Author id"},
				{Name: "lang", Type: "VARCHAR", Description: "BCP-47 language tag reported by the feed"},
				{Name: "retweet_count", Type: "BIGINT", Description: "Retweets at collection time"},
				{Name: "like_count", Type: "BIGINT", Description: "Likes at collection time"},
				{Name: "reply_count", Type: "BIGINT", Description: "Replies at collection time"},
				{Name: "quote_count", Type: "BIGINT", Description: "Quotes at collection time"},
				{Name: "collected_at", Type: "TIMESTAMP", Description: "When the collector captured the record"},
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
			},
		},
		{
			Name:        "processed_tweets",
			Type:        "table",
			Description: "Scored tweets, exactly one row per id per partition. Rewritten wholesale when a partition is reprocessed.",
			Columns: []ColumnInfo{
				{Name: "id", Type: "VARCHAR", Description: "Tweet id, unique within a partition"},
				{Name: "text", Type: "VARCHAR", Description: "Tweet body"},
				{Name: "created_at", Type: "TIMESTAMP", Description: "Authoring time (UTC)"},
				{Name: "author_id", Type: "VARCHAR", Description: "Author id"},
				{Name: "lang", Type: "VARCHAR", Description: "BCP-47 language tag reported by the feed"},
				{Name: "retweet_count", Type: "BIGINT", Description: "Retweets at collection time"},
				{Name: "like_count", Type: "BIGINT", Description: "Likes at collection time"},
				{Name: "reply_count", Type: "BIGINT", Description: "Replies at collection time"},
				{Name: "quote_count", Type: "BIGINT", Description: "Quotes at collection time"},
				{Name: "collected_at", Type: "TIMESTAMP", Description: "When the collector captured the record"},
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
				{Name: "processed_at", Type: "TIMESTAMP", Description: "When this partition run scored the row (UTC)"},
				{Name: "tweet_hour", Type: "INTEGER", Description: "Hour of day 0-23 derived from created_at (UTC)"},
				{Name: "polarity", Type: "DOUBLE", Description: "Sentiment polarity in [-1, 1]"},
				{Name: "subjectivity", Type: "DOUBLE", Description: "Subjectivity in [0, 1]"},
				{Name: "sentiment_label", Type: "VARCHAR", Description: "positive / negative / neutral from polarity"},
				{Name: "confidence", Type: "DOUBLE", Description: "Label confidence in [0, 1]; 0 inside the neutral band"},
			},
		},
		{
			Name:        "hourly_sentiment",
			Type:        "table",
			Description: "Per (tweet_date, tweet_hour, sentiment_label) rollup of processed_tweets. Absent groups have no row.",
			Columns: []ColumnInfo{
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
				{Name: "tweet_hour", Type: "INTEGER", Description: "Hour of day 0-23"},
				{Name: "sentiment_label", Type: "VARCHAR", Description: "positive / negative / neutral"},
				{Name: "tweet_count", Type: "BIGINT", Description: "Tweets in the group"},
				{Name: "avg_polarity", Type: "DOUBLE", Description: "Mean polarity of the group"},
				{Name: "avg_confidence", Type: "DOUBLE", Description: "Mean label confidence of the group"},
			},
		},
		{
			Name:        "daily_sentiment",
			Type:        "table",
			Description: "Per (tweet_date, sentiment_label) rollup of processed_tweets with engagement sums.",
			Columns: []ColumnInfo{
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
				{Name: "sentiment_label", Type: "VARCHAR", Description: "positive / negative / neutral"},
				{Name: "tweet_count", Type: "BIGINT", Description: "Tweets in the group"},
				{Name: "avg_polarity", Type: "DOUBLE", Description: "Mean polarity of the group"},
				{Name: "total_likes", Type: "BIGINT", Description: "Sum of like_count over the group"},
				{Name: "total_retweets", Type: "BIGINT", Description: "Sum of retweet_count over the group"},
			},
		},
		{
			Name:        "daily_engagement",
			Type:        "table",
			Description: "Per tweet_date rollup of high-engagement tweets only (like_count above the configured threshold).",
			Columns: []ColumnInfo{
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
				{Name: "tweet_count", Type: "BIGINT", Description: "High-engagement tweets on the day"},
				{Name: "total_engagement", Type: "BIGINT", Description: "Sum of like_count over those tweets"},
				{Name: "avg_polarity", Type: "DOUBLE", Description: "Mean polarity of those tweets"},
			},
		},
		{
			Name:        "pipeline_runs",
			Type:        "table",
			Description: "One row per finished partition run with outcome and record counts. Staleness checks compare raw MAX(collected_at) against the last completed run's started_at.",
			Columns: []ColumnInfo{
				{Name: "tweet_date", Type: "DATE", Description: "Partition the run covered"},
				{Name: "started_at", Type: "TIMESTAMP", Description: "Run start (UTC)"},
				{Name: "completed_at", Type: "TIMESTAMP", Description: "Run end (UTC)"},
				{Name: "status", Type: "VARCHAR", Description: "completed or failed"},
				{Name: "raw_count", Type: "BIGINT", Description: "Raw rows read, duplicates included"},
				{Name: "processed_count", Type: "BIGINT", Description: "Rows written to processed_tweets"},
				{Name: "malformed_count", Type: "BIGINT", Description: "Rows excluded as malformed"},
				{Name: "filtered_count", Type: "BIGINT", Description: "Rows excluded by feed filters"},
				{Name: "error", Type: "VARCHAR", Description: "Failure detail, NULL on success"},
			},
		},
		{
			Name:        "sentiment_trends",
			Type:        "view",
			Description: "daily_sentiment plus a five-bucket sentiment_category from avg_polarity, newest first.",
			Columns: []ColumnInfo{
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
				{Name: "sentiment_label", Type: "VARCHAR", Description: "positive / negative / neutral"},
				{Name: "tweet_count", Type: "BIGINT", Description: "Tweets in the group"},
				{Name: "avg_polarity", Type: "DOUBLE", Description: "Mean polarity of the group"},
				{Name: "total_likes", Type: "BIGINT", Description: "Sum of like_count over the group"},
				{Name: "total_retweets", Type: "BIGINT", Description: "Sum of retweet_count over the group"},
				{Name: "sentiment_category", Type: "VARCHAR", Description: "Very Positive (> 0.3), Positive (> 0.1), Neutral (>= -0.1), Negative (>= -0.3), else Very Negative"},
			},
		},
		{
			Name:        "hourly_trends",
			Type:        "view",
			Description: "hourly_sentiment pivoted into per-label counts per (tweet_date, tweet_hour); absent labels pivot to 0.",
			Columns: []ColumnInfo{
				{Name: "tweet_date", Type: "DATE", Description: "Partition key"},
				{Name: "tweet_hour", Type: "INTEGER", Description: "Hour of day 0-23"},
				{Name: "positive_count", Type: "BIGINT", Description: "Positive tweets in the hour"},
				{Name: "negative_count", Type: "BIGINT", Description: "Negative tweets in the hour"},
				{Name: "neutral_count", Type: "BIGINT", Description: "Neutral tweets in the hour"},
				{Name: "total_count", Type: "BIGINT", Description: "All tweets in the hour"},
			},
		},
	},
}
