package export

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v5"

	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type ClickHouseConfig struct {
	Logger   *slog.Logger
	Store    *store.Store
	Addr     string
	Database string
	Username string
	Password string
	// Days limits the export to the most recent partitions; <= 0 exports
	// everything.
	Days int

	MaxAttempts uint
}

func (cfg *ClickHouseConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Addr == "" {
		return errors.New("addr is required")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	return nil
}

// ClickHouseExporter syncs the rollup tables into ClickHouse for dashboard
// queries. Target tables use ReplacingMergeTree keyed on export time, so
// re-exporting the same partitions converges instead of duplicating.
type ClickHouseExporter struct {
	log   *slog.Logger
	cfg   ClickHouseConfig
	store *store.Store
	conn  clickhouse.Conn
}

func NewClickHouseExporter(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	e := &ClickHouseExporter{log: cfg.Logger, cfg: cfg, store: cfg.Store, conn: conn}
	if err := e.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return e, nil
}

func (e *ClickHouseExporter) Close() error {
	return e.conn.Close()
}

// migrate executes the embedded SQL files in filename order.
func (e *ClickHouseExporter) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []fs.DirEntry
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	for _, entry := range files {
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		for i, stmt := range splitStatements(string(content)) {
			if err := e.conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration %s (statement %d): %w", entry.Name(), i+1, err)
			}
		}
		e.log.Debug("export: applied migration", "file", entry.Name())
	}
	return nil
}

// splitStatements splits SQL content on statement-terminating semicolons,
// dropping blank lines and -- comments.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// Export reads the rollups and batch-inserts them.
func (e *ClickHouseExporter) Export(ctx context.Context) error {
	rows, err := e.export(ctx)
	if err != nil {
		metrics.ExportRunsTotal.WithLabelValues("clickhouse", "error").Inc()
		return err
	}
	metrics.ExportRunsTotal.WithLabelValues("clickhouse", "success").Inc()
	metrics.ExportRowsTotal.WithLabelValues("clickhouse").Add(float64(rows))
	e.log.Info("export: synced rollups to clickhouse", "addr", e.cfg.Addr, "rows", rows)
	return nil
}

func (e *ClickHouseExporter) export(ctx context.Context) (int, error) {
	trends, err := e.store.GetDailyTrends(ctx, e.cfg.Days)
	if err != nil {
		return 0, fmt.Errorf("failed to read sentiment trends: %w", err)
	}
	hours, err := e.store.GetHourlyTrendsRange(ctx, e.cfg.Days)
	if err != nil {
		return 0, fmt.Errorf("failed to read hourly trends: %w", err)
	}
	rollups, err := e.store.GetDailyRollups(ctx, e.cfg.Days)
	if err != nil {
		return 0, fmt.Errorf("failed to read daily rollups: %w", err)
	}

	exportedAt := time.Now().UTC()

	err = e.sendBatch(ctx,
		`INSERT INTO sentiment_trends (tweet_date, sentiment_label, tweet_count, avg_polarity, total_likes, total_retweets, sentiment_category, exported_at)`,
		func(batch driver.Batch) error {
			for _, t := range trends {
				if err := batch.Append(t.Date, t.SentimentLabel, t.TweetCount, t.AvgPolarity,
					t.TotalLikes, t.TotalRetweets, t.SentimentCategory, exportedAt); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("failed to insert sentiment trends: %w", err)
	}

	err = e.sendBatch(ctx,
		`INSERT INTO hourly_trends (tweet_date, tweet_hour, positive_count, negative_count, neutral_count, total_count, exported_at)`,
		func(batch driver.Batch) error {
			for _, h := range hours {
				if err := batch.Append(h.Date, uint8(h.Hour), h.PositiveCount, h.NegativeCount,
					h.NeutralCount, h.TotalCount, exportedAt); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("failed to insert hourly trends: %w", err)
	}

	err = e.sendBatch(ctx,
		`INSERT INTO daily_summary (tweet_date, tweet_count, avg_polarity, total_likes, total_retweets, engagement_score, sentiment_strength, exported_at)`,
		func(batch driver.Batch) error {
			for _, r := range rollups {
				strength := r.AvgPolarity
				if strength < 0 {
					strength = -strength
				}
				if err := batch.Append(r.Date, r.TweetCount, r.AvgPolarity, r.TotalLikes,
					r.TotalRetweets, r.TotalLikes+r.TotalRetweets, strength, exportedAt); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("failed to insert daily summary: %w", err)
	}

	return len(trends) + len(hours) + len(rollups), nil
}

func (e *ClickHouseExporter) sendBatch(ctx context.Context, query string, appendFn func(driver.Batch) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 1 {
			e.log.Warn("export: clickhouse batch failed, retrying", "attempt", attempt)
		}
		attempt++

		batch, err := e.conn.PrepareBatch(ctx, query)
		if err != nil {
			return struct{}{}, err
		}
		if err := appendFn(batch); err != nil {
			_ = batch.Close()
			return struct{}{}, err
		}
		if err := batch.Send(); err != nil {
			_ = batch.Close()
			return struct{}{}, err
		}
		return struct{}{}, batch.Close()
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(e.cfg.MaxAttempts))
	return err
}
