// Package export produces the BI-facing outputs of the warehouse: CSV files
// for spreadsheet and dashboard tools, optional S3 upload of those files, and
// a ClickHouse sync of the rollup tables.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sentimetry/pipeline/internal/metrics"
	"github.com/sentimetry/pipeline/internal/store"
)

const (
	TrendsFile  = "sentiment_trends.csv"
	HourlyFile  = "hourly_trends.csv"
	SummaryFile = "daily_summary.csv"
)

var (
	trendsHeader = []string{
		"tweet_date", "sentiment_label", "tweet_count", "avg_polarity",
		"total_likes", "total_retweets", "sentiment_category",
	}
	hourlyHeader = []string{
		"tweet_date", "tweet_hour", "positive_count", "negative_count",
		"neutral_count", "total_count",
	}
	summaryHeader = []string{
		"tweet_date", "tweet_count", "avg_polarity", "total_likes",
		"total_retweets", "engagement_score", "sentiment_strength",
	}
)

type CSVConfig struct {
	Logger    *slog.Logger
	Store     *store.Store
	OutputDir string
	// Days limits the export to the most recent partitions; <= 0 exports
	// everything.
	Days int
}

func (cfg *CSVConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "exports"
	}
	return nil
}

// CSVExporter writes sentiment_trends.csv, hourly_trends.csv and
// daily_summary.csv into the output directory. The daily summary carries two
// derived columns: engagement_score (likes + retweets) and
// sentiment_strength (absolute average polarity).
type CSVExporter struct {
	log   *slog.Logger
	cfg   CSVConfig
	store *store.Store
}

func NewCSVExporter(cfg CSVConfig) (*CSVExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &CSVExporter{log: cfg.Logger, cfg: cfg, store: cfg.Store}, nil
}

// Export writes the three files and returns their paths.
func (e *CSVExporter) Export(ctx context.Context) ([]string, error) {
	paths, rows, err := e.export(ctx)
	if err != nil {
		metrics.ExportRunsTotal.WithLabelValues("csv", "error").Inc()
		return nil, err
	}
	metrics.ExportRunsTotal.WithLabelValues("csv", "success").Inc()
	metrics.ExportRowsTotal.WithLabelValues("csv").Add(float64(rows))
	e.log.Info("export: wrote csv files", "dir", e.cfg.OutputDir, "rows", rows)
	return paths, nil
}

func (e *CSVExporter) export(ctx context.Context) ([]string, int, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	trends, err := e.store.GetDailyTrends(ctx, e.cfg.Days)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read sentiment trends: %w", err)
	}
	hours, err := e.store.GetHourlyTrendsRange(ctx, e.cfg.Days)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read hourly trends: %w", err)
	}
	rollups, err := e.store.GetDailyRollups(ctx, e.cfg.Days)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read daily rollups: %w", err)
	}

	files := []struct {
		name    string
		header  []string
		records [][]string
	}{
		{TrendsFile, trendsHeader, trendRecords(trends)},
		{HourlyFile, hourlyHeader, hourlyRecords(hours)},
		{SummaryFile, summaryHeader, summaryRecords(rollups)},
	}

	var paths []string
	rows := 0
	for _, f := range files {
		path := filepath.Join(e.cfg.OutputDir, f.name)
		if err := writeCSVFile(path, f.header, f.records); err != nil {
			return nil, 0, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		e.log.Debug("export: wrote file", "path", path, "rows", len(f.records))
		paths = append(paths, path)
		rows += len(f.records)
	}
	return paths, rows, nil
}

func trendRecords(trends []store.DailyTrend) [][]string {
	records := make([][]string, 0, len(trends))
	for _, t := range trends {
		records = append(records, []string{
			t.Date.Format(time.DateOnly),
			t.SentimentLabel,
			strconv.FormatInt(t.TweetCount, 10),
			formatFloat(t.AvgPolarity),
			strconv.FormatInt(t.TotalLikes, 10),
			strconv.FormatInt(t.TotalRetweets, 10),
			t.SentimentCategory,
		})
	}
	return records
}

func hourlyRecords(hours []store.HourlyTrend) [][]string {
	records := make([][]string, 0, len(hours))
	for _, h := range hours {
		records = append(records, []string{
			h.Date.Format(time.DateOnly),
			strconv.Itoa(h.Hour),
			strconv.FormatInt(h.PositiveCount, 10),
			strconv.FormatInt(h.NegativeCount, 10),
			strconv.FormatInt(h.NeutralCount, 10),
			strconv.FormatInt(h.TotalCount, 10),
		})
	}
	return records
}

func summaryRecords(rollups []store.DailyRollup) [][]string {
	records := make([][]string, 0, len(rollups))
	for _, r := range rollups {
		records = append(records, []string{
			r.Date.Format(time.DateOnly),
			strconv.FormatInt(r.TweetCount, 10),
			formatFloat(r.AvgPolarity),
			strconv.FormatInt(r.TotalLikes, 10),
			strconv.FormatInt(r.TotalRetweets, 10),
			strconv.FormatInt(r.TotalLikes+r.TotalRetweets, 10),
			formatFloat(math.Abs(r.AvgPolarity)),
		})
	}
	return records
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeCSVFile(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, record := range records {
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return f.Close()
}
