package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/sentimetry/pipeline/pkg/duck"
)

const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PipelineRun is one pipeline_runs record: a finished partition run with its
// outcome and record counts.
type PipelineRun struct {
	Date           time.Time
	StartedAt      time.Time
	CompletedAt    time.Time
	Status         string
	RawCount       int64
	ProcessedCount int64
	MalformedCount int64
	FilteredCount  int64
	Error          string
}

// PartitionStatus describes one raw partition and its processing state.
type PartitionStatus struct {
	Date            time.Time
	RawCount        int64
	LastCollectedAt time.Time
	LastSuccessAt   time.Time
}

// Stale reports whether the partition needs reprocessing: raw data has
// arrived at or after the last successful run started, or the partition has
// never been processed.
func (p PartitionStatus) Stale() bool {
	if p.LastSuccessAt.IsZero() {
		return true
	}
	return !p.LastCollectedAt.Before(p.LastSuccessAt)
}

// Freshness captures how current the processed side of the lake is.
type Freshness struct {
	LatestPartition   time.Time
	LastSuccessfulRun time.Time
}

// RecordRun appends one finished run to pipeline_runs.
func (s *Store) RecordRun(ctx context.Context, run PipelineRun) error {
	s.log.Debug("store: recording pipeline run", "date", sqlDate(run.Date), "status", run.Status)
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	cfg := FactTableConfigPipelineRuns()
	return duck.InsertFactsViaCSV(
		ctx,
		s.log,
		conn,
		cfg,
		1,
		func(w *csv.Writer, i int) error {
			return w.Write([]string{
				sqlDate(run.Date),
				run.StartedAt.UTC().Format(time.RFC3339Nano),
				run.CompletedAt.UTC().Format(time.RFC3339Nano),
				run.Status,
				fmt.Sprintf("%d", run.RawCount),
				fmt.Sprintf("%d", run.ProcessedCount),
				fmt.Sprintf("%d", run.MalformedCount),
				fmt.Sprintf("%d", run.FilteredCount),
				run.Error,
			})
		},
	)
}

// GetRunsForDate reads the run history for one partition, newest first.
func (s *Store) GetRunsForDate(ctx context.Context, date time.Time) ([]PipelineRun, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		SELECT tweet_date, started_at, completed_at, status,
		       raw_count, processed_count, malformed_count, filtered_count, error
		FROM %s.pipeline_runs
		WHERE tweet_date = DATE '%s'
		ORDER BY started_at DESC`,
		s.qualified(), sqlDate(date))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		var (
			r      PipelineRun
			runErr sql.NullString
		)
		if err := rows.Scan(&r.Date, &r.StartedAt, &r.CompletedAt, &r.Status,
			&r.RawCount, &r.ProcessedCount, &r.MalformedCount, &r.FilteredCount, &runErr); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		r.Error = runErr.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}
	return runs, nil
}

// ListPartitionStatus reports every raw partition with tweet_date on or after
// since (all of them when since is zero), joined with its last successful run.
func (s *Store) ListPartitionStatus(ctx context.Context, since time.Time) ([]PartitionStatus, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	q := s.qualified()
	where := ""
	if !since.IsZero() {
		where = fmt.Sprintf(`WHERE tweet_date >= DATE '%s'`, sqlDate(since))
	}
	query := fmt.Sprintf(`
		WITH raw AS (
			SELECT tweet_date, COUNT(*) AS raw_count, MAX(collected_at) AS last_collected_at
			FROM %s.raw_tweets
			%s
			GROUP BY tweet_date
		), runs AS (
			SELECT tweet_date, MAX(started_at) AS last_success_started_at
			FROM %s.pipeline_runs
			WHERE status = '%s'
			GROUP BY tweet_date
		)
		SELECT raw.tweet_date, raw.raw_count, raw.last_collected_at, runs.last_success_started_at
		FROM raw
		LEFT JOIN runs USING (tweet_date)
		ORDER BY raw.tweet_date`,
		q, where, q, RunStatusCompleted)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition status: %w", err)
	}
	defer rows.Close()

	var statuses []PartitionStatus
	for rows.Next() {
		var (
			p           PartitionStatus
			lastSuccess sql.NullTime
		)
		if err := rows.Scan(&p.Date, &p.RawCount, &p.LastCollectedAt, &lastSuccess); err != nil {
			return nil, fmt.Errorf("failed to scan partition status: %w", err)
		}
		if lastSuccess.Valid {
			p.LastSuccessAt = lastSuccess.Time
		}
		statuses = append(statuses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partition status: %w", err)
	}
	return statuses, nil
}

// GetFreshness reads the newest processed partition and the newest successful
// run for the lag monitor. Zero values mean nothing has been processed yet.
func (s *Store) GetFreshness(ctx context.Context) (*Freshness, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	q := s.qualified()
	fresh := &Freshness{}

	var latest sql.NullTime
	partitionQuery := fmt.Sprintf(`SELECT MAX(tweet_date) FROM %s.processed_tweets`, q)
	if err := conn.QueryRowContext(ctx, partitionQuery).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to find latest processed partition: %w", err)
	}
	if latest.Valid {
		fresh.LatestPartition = latest.Time
	}

	var lastRun sql.NullTime
	runQuery := fmt.Sprintf(`SELECT MAX(started_at) FROM %s.pipeline_runs WHERE status = '%s'`,
		q, RunStatusCompleted)
	if err := conn.QueryRowContext(ctx, runQuery).Scan(&lastRun); err != nil {
		return nil, fmt.Errorf("failed to find last successful run: %w", err)
	}
	if lastRun.Valid {
		fresh.LastSuccessfulRun = lastRun.Time
	}

	return fresh, nil
}
