package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// AppendTableViaCSV appends rows to an existing table by staging them through
// a CSV file and a single COPY FROM. The table must already exist with a
// schema matching the CSV columns. Rows are produced by writeCSVFn, called
// once per index in [0, count).
func AppendTableViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	tableName string,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	if count == 0 {
		return nil
	}

	appendStart := time.Now()
	defer func() {
		log.Debug("table append completed",
			"table", tableName,
			"rows", count,
			"duration", time.Since(appendStart).String())
	}()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_append_*.csv", tableName))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	csvWriter := csv.NewWriter(tmpFile)
	csvWriter.Comma = ','

	for i := range count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during CSV writing: %w", ctx.Err())
		default:
		}

		if err := writeCSVFn(csvWriter, i); err != nil {
			return fmt.Errorf("failed to write CSV record %d: %w", i, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	return RetryWithBackoff(ctx, log, fmt.Sprintf("append table %s", tableName), func() error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled before transaction for %s: %w", tableName, ctx.Err())
		default:
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", tableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", tableName, "error", err)
			}
		}()

		copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", tableName, tmpFile.Name())
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("failed to COPY FROM CSV: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	})
}
