package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// FactTableConfig holds configuration for fact table ingestion
type FactTableConfig struct {
	// TableName is the name of the fact table
	TableName string
	// Columns defines all columns in the fact table (in order)
	// Each column is a name:type pair, e.g., "created_at:TIMESTAMP", "author_id:VARCHAR"
	Columns []string
	// PartitionByDate if true, partitions the table by DateColumn in DuckLake
	PartitionByDate bool
	// DateColumn is the name of the DATE column used for partitioning and
	// partition-level replacement
	DateColumn string
}

// columnNames extracts the column names from the name:type definitions.
func (cfg FactTableConfig) columnNames() ([]string, error) {
	names := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		names = append(names, strings.TrimSpace(parts[0]))
	}
	return names, nil
}

func (cfg FactTableConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}
	if cfg.PartitionByDate && cfg.DateColumn == "" {
		return fmt.Errorf("date_column is required when partition_by_date is true")
	}
	return nil
}

// InsertFactsViaCSV performs append-only fact table ingestion:
// - Creates the table if it doesn't exist
// - Loads data from CSV into staging table
// - Inserts all rows into the fact table (append-only, no updates/deletes)
func InsertFactsViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg FactTableConfig,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	ingestStart := time.Now()
	defer func() {
		log.Debug("fact table ingestion completed",
			"table", cfg.TableName,
			"rows", count,
			"duration", time.Since(ingestStart).String())
	}()

	if err := cfg.validate(); err != nil {
		return err
	}

	if err := CreateFactTable(ctx, log, conn, cfg); err != nil {
		return fmt.Errorf("failed to create fact table: %w", err)
	}

	if count == 0 {
		return nil
	}

	tmpFile, err := writeFactsCSV(ctx, cfg, count, writeCSVFn)
	if tmpFile != "" {
		defer os.Remove(tmpFile)
	}
	if err != nil {
		return err
	}

	colNames, err := cfg.columnNames()
	if err != nil {
		return err
	}
	colList := strings.Join(colNames, ", ")

	return RetryWithBackoff(ctx, log, fmt.Sprintf("fact table %s", cfg.TableName), func() error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled before transaction for %s: %w", cfg.TableName, ctx.Err())
		default:
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", cfg.TableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", cfg.TableName, "error", err)
			}
		}()

		db := conn.DB()

		stageTableName := fmt.Sprintf("%s_stage", cfg.TableName)
		if err := stageFactsCSV(ctx, tx, cfg, stageTableName, tmpFile); err != nil {
			return err
		}

		insertSQL := fmt.Sprintf(`INSERT INTO %s.%s.%s (%s)
			SELECT %s FROM %s`,
			db.Catalog(), db.Schema(), cfg.TableName,
			colList,
			colList,
			stageTableName)
		if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
			return fmt.Errorf("failed to insert into fact table: %w", err)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stageTableName)); err != nil {
			log.Error("failed to drop stage table", "error", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	})
}

// ReplacePartitionViaCSV atomically replaces one date partition of a fact
// table: all existing rows with DateColumn = date are deleted and the staged
// CSV rows are inserted, in a single transaction. Re-running an ingest for a
// date therefore never duplicates rows. A count of zero clears the partition.
func ReplacePartitionViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg FactTableConfig,
	date string,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	replaceStart := time.Now()
	defer func() {
		log.Debug("fact table partition replace completed",
			"table", cfg.TableName,
			"date", date,
			"rows", count,
			"duration", time.Since(replaceStart).String())
	}()

	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.DateColumn == "" {
		return fmt.Errorf("date_column is required for partition replacement")
	}

	if err := CreateFactTable(ctx, log, conn, cfg); err != nil {
		return fmt.Errorf("failed to create fact table: %w", err)
	}

	var tmpFile string
	if count > 0 {
		var err error
		tmpFile, err = writeFactsCSV(ctx, cfg, count, writeCSVFn)
		if tmpFile != "" {
			defer os.Remove(tmpFile)
		}
		if err != nil {
			return err
		}
	}

	colNames, err := cfg.columnNames()
	if err != nil {
		return err
	}
	colList := strings.Join(colNames, ", ")

	return RetryWithBackoff(ctx, log, fmt.Sprintf("replace partition %s %s", cfg.TableName, date), func() error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled before transaction for %s: %w", cfg.TableName, ctx.Err())
		default:
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", cfg.TableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", cfg.TableName, "error", err)
			}
		}()

		db := conn.DB()

		deleteSQL := fmt.Sprintf("DELETE FROM %s.%s.%s WHERE %s = DATE '%s'",
			db.Catalog(), db.Schema(), cfg.TableName, cfg.DateColumn, date)
		if _, err := tx.ExecContext(ctx, deleteSQL); err != nil {
			return fmt.Errorf("failed to delete partition rows: %w", err)
		}

		if count > 0 {
			stageTableName := fmt.Sprintf("%s_stage", cfg.TableName)
			if err := stageFactsCSV(ctx, tx, cfg, stageTableName, tmpFile); err != nil {
				return err
			}

			insertSQL := fmt.Sprintf(`INSERT INTO %s.%s.%s (%s)
				SELECT %s FROM %s`,
				db.Catalog(), db.Schema(), cfg.TableName,
				colList,
				colList,
				stageTableName)
			if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
				return fmt.Errorf("failed to insert into fact table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stageTableName)); err != nil {
				log.Error("failed to drop stage table", "error", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	})
}

// writeFactsCSV writes count rows to a temp CSV file and returns its path.
// The caller removes the file when done.
func writeFactsCSV(ctx context.Context, cfg FactTableConfig, count int, writeCSVFn func(*csv.Writer, int) error) (string, error) {
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_facts_*.csv", cfg.TableName))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmpFile.Close()

	csvWriter := csv.NewWriter(tmpFile)
	csvWriter.Comma = ','

	for i := range count {
		select {
		case <-ctx.Done():
			return tmpFile.Name(), fmt.Errorf("context cancelled during CSV writing: %w", ctx.Err())
		default:
		}

		if err := writeCSVFn(csvWriter, i); err != nil {
			return tmpFile.Name(), fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return tmpFile.Name(), fmt.Errorf("failed to flush CSV: %w", err)
	}

	return tmpFile.Name(), nil
}

// stageFactsCSV creates the staging table inside tx and loads the CSV into it.
func stageFactsCSV(ctx context.Context, tx *sql.Tx, cfg FactTableConfig, stageTableName, csvPath string) error {
	if err := createStageTableForFacts(ctx, tx, cfg, stageTableName); err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}

	copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", stageTableName, csvPath)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to COPY FROM CSV: %w", err)
	}
	return nil
}

// CreateFactTable creates the fact table if it doesn't exist
// This is a public function that can be called to create tables before validation
func CreateFactTable(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg FactTableConfig,
) error {
	db := conn.DB()

	colDefs := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		colDefs = append(colDefs, fmt.Sprintf("%s %s", strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])))
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s.%s (
		%s
	)`,
		db.Catalog(), db.Schema(), cfg.TableName,
		strings.Join(colDefs, ",\n\t\t"))

	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create fact table: %w", err)
	}

	// Partitioning is a DuckLake feature; plain DuckDB tables skip it.
	if cfg.PartitionByDate {
		if _, ok := db.(*Lake); ok {
			partitionSQL := fmt.Sprintf(`ALTER TABLE %s.%s.%s SET PARTITIONED BY (%s)`,
				db.Catalog(), db.Schema(), cfg.TableName, cfg.DateColumn)
			if _, err := conn.ExecContext(ctx, partitionSQL); err != nil {
				// Partitioning might fail if table already exists and is partitioned differently
				// Log but don't fail - this is idempotent
				log.Debug("failed to set partitioning (may already be partitioned)", "error", err)
			}
		}
	}

	return nil
}

// createStageTableForFacts creates a temporary staging table for fact data
func createStageTableForFacts(
	ctx context.Context,
	tx *sql.Tx,
	cfg FactTableConfig,
	stageTableName string,
) error {
	colDefs := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid column definition %q: expected format 'name:type'", col)
		}
		// For staging, use VARCHAR for all columns to simplify CSV loading
		// DuckDB will handle type conversion on INSERT
		colDefs = append(colDefs, fmt.Sprintf("%s VARCHAR", strings.TrimSpace(parts[0])))
	}

	createSQL := fmt.Sprintf(`CREATE TEMP TABLE %s (
		%s
	)`,
		stageTableName,
		strings.Join(colDefs, ",\n\t\t"))

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}

	return nil
}
