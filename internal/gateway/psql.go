package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/jeroenrinzema/psql-wire/codes"
	pgerror "github.com/jeroenrinzema/psql-wire/errors"
	"github.com/jeroenrinzema/psql-wire/pkg/buffer"
	"github.com/jeroenrinzema/psql-wire/pkg/types"
	"github.com/lib/pq/oid"
)

// createAuthStrategy returns the session auth strategy: no configured
// accounts means open access, otherwise a ClearTextPassword exchange checked
// against the account map.
func createAuthStrategy(log *slog.Logger, accounts map[string]string) wire.AuthStrategy {
	return func(ctx context.Context, writer *buffer.Writer, reader *buffer.Reader) (context.Context, error) {
		params := wire.ClientParameters(ctx)
		database := params[wire.ParamDatabase]
		username := params[wire.ParamUsername]

		if len(accounts) == 0 {
			writer.Start(types.ServerAuth)
			writer.AddInt32(0) // authOK
			if err := writer.End(); err != nil {
				return ctx, err
			}
			log.Debug("gateway: authentication disabled, allowing connection", "database", database, "username", username)
			return ctx, nil
		}

		writer.Start(types.ServerAuth)
		writer.AddInt32(3) // authClearTextPassword
		if err := writer.End(); err != nil {
			return ctx, err
		}

		t, _, err := reader.ReadTypedMsg()
		if err != nil {
			return ctx, err
		}
		if t != types.ClientPassword {
			return ctx, fmt.Errorf("unexpected password message type: %v", t)
		}
		password, err := reader.GetString()
		if err != nil {
			return ctx, err
		}

		expectedPassword, exists := accounts[username]
		if !exists || password != expectedPassword {
			log.Debug("gateway: authentication failed", "username", username)
			authErr := pgerror.WithCode(errors.New("invalid username/password"), codes.InvalidPassword)
			if err := wire.ErrorCode(writer, authErr); err != nil {
				return ctx, err
			}
			return ctx, authErr
		}

		log.Debug("gateway: authentication successful", "username", username)
		writer.Start(types.ServerAuth)
		writer.AddInt32(0) // authOK
		return ctx, writer.End()
	}
}

// queryHandler parses one wire-protocol query. Results are materialized here
// because the prepared statement needs column type information up front.
func (s *Server) queryHandler(ctx context.Context, query string) (wire.PreparedStatements, error) {
	s.log.Debug("gateway: incoming query", "query", query)

	// Clients probe connections with empty queries or bare semicolons.
	normalizedQuery := strings.TrimSpace(query)
	if normalizedQuery == "" || normalizedQuery == ";" {
		return wire.Prepared(wire.NewStatement(
			func(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
				return writer.Complete("")
			},
			wire.WithColumns(wire.Columns{}),
		)), nil
	}

	// "-- ping" is the health-check query used by load balancers.
	normalizedPing := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if normalizedPing == "-- ping" {
		columns := wire.Columns{
			wire.Column{Name: "pong", Oid: pgtype.TextOID},
		}
		return wire.Prepared(wire.NewStatement(
			func(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
				if err := writer.Row([]any{"pong"}); err != nil {
					return err
				}
				return writer.Complete("SELECT")
			},
			wire.WithColumns(columns),
		)), nil
	}

	rewrittenQuery := rewriteQueryForDuckDB(query)
	if rewrittenQuery != query {
		s.log.Debug("gateway: rewrote query for duckdb", "original", query, "rewritten", rewrittenQuery)
		query = rewrittenQuery
	}

	resp, err := s.store.Query(ctx, query, 0)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	columns := make(wire.Columns, len(resp.Columns))
	for i, colName := range resp.Columns {
		var oidType oid.Oid
		if i < len(resp.Types) {
			oidType = mapDuckDBTypeToPostgreSQLOID(resp.Types[i])
		} else {
			oidType = pgtype.TextOID
		}
		columns[i] = wire.Column{
			Name: colName,
			Oid:  oidType,
		}
	}

	return wire.Prepared(wire.NewStatement(
		func(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
			for _, row := range resp.Rows {
				values := make([]any, len(row))
				for i, val := range row {
					var oidType oid.Oid
					if i < len(columns) {
						oidType = columns[i].Oid
					} else {
						oidType = pgtype.TextOID
					}
					encodedVal, err := encodeValueForPostgreSQL(val, oidType)
					if err != nil {
						return fmt.Errorf("failed to encode value for column %s: %w", resp.Columns[i], err)
					}
					values[i] = encodedVal
				}
				if err := writer.Row(values); err != nil {
					return err
				}
			}
			return writer.Complete("SELECT")
		},
		wire.WithColumns(columns),
	)), nil
}

// mapDuckDBTypeToPostgreSQLOID maps DuckDB database type names to PostgreSQL OIDs.
func mapDuckDBTypeToPostgreSQLOID(dbTypeName string) oid.Oid {
	dbTypeName = strings.ToUpper(strings.TrimSpace(dbTypeName))

	switch {
	case strings.HasPrefix(dbTypeName, "BOOLEAN") || strings.HasPrefix(dbTypeName, "BOOL"):
		return pgtype.BoolOID
	case strings.HasPrefix(dbTypeName, "TINYINT"):
		return pgtype.Int2OID
	case strings.HasPrefix(dbTypeName, "SMALLINT") || strings.HasPrefix(dbTypeName, "INT2"):
		return pgtype.Int2OID
	case strings.HasPrefix(dbTypeName, "INTEGER") || strings.HasPrefix(dbTypeName, "INT") || strings.HasPrefix(dbTypeName, "INT4"):
		return pgtype.Int4OID
	case strings.HasPrefix(dbTypeName, "BIGINT") || strings.HasPrefix(dbTypeName, "INT8") || strings.HasPrefix(dbTypeName, "HUGEINT"):
		return pgtype.Int8OID
	case strings.HasPrefix(dbTypeName, "DOUBLE") || strings.HasPrefix(dbTypeName, "FLOAT8"):
		return pgtype.Float8OID
	case strings.HasPrefix(dbTypeName, "REAL") || strings.HasPrefix(dbTypeName, "FLOAT4") || strings.HasPrefix(dbTypeName, "FLOAT"):
		return pgtype.Float4OID
	case strings.HasPrefix(dbTypeName, "DECIMAL") || strings.HasPrefix(dbTypeName, "NUMERIC"):
		return pgtype.NumericOID
	case strings.HasPrefix(dbTypeName, "VARCHAR") || strings.HasPrefix(dbTypeName, "CHAR") || strings.HasPrefix(dbTypeName, "STRING") || strings.HasPrefix(dbTypeName, "TEXT"):
		return pgtype.TextOID
	case strings.HasPrefix(dbTypeName, "DATE"):
		return pgtype.DateOID
	case strings.HasPrefix(dbTypeName, "TIMESTAMPTZ") || strings.HasPrefix(dbTypeName, "TIMESTAMP WITH TIME ZONE"):
		return pgtype.TimestamptzOID
	case strings.HasPrefix(dbTypeName, "TIMESTAMP") || strings.HasPrefix(dbTypeName, "DATETIME"):
		return pgtype.TimestampOID
	case strings.HasPrefix(dbTypeName, "TIME"):
		return pgtype.TimeOID
	case strings.HasPrefix(dbTypeName, "BLOB") || strings.HasPrefix(dbTypeName, "BYTEA") || strings.HasPrefix(dbTypeName, "BINARY"):
		return pgtype.ByteaOID
	case strings.HasPrefix(dbTypeName, "UUID"):
		return pgtype.UUIDOID
	case strings.HasPrefix(dbTypeName, "JSON") || strings.HasPrefix(dbTypeName, "JSONB"):
		return pgtype.JSONOID
	default:
		return pgtype.TextOID
	}
}

// encodeValueForPostgreSQL shapes a scanned DuckDB value so psql-wire can
// encode it under the given OID.
func encodeValueForPostgreSQL(val any, oidType oid.Oid) (any, error) {
	if val == nil {
		return nil, nil
	}

	switch oidType {
	case pgtype.BoolOID:
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse bool: %w", err)
			}
			return b, nil
		default:
			return val, nil
		}
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return val, nil
	case pgtype.Float4OID, pgtype.Float8OID:
		return val, nil
	case pgtype.NumericOID:
		return fmt.Sprintf("%v", val), nil
	case pgtype.TextOID, pgtype.VarcharOID:
		return fmt.Sprintf("%v", val), nil
	case pgtype.DateOID, pgtype.TimeOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		if t, ok := val.(time.Time); ok {
			return t, nil
		}
		if s, ok := val.(string); ok {
			for _, layout := range []string{
				time.RFC3339,
				time.RFC3339Nano,
				"2006-01-02 15:04:05",
				"2006-01-02T15:04:05",
				"2006-01-02",
			} {
				if t, err := time.Parse(layout, s); err == nil {
					return t, nil
				}
			}
		}
		return fmt.Sprintf("%v", val), nil
	case pgtype.ByteaOID:
		switch v := val.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return []byte(fmt.Sprintf("%v", val)), nil
		}
	case pgtype.UUIDOID, pgtype.JSONOID, pgtype.JSONBOID:
		return fmt.Sprintf("%v", val), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

// rewriteQueryForDuckDB converts the PostgreSQL catalog introspection queries
// that psql and BI tools issue (\d and friends) into DuckDB-compatible SQL.
func rewriteQueryForDuckDB(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))

	if isPostgreSQLTableListingQuery(normalized) {
		return rewriteTableListingQuery()
	}

	if isPostgreSQLColumnListingQuery(normalized) {
		if tableName := extractTableNameFromColumnQuery(query); tableName != "" {
			return rewriteColumnListingQuery(tableName)
		}
	}

	return query
}

func isPostgreSQLTableListingQuery(normalizedQuery string) bool {
	hasInfoSchema := strings.Contains(normalizedQuery, "from information_schema.tables")
	hasSearchPath := strings.Contains(normalizedQuery, "search_path")
	hasCase := strings.Contains(normalizedQuery, "case")
	hasSystemSchemaExclusions := strings.Contains(normalizedQuery, "pg_catalog") ||
		strings.Contains(normalizedQuery, "information_schema") ||
		strings.Contains(normalizedQuery, "timescaledb")

	return hasInfoSchema && hasSearchPath && hasCase && hasSystemSchemaExclusions
}

func rewriteTableListingQuery() string {
	return `SELECT
  CASE
    WHEN table_schema = current_schema() THEN table_name
    ELSE table_schema || '.' || table_name
  END AS "table"
FROM information_schema.tables
WHERE table_schema = 'main'
ORDER BY
  CASE
    WHEN table_schema = current_schema() THEN 0
    ELSE 1
  END,
  "table"`
}

func isPostgreSQLColumnListingQuery(normalizedQuery string) bool {
	hasInfoSchema := strings.Contains(normalizedQuery, "from information_schema.columns")
	hasParseIdent := strings.Contains(normalizedQuery, "parse_ident")
	hasSearchPath := strings.Contains(normalizedQuery, "search_path")
	hasColumnAndType := strings.Contains(normalizedQuery, `"column"`) && strings.Contains(normalizedQuery, `"type"`)

	return hasInfoSchema && hasParseIdent && hasSearchPath && hasColumnAndType
}

var (
	parseIdentPattern = regexp.MustCompile(`parse_ident\s*\(\s*'([^']+)'`)
	tableNamePattern  = regexp.MustCompile(`quote_ident\(table_name\)\s*=\s*'([^']+)'`)
)

func extractTableNameFromColumnQuery(query string) string {
	matches := parseIdentPattern.FindStringSubmatch(query)
	if len(matches) > 1 {
		return matches[1]
	}

	matches = tableNamePattern.FindStringSubmatch(strings.ToLower(query))
	if len(matches) > 1 {
		return matches[1]
	}

	return ""
}

func rewriteColumnListingQuery(tableName string) string {
	tableParts := strings.Split(tableName, ".")
	var whereClause string
	if len(tableParts) == 2 {
		whereClause = fmt.Sprintf("table_schema = '%s' AND table_name = '%s'", tableParts[0], tableParts[1])
	} else {
		whereClause = fmt.Sprintf("table_name = '%s' AND table_schema = current_schema()", tableName)
	}

	return fmt.Sprintf(`SELECT
  column_name AS "column",
  data_type AS "type"
FROM information_schema.columns
WHERE %s
ORDER BY ordinal_position`, whereClause)
}
