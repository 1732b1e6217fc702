// Package warehouse wraps the Snowflake connection behind the operations
// the pipeline needs: view DDL fetch/replace, per-year schema and table
// management, CSV loads with schema autodetection, and the counting
// queries the verification checks run.
package warehouse

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	apperrors "eavsctl/pkg/errors"
)

// Config holds the warehouse connection settings.
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string // maps to the project identifier in view text
	Warehouse string
	Role      string
	Timeout   time.Duration
}

// Service provides warehouse operations over a single connection pool.
type Service struct {
	db        *sql.DB
	config    Config
	connected bool
}

// NewService creates a Service for the given connection settings.
func NewService(config Config) *Service {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	return &Service{config: config}
}

// NewServiceWithDB wraps an existing database handle. Used by tests to
// inject a mock connection.
func NewServiceWithDB(db *sql.DB, config Config) *Service {
	s := NewService(config)
	s.db = db
	s.connected = true
	return s
}

// Connect opens and verifies the connection. Safe to call more than once.
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	dsn := fmt.Sprintf("%s:%s@%s/%s?warehouse=%s&role=%s",
		s.config.Username,
		s.config.Password,
		s.config.Account,
		s.config.Database,
		s.config.Warehouse,
		s.config.Role,
	)

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return apperrors.ConnectionError("Failed to open warehouse connection", err).
			WithContext("account", s.config.Account)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "authentication") {
			return apperrors.New(apperrors.ErrCodeAuthenticationFailed, "Authentication failed").
				WithContext("user", s.config.Username).
				WithSuggestions(
					"Verify your username and password",
					"Check the account identifier in the connection config",
				)
		}
		return apperrors.ConnectionError("Failed to connect to warehouse", err).
			WithContext("account", s.config.Account)
	}

	s.db = db
	s.connected = true
	return nil
}

// Close releases the connection pool.
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.db.Close()
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeout)
}

// Project returns the identifier used as the first part of fully
// qualified names.
func (s *Service) Project() string {
	return s.config.Database
}

// qualify builds <database>.<dataset>.<name>.
func (s *Service) qualify(dataset, name string) string {
	return fmt.Sprintf("%s.%s.%s", s.config.Database, dataset, name)
}

// Exec runs a single statement.
func (s *Service) Exec(ctx context.Context, query string) error {
	execCtx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(execCtx, query); err != nil {
		return apperrors.SQLError("Statement execution failed", query, err)
	}
	return nil
}

// FetchViewDDL returns the current definition of a view, or an
// ErrCodeViewNotFound error when the view does not exist.
func (s *Service) FetchViewDDL(ctx context.Context, dataset, view string) (string, error) {
	queryCtx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT GET_DDL('VIEW', '%s', TRUE)", s.qualify(dataset, view))
	var ddl string
	if err := s.db.QueryRowContext(queryCtx, query).Scan(&ddl); err != nil {
		if err == sql.ErrNoRows || strings.Contains(err.Error(), "does not exist") {
			return "", apperrors.New(apperrors.ErrCodeViewNotFound,
				fmt.Sprintf("view %s not found", s.qualify(dataset, view)))
		}
		return "", apperrors.SQLError("Failed to fetch view definition", query, err)
	}
	return ddl, nil
}

// ReplaceView pushes a complete CREATE OR REPLACE VIEW statement. The
// replace is a single atomic overwrite of the view's query text.
func (s *Service) ReplaceView(ctx context.Context, createSQL string) error {
	if err := s.Exec(ctx, createSQL); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSQLExecution, "Failed to replace view")
	}
	return nil
}

// EnsureDataset creates the per-year schema when missing.
func (s *Service) EnsureDataset(ctx context.Context, dataset string) error {
	return s.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s.%s", s.config.Database, dataset))
}

// LoadCSV replaces a table with the contents of a staged CSV. The column
// layout is inferred from the file, so new vendor columns never require a
// DDL change, and the CREATE OR REPLACE gives truncate-on-write semantics:
// re-running a load is idempotent.
func (s *Service) LoadCSV(ctx context.Context, dataset, table, stagePath, fileFormat string) error {
	fqn := s.qualify(dataset, table)

	createSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s USING TEMPLATE (
    SELECT ARRAY_AGG(OBJECT_CONSTRUCT(*))
    FROM TABLE(INFER_SCHEMA(LOCATION => '%s', FILE_FORMAT => '%s'))
)`, fqn, stagePath, fileFormat)
	if err := s.Exec(ctx, createSQL); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeLoadFailed,
			fmt.Sprintf("Failed to create table %s from inferred schema", fqn))
	}

	copySQL := fmt.Sprintf(`COPY INTO %s
FROM '%s'
FILE_FORMAT = (FORMAT_NAME = '%s')
MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE`, fqn, stagePath, fileFormat)
	if err := s.Exec(ctx, copySQL); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeLoadFailed,
			fmt.Sprintf("Failed to load data into %s", fqn))
	}
	return nil
}

// Materialize snapshots a view's rows into a staging table so downstream
// reads avoid recomputing the union.
func (s *Service) Materialize(ctx context.Context, dataset, table, sourceFQN string) error {
	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s",
		s.qualify(dataset, table), sourceFQN)
	if err := s.Exec(ctx, query); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSQLExecution,
			fmt.Sprintf("Failed to materialize %s", s.qualify(dataset, table)))
	}
	return nil
}

// CountRows returns the row count of a fully qualified table or view.
func (s *Service) CountRows(ctx context.Context, fqn string) (int64, error) {
	return s.countQuery(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", fqn))
}

// CountWhere returns the number of rows matching a predicate.
func (s *Service) CountWhere(ctx context.Context, fqn, predicate string) (int64, error) {
	return s.countQuery(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", fqn, predicate))
}

func (s *Service) countQuery(ctx context.Context, query string) (int64, error) {
	queryCtx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.QueryRowContext(queryCtx, query).Scan(&count); err != nil {
		return 0, apperrors.SQLError("Count query failed", query, err)
	}
	return count, nil
}

// Columns lists a table's column names in ordinal order.
func (s *Service) Columns(ctx context.Context, dataset, table string) ([]string, error) {
	queryCtx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT column_name
FROM %s.information_schema.columns
WHERE table_schema = UPPER('%s') AND table_name = UPPER('%s')
ORDER BY ordinal_position`, s.config.Database, dataset, table)

	rows, err := s.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, apperrors.SQLError("Failed to list columns", query, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.SQLError("Failed to scan column name", query, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.SQLError("Failed to list columns", query, err)
	}
	return cols, nil
}

// DuplicateKeys returns the values of a key column that appear more than
// once, with their occurrence counts.
func (s *Service) DuplicateKeys(ctx context.Context, fqn, keyColumn string) (map[string]int64, error) {
	queryCtx, cancel := s.opContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s, COUNT(*) AS n
FROM %s
GROUP BY %s
HAVING COUNT(*) > 1`, keyColumn, fqn, keyColumn)

	rows, err := s.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, apperrors.SQLError("Duplicate key query failed", query, err)
	}
	defer rows.Close()

	dupes := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, apperrors.SQLError("Failed to scan duplicate key row", query, err)
		}
		dupes[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.SQLError("Duplicate key query failed", query, err)
	}
	return dupes, nil
}

// ExportCSV runs a query and streams the result as CSV, header first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, query string) (int64, error) {
	queryCtx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, query)
	if err != nil {
		return 0, apperrors.SQLError("Export query failed", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, apperrors.SQLError("Failed to read export columns", query, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Failed to write CSV header")
	}

	values := make([]sql.NullString, len(cols))
	scanArgs := make([]interface{}, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	var written int64
	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return written, apperrors.SQLError("Failed to scan export row", query, err)
		}
		for i, v := range values {
			if v.Valid {
				record[i] = v.String
			} else {
				record[i] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return written, apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Failed to write CSV row")
		}
		written++
	}
	if err := rows.Err(); err != nil {
		return written, apperrors.SQLError("Export query failed", query, err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, apperrors.Wrap(err, apperrors.ErrCodeFileOperation, "Failed to flush CSV output")
	}
	return written, nil
}
