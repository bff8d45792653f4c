// Package store persists corporate action rows in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TimestampLayout formats the generated download timestamp (ISO-8601).
const TimestampLayout = time.RFC3339Nano

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadResult summarizes one CSV load.
type LoadResult struct {
	File         string
	RowsInserted int
}

// SQLiteStore wraps a single exclusive connection to the database file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger types.Logger
	now    func() time.Time
}

// Option customizes a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for progress messages.
func WithLogger(logger types.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logger }
}

// WithClock replaces time.Now for the generated timestamp column.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// Open opens (creating if needed) the SQLite file at path.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Sole writer for the run; rows go through one connection in order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database %q: %w", path, err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: log.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path is the database file this store was opened on.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func validateTable(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	return nil
}

// EnsureTable creates the fixed-schema table if it does not exist. Calling it
// repeatedly is safe.
func (s *SQLiteStore) EnsureTable(ctx context.Context, table string) error {
	if err := validateTable(table); err != nil {
		return &SchemaError{Table: table, Err: err}
	}

	defs := make([]string, len(Columns))
	for i, col := range Columns {
		defs[i] = "\t" + col + " TEXT"
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", table, strings.Join(defs, ",\n"))

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return &SchemaError{Table: table, Err: err}
	}

	s.logger.Info().
		Str("table", table).
		Str("database", s.path).
		Msgf("Table %q created (if it didn't exist) in database %q", table, s.path)
	return nil
}

// LoadCSV inserts every data row of csvPath into table, in file order, with
// the current time appended as the last column. The header only sizes the
// placeholder list. Field counts are not checked here: a row of the wrong
// width fails at the database, which aborts the remaining rows. Rows inserted
// before the failure stay committed.
func (s *SQLiteStore) LoadCSV(ctx context.Context, table, csvPath string) (*LoadResult, error) {
	result := &LoadResult{File: csvPath}

	if err := validateTable(table); err != nil {
		return result, err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return result, fmt.Errorf("opening CSV file %q: %w", csvPath, err)
	}
	defer f.Close()

	// UTF-8, with a leading byte order mark dropped if the export carries one.
	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return result, fmt.Errorf("reading header of %q: file is empty", csvPath)
		}
		return result, fmt.Errorf("reading header of %q: %w", csvPath, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	query := fmt.Sprintf("INSERT INTO %s VALUES (%s, ?)", table, placeholders)
	if len(header) == 0 {
		query = fmt.Sprintf("INSERT INTO %s VALUES (?)", table)
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return result, &InsertError{Table: table, File: csvPath, Row: 0, Err: err}
	}
	defer stmt.Close()

	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, &InsertError{Table: table, File: csvPath, Row: row, Err: err}
		}

		args := make([]any, 0, len(fields)+1)
		for _, field := range fields {
			args = append(args, field)
		}
		args = append(args, s.now().Format(TimestampLayout))

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return result, &InsertError{Table: table, File: csvPath, Row: row, Err: err}
		}
		result.RowsInserted++
	}

	s.logger.Info().
		Str("table", table).
		Str("file", csvPath).
		Int("rows", result.RowsInserted).
		Msgf("Data inserted successfully from %q into table %q", csvPath, table)
	return result, nil
}

// Count returns the number of rows in table.
func (s *SQLiteStore) Count(ctx context.Context, table string) (int, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows in %q: %w", table, err)
	}
	return n, nil
}

// ListRecords returns every row of table in insertion order.
func (s *SQLiteStore) ListRecords(ctx context.Context, table string) ([]CorporateActionRecord, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(Columns, ", "), table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %q: %w", table, err)
	}
	defer rows.Close()

	var records []CorporateActionRecord
	for rows.Next() {
		var rec CorporateActionRecord
		nullable := make([]sql.NullString, len(Columns))
		targets := make([]any, len(nullable))
		for i := range nullable {
			targets[i] = &nullable[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scanning row of %q: %w", table, err)
		}
		for i, dst := range rec.scanTargets() {
			*(dst.(*string)) = nullable[i].String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows of %q: %w", table, err)
	}
	return records, nil
}
