// Package history appends device message rows to the PostgreSQL time-series store.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/lib/pq"
)

// ColumnType is the SQL type a field is stored as.
type ColumnType int

const (
	Timestamp ColumnType = iota
	BigInt
	Int
	Text
	JSON
)

func (c ColumnType) sql() string {
	switch c {
	case Timestamp:
		return "TIMESTAMPTZ"
	case BigInt:
		return "BIGINT"
	case Int:
		return "INTEGER"
	case JSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// Field is one named column value of a row.
type Field struct {
	Name  string
	Type  ColumnType
	Value any
}

// Inserter is the append-only history interface.
type Inserter interface {
	Insert(ctx context.Context, table string, fields, tags []Field) error
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store writes rows with database/sql. Destination tables are created on
// first use and widened when a row brings a new column.
type Store struct {
	db  *sql.DB
	log *log.Logger

	mu      sync.Mutex
	columns map[string]map[string]struct{}
}

var _ Inserter = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB, logger *log.Logger) *Store {
	return &Store{
		db:      db,
		log:     logger,
		columns: make(map[string]map[string]struct{}),
	}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int, pingTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

// Insert appends one row. Tags become columns as well; a tag that repeats
// a field name is skipped.
func (s *Store) Insert(ctx context.Context, table string, fields, tags []Field) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("invalid history table name %q", table)
	}
	cols, err := mergeColumns(fields, tags)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("history row for %s has no columns", table)
	}

	if err := s.ensureTable(ctx, table, cols); err != nil {
		return err
	}

	names := make([]string, len(cols))
	holders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = pq.QuoteIdentifier(c.Name)
		holders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = value(c)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table), strings.Join(names, ", "), strings.Join(holders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func mergeColumns(fields, tags []Field) ([]Field, error) {
	seen := make(map[string]struct{}, len(fields)+len(tags))
	out := make([]Field, 0, len(fields)+len(tags))
	for _, f := range fields {
		if !identRe.MatchString(f.Name) {
			return nil, fmt.Errorf("invalid history column name %q", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("duplicate history column %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		out = append(out, f)
	}
	for _, t := range tags {
		if !identRe.MatchString(t.Name) {
			return nil, fmt.Errorf("invalid history tag name %q", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// ensureTable creates the table, or adds the columns it lacks. Known
// layouts are cached so steady state costs no DDL.
func (s *Store) ensureTable(ctx context.Context, table string, cols []Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, ok := s.columns[table]
	if !ok {
		defs := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = pq.QuoteIdentifier(c.Name) + " " + c.Type.sql()
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(table), strings.Join(defs, ", "))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}

		known = make(map[string]struct{}, len(cols))
		for _, c := range cols {
			known[c.Name] = struct{}{}
		}
		if _, hasTS := known["ts"]; hasTS {
			if _, hasDevice := known["device_id"]; hasDevice {
				idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
					pq.QuoteIdentifier(table+"_device_ts_idx"), pq.QuoteIdentifier(table),
					pq.QuoteIdentifier("device_id"), pq.QuoteIdentifier("ts"))
				if _, err := s.db.ExecContext(ctx, idx); err != nil {
					return fmt.Errorf("failed to index table %s: %w", table, err)
				}
			}
		}
		s.columns[table] = known
		if s.log != nil {
			s.log.Debug("History table %s ready with %d columns", table, len(cols))
		}
		return nil
	}

	for _, c := range cols {
		if _, ok := known[c.Name]; ok {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			pq.QuoteIdentifier(table), pq.QuoteIdentifier(c.Name), c.Type.sql())
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to add column %s to %s: %w", c.Name, table, err)
		}
		known[c.Name] = struct{}{}
	}
	return nil
}

// value maps a field to a driver value. Empty JSON is stored as NULL.
func value(f Field) any {
	switch v := f.Value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return string(v)
	case json.RawMessage:
		if len(v) == 0 {
			return nil
		}
		return string(v)
	}
	return f.Value
}
