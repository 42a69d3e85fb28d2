package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/always-cache/ui-site/pkg/payload"
)

const table = "ui_site"

// MemoryDB is the path that opens an in-memory database, shared within the process.
const MemoryDB = "memory"

// SQLiteStore keeps records in a sqlite table keyed by (alias, langcode).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
// An empty path or MemoryDB opens an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	memory := path == "" || path == MemoryDB
	if memory {
		dsn = "file:ui-site-metadata?mode=memory&cache=shared"
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "open", Err: err}
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS ui_site (
    langcode TEXT NOT NULL,
    alias TEXT NOT NULL,
    internal_path TEXT NOT NULL,
    type TEXT NOT NULL,
    data BLOB,
    ui_path TEXT NOT NULL,
    PRIMARY KEY (alias, langcode)
);
`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the record or updates the one with the same alias and langcode.
func (s *SQLiteStore) Upsert(ctx context.Context, r Record) error {
	data := r.RawPayload
	if data == nil {
		var err error
		if data, err = payload.Marshal(r.Payload); err != nil {
			return fmt.Errorf("encode payload for %s: %w", r.Alias, err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ui_site (langcode, alias, internal_path, type, data, ui_path)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (alias, langcode) DO UPDATE SET
    internal_path = excluded.internal_path,
    type = excluded.type,
    data = excluded.data,
    ui_path = excluded.ui_path`,
		r.Langcode, r.Alias, r.InternalPath, string(r.Type), data, r.UIPath)
	if err != nil {
		return &PersistenceError{Op: "upsert", Err: err}
	}
	return nil
}

// DeleteAll removes the records matching filter and returns how many were removed.
// An empty filter removes every record.
func (s *SQLiteStore) DeleteAll(ctx context.Context, filter Filter) (int64, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+where, args...)
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Err: err}
	}
	return n, nil
}

// Find returns every record matching filter, in storage order.
// It returns an empty slice when nothing matches.
func (s *SQLiteStore) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Record, error) {
	return s.find(ctx, filter, opts, false)
}

// First returns one record matching filter, or nil when nothing matches.
func (s *SQLiteStore) First(ctx context.Context, filter Filter, opts FindOptions) (*Record, error) {
	records, err := s.find(ctx, filter, opts, true)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (s *SQLiteStore) find(ctx context.Context, filter Filter, opts FindOptions, first bool) ([]Record, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	query := "SELECT langcode, alias, internal_path, type, data, ui_path FROM " + table + where
	if first {
		query += " LIMIT 1"
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "select", Err: err}
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var typ string
		if err := rows.Scan(&r.Langcode, &r.Alias, &r.InternalPath, &typ, &r.RawPayload, &r.UIPath); err != nil {
			return nil, &PersistenceError{Op: "select", Err: err}
		}
		r.Type = RecordType(typ)
		if !opts.Raw {
			if err := payload.Unmarshal(r.RawPayload, &r.Payload); err != nil {
				return nil, &CorruptRecordError{Alias: r.Alias, Langcode: r.Langcode, Err: err}
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "select", Err: err}
	}
	return records, nil
}

// whereClause builds a WHERE clause from filter. Columns are sorted so equal
// filters produce equal statements.
func whereClause(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	columns := make([]string, 0, len(filter))
	for column := range filter {
		if !filterColumns[column] {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	conditions := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		conditions[i] = column + " = ?"
		args[i] = filter[column]
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}
