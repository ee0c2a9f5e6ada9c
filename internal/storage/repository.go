package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"chantier/internal/budget"
	"chantier/internal/core"
)

// SQLiteRepository is the ledger store.
type SQLiteRepository struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DSN builds the modernc connection string; every pooled connection enforces
// foreign keys so association rows cascade.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing on success.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadSnapshot reads the whole hydrated ledger. Collections load concurrently.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (budget.Snapshot, error) {
	var s budget.Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		s.Payers, err = r.ListPayers(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Tags, err = r.ListTags(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Quotes, err = r.ListQuotes(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Expenses, err = r.ListExpenses(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.Incomes, err = r.ListIncomes(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return budget.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return s, nil
}

// Stats holds row counts per table.
type Stats struct {
	Payers     int64 `json:"payers" yaml:"payers"`
	Tags       int64 `json:"tags" yaml:"tags"`
	Quotes     int64 `json:"quotes" yaml:"quotes"`
	Expenses   int64 `json:"expenses" yaml:"expenses"`
	Incomes    int64 `json:"incomes" yaml:"incomes"`
	QuoteFiles int64 `json:"quote_files" yaml:"quote_files"`
}

func (r *SQLiteRepository) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dst   *int64
	}{
		{"payers", &st.Payers},
		{"tags", &st.Tags},
		{"quotes", &st.Quotes},
		{"expenses", &st.Expenses},
		{"incomes", &st.Incomes},
		{"quote_files", &st.QuoteFiles},
	}
	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return st, nil
}

// mapConstraintError translates SQLite constraint failures into core errors.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", core.ErrConflict, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", core.ErrUnknownReference, err)
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", core.ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", core.ErrUnknownReference, err)
	}
	return err
}

func logNoop(ctx context.Context, res sql.Result, entity string, id int64) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.DebugContext(ctx, "No rows affected, treating as no-op", "entity", entity, "id", id)
	}
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// Column codecs.

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: trimmed, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(core.DateLayout), Valid: true}
}

func datePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(core.DateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// now is replaceable in tests.
var now = time.Now
