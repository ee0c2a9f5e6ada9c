package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"chantier/internal/core"
)

const quoteFileColumns = `id, quote_id, name, storage_path, mime_type, size, created_at`

// CreateQuoteFile records an attachment already written to disk.
func (r *SQLiteRepository) CreateQuoteFile(ctx context.Context, f core.QuoteFile) (core.QuoteFile, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO quote_files (quote_id, name, storage_path, mime_type, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.QuoteID, f.Name, f.StoragePath, f.MimeType, f.Size, timestamp(f.CreatedAt))
	if err != nil {
		return core.QuoteFile{}, fmt.Errorf("create quote file: %w", mapConstraintError(err))
	}
	if f.ID, err = res.LastInsertId(); err != nil {
		return core.QuoteFile{}, fmt.Errorf("create quote file: %w", err)
	}

	slog.InfoContext(ctx, "Quote file recorded", "id", f.ID, "quote_id", f.QuoteID, "name", f.Name, "size", f.Size)
	return f, nil
}

func (r *SQLiteRepository) GetQuoteFile(ctx context.Context, id int64) (core.QuoteFile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+quoteFileColumns+` FROM quote_files WHERE id = ?`, id)
	return scanQuoteFile(row)
}

// GetQuoteFileByStoragePath looks up a record by its stored file name.
func (r *SQLiteRepository) GetQuoteFileByStoragePath(ctx context.Context, name string) (core.QuoteFile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+quoteFileColumns+` FROM quote_files WHERE storage_path = ?`, name)
	return scanQuoteFile(row)
}

func (r *SQLiteRepository) ListQuoteFiles(ctx context.Context, quoteID int64) ([]core.QuoteFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+quoteFileColumns+` FROM quote_files WHERE quote_id = ? ORDER BY created_at, id`, quoteID)
	if err != nil {
		return nil, fmt.Errorf("list quote files: %w", err)
	}
	defer rows.Close()

	files := []core.QuoteFile{}
	for rows.Next() {
		f, err := scanQuoteFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *SQLiteRepository) DeleteQuoteFile(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quote_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete quote file: %w", err)
	}
	logNoop(ctx, res, "quote_file", id)
	return nil
}

func (r *SQLiteRepository) loadQuoteFiles(ctx context.Context) (map[int64][]core.QuoteFile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+quoteFileColumns+` FROM quote_files ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load quote files: %w", err)
	}
	defer rows.Close()

	byQuote := make(map[int64][]core.QuoteFile)
	for rows.Next() {
		f, err := scanQuoteFile(rows)
		if err != nil {
			return nil, err
		}
		byQuote[f.QuoteID] = append(byQuote[f.QuoteID], f)
	}
	return byQuote, rows.Err()
}

func scanQuoteFile(row rowScanner) (core.QuoteFile, error) {
	var (
		f         core.QuoteFile
		createdAt string
	)
	err := row.Scan(&f.ID, &f.QuoteID, &f.Name, &f.StoragePath, &f.MimeType, &f.Size, &createdAt)
	if err == sql.ErrNoRows {
		return core.QuoteFile{}, core.ErrNotFound
	}
	if err != nil {
		return core.QuoteFile{}, fmt.Errorf("scan quote file: %w", err)
	}
	f.CreatedAt = parseTimestamp(createdAt)
	return f, nil
}
