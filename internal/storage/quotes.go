package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"chantier/internal/core"
	applog "chantier/internal/log"
)

const quoteColumns = `id, company, need, price, is_estimated, is_accepted, date, created_at`

// ListQuotes returns every quote hydrated with its tags and files, by date
// descending. Undated quotes come last, newest first.
func (r *SQLiteRepository) ListQuotes(ctx context.Context) ([]core.Quote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes ORDER BY date IS NULL, date DESC, created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := []core.Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}

	tagsByQuote, err := quoteTags.load(ctx, r.db)
	if err != nil {
		return nil, err
	}
	filesByQuote, err := r.loadQuoteFiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range quotes {
		quotes[i].Tags = tagsOrEmpty(tagsByQuote[quotes[i].ID])
		quotes[i].Files = filesByQuote[quotes[i].ID]
		if quotes[i].Files == nil {
			quotes[i].Files = []core.QuoteFile{}
		}
	}
	return quotes, nil
}

// GetQuote returns one hydrated quote or core.ErrNotFound.
func (r *SQLiteRepository) GetQuote(ctx context.Context, id int64) (core.Quote, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id)
	q, err := scanQuote(row)
	if err == sql.ErrNoRows {
		return core.Quote{}, core.ErrNotFound
	}
	if err != nil {
		return core.Quote{}, err
	}

	tags, err := quoteTags.load(ctx, r.db)
	if err != nil {
		return core.Quote{}, err
	}
	q.Tags = tagsOrEmpty(tags[id])
	if q.Files, err = r.ListQuoteFiles(ctx, id); err != nil {
		return core.Quote{}, err
	}
	return q, nil
}

func (r *SQLiteRepository) CreateQuote(ctx context.Context, in core.QuoteInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO quotes (company, need, price, is_estimated, is_accepted, date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nullString(in.Company), strings.TrimSpace(in.Need), in.Price.String(),
			boolInt(in.IsEstimated), boolInt(in.IsAccepted), nullDate(in.Date), timestamp(now()))
		if err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		return quoteTags.replace(ctx, tx, id, in.TagIDs)
	})
	if err != nil {
		return 0, fmt.Errorf("create quote: %w", err)
	}

	slog.InfoContext(ctx, "Quote created", applog.FieldEntityID, id, "need", in.Need,
		applog.FieldAmount, in.Price.String(), applog.FieldTags, in.TagIDs)
	return id, nil
}

// UpdateQuote replaces the quote's fields and tag set in one transaction.
// An unknown id is a no-op.
func (r *SQLiteRepository) UpdateQuote(ctx context.Context, id int64, in core.QuoteInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE quotes SET company = ?, need = ?, price = ?, is_estimated = ?, is_accepted = ?, date = ?
			 WHERE id = ?`,
			nullString(in.Company), strings.TrimSpace(in.Need), in.Price.String(),
			boolInt(in.IsEstimated), boolInt(in.IsAccepted), nullDate(in.Date), id)
		if err != nil {
			return fmt.Errorf("update quote: %w", err)
		}
		if affected(res) == 0 {
			logNoop(ctx, res, "quote", id)
			return nil
		}
		return quoteTags.replace(ctx, tx, id, in.TagIDs)
	})
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}

	slog.InfoContext(ctx, "Quote updated", applog.FieldEntityID, id, applog.FieldAmount, in.Price.String(),
		applog.FieldTags, in.TagIDs)
	return nil
}

// SetQuoteAccepted toggles the committed flag of a quote.
func (r *SQLiteRepository) SetQuoteAccepted(ctx context.Context, id int64, accepted bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE quotes SET is_accepted = ? WHERE id = ?`, boolInt(accepted), id)
	if err != nil {
		return fmt.Errorf("set quote accepted: %w", err)
	}
	logNoop(ctx, res, "quote", id)

	slog.InfoContext(ctx, "Quote acceptance changed", "id", id, "accepted", accepted)
	return nil
}

// DeleteQuote removes a quote. Tag links and file records cascade; linked
// expenses become unlinked.
func (r *SQLiteRepository) DeleteQuote(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	logNoop(ctx, res, "quote", id)

	slog.InfoContext(ctx, "Quote deleted", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (core.Quote, error) {
	var (
		q                     core.Quote
		company, date         sql.NullString
		price, createdAt      string
		isEstimated, accepted int
	)
	if err := row.Scan(&q.ID, &company, &q.Need, &price, &isEstimated, &accepted, &date, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return core.Quote{}, err
		}
		return core.Quote{}, fmt.Errorf("scan quote: %w", err)
	}

	amount, err := decimal.NewFromString(price)
	if err != nil {
		return core.Quote{}, fmt.Errorf("parse quote %d price %q: %w", q.ID, price, err)
	}
	q.Price = amount
	q.Company = stringPtr(company)
	q.IsEstimated = isEstimated != 0
	q.IsAccepted = accepted != 0
	q.Date = datePtr(date)
	q.CreatedAt = parseTimestamp(createdAt)
	return q, nil
}
