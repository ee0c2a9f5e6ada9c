package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"chantier/internal/core"
	applog "chantier/internal/log"
)

// ListExpenses returns expenses hydrated with payer name, linked quote need
// and tags, most recent date first; undated rows come last.
func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.payer_id, p.name, e.amount, e.purpose, e.label, e.date, e.quote_id,
		       COALESCE(q.need, ''), e.created_at
		FROM expenses e
		JOIN payers p ON p.id = e.payer_id
		LEFT JOIN quotes q ON q.id = e.quote_id
		ORDER BY e.date IS NULL, e.date DESC, e.created_at DESC, e.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e                 core.Expense
			amount, createdAt string
			label, date       sql.NullString
			quoteID           sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.PayerID, &e.PayerName, &amount, &e.Purpose, &label, &date,
			&quoteID, &e.QuoteNeed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse expense %d amount %q: %w", e.ID, amount, err)
		}
		e.Label = stringPtr(label)
		e.Date = datePtr(date)
		e.QuoteID = int64Ptr(quoteID)
		e.CreatedAt = parseTimestamp(createdAt)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	tags, err := expenseTags.load(ctx, r.db)
	if err != nil {
		return nil, err
	}
	for i := range expenses {
		expenses[i].Tags = tagsOrEmpty(tags[expenses[i].ID])
	}
	return expenses, nil
}

// errNoRow rolls back an update whose target vanished, so a payer created
// for it does not outlive the transaction.
var errNoRow = errors.New("no row")

func (r *SQLiteRepository) CreateExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		payerID, err := resolvePayer(ctx, tx, in.PayerID, in.NewPayer)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (payer_id, amount, purpose, label, date, quote_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			payerID, in.Amount.String(), strings.TrimSpace(in.Purpose), nullString(in.Label),
			nullDate(in.Date), nullInt64(in.QuoteID), timestamp(now()))
		if err != nil {
			return fmt.Errorf("insert expense: %w", mapConstraintError(err))
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		return expenseTags.replace(ctx, tx, id, in.TagIDs)
	})
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created", applog.FieldEntityID, id, applog.FieldAmount, in.Amount.String(),
		applog.FieldTags, in.TagIDs, "linked", in.QuoteID != nil)
	return id, nil
}

// UpdateExpense replaces fields, quote link and tags. An unknown id is a no-op.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		payerID, err := resolvePayer(ctx, tx, in.PayerID, in.NewPayer)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET payer_id = ?, amount = ?, purpose = ?, label = ?, date = ?, quote_id = ?
			 WHERE id = ?`,
			payerID, in.Amount.String(), strings.TrimSpace(in.Purpose), nullString(in.Label),
			nullDate(in.Date), nullInt64(in.QuoteID), id)
		if err != nil {
			return fmt.Errorf("update expense: %w", mapConstraintError(err))
		}
		if affected(res) == 0 {
			logNoop(ctx, res, "expense", id)
			return errNoRow
		}
		return expenseTags.replace(ctx, tx, id, in.TagIDs)
	})
	if errors.Is(err, errNoRow) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated", applog.FieldEntityID, id, applog.FieldAmount, in.Amount.String(),
		applog.FieldTags, in.TagIDs)
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	logNoop(ctx, res, "expense", id)

	slog.InfoContext(ctx, "Expense deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.payer_id, p.name, i.amount, i.purpose, i.label, i.date, i.created_at
		FROM incomes i
		JOIN payers p ON p.id = i.payer_id
		ORDER BY i.date IS NULL, i.date DESC, i.created_at DESC, i.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	incomes := []core.Income{}
	for rows.Next() {
		var (
			in                core.Income
			amount, createdAt string
			label, date       sql.NullString
		)
		if err := rows.Scan(&in.ID, &in.PayerID, &in.PayerName, &amount, &in.Purpose, &label, &date,
			&createdAt); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if in.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse income %d amount %q: %w", in.ID, amount, err)
		}
		in.Label = stringPtr(label)
		in.Date = datePtr(date)
		in.CreatedAt = parseTimestamp(createdAt)
		incomes = append(incomes, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}

	tags, err := incomeTags.load(ctx, r.db)
	if err != nil {
		return nil, err
	}
	for i := range incomes {
		incomes[i].Tags = tagsOrEmpty(tags[incomes[i].ID])
	}
	return incomes, nil
}

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.IncomeInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		payerID, err := resolvePayer(ctx, tx, in.PayerID, in.NewPayer)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO incomes (payer_id, amount, purpose, label, date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			payerID, in.Amount.String(), strings.TrimSpace(in.Purpose), nullString(in.Label),
			nullDate(in.Date), timestamp(now()))
		if err != nil {
			return fmt.Errorf("insert income: %w", mapConstraintError(err))
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert income: %w", err)
		}
		return incomeTags.replace(ctx, tx, id, in.TagIDs)
	})
	if err != nil {
		return 0, fmt.Errorf("create income: %w", err)
	}

	slog.InfoContext(ctx, "Income created", applog.FieldEntityID, id, applog.FieldAmount, in.Amount.String(),
		applog.FieldTags, in.TagIDs)
	return id, nil
}

func (r *SQLiteRepository) UpdateIncome(ctx context.Context, id int64, in core.IncomeInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		payerID, err := resolvePayer(ctx, tx, in.PayerID, in.NewPayer)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE incomes SET payer_id = ?, amount = ?, purpose = ?, label = ?, date = ? WHERE id = ?`,
			payerID, in.Amount.String(), strings.TrimSpace(in.Purpose), nullString(in.Label),
			nullDate(in.Date), id)
		if err != nil {
			return fmt.Errorf("update income: %w", mapConstraintError(err))
		}
		if affected(res) == 0 {
			logNoop(ctx, res, "income", id)
			return errNoRow
		}
		return incomeTags.replace(ctx, tx, id, in.TagIDs)
	})
	if errors.Is(err, errNoRow) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}

	slog.InfoContext(ctx, "Income updated", applog.FieldEntityID, id, applog.FieldAmount, in.Amount.String(),
		applog.FieldTags, in.TagIDs)
	return nil
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	logNoop(ctx, res, "income", id)

	slog.InfoContext(ctx, "Income deleted", "id", id)
	return nil
}
