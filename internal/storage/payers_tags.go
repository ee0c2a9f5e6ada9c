package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"chantier/internal/core"
)

func (r *SQLiteRepository) ListPayers(ctx context.Context) ([]core.Payer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM payers ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list payers: %w", err)
	}
	defer rows.Close()

	payers := []core.Payer{}
	for rows.Next() {
		var p core.Payer
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan payer: %w", err)
		}
		payers = append(payers, p)
	}
	return payers, rows.Err()
}

// CreatePayer inserts a payer. A duplicate name returns core.ErrConflict.
func (r *SQLiteRepository) CreatePayer(ctx context.Context, name string) (core.Payer, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Payer{}, err
	}
	name = strings.TrimSpace(name)

	res, err := r.db.ExecContext(ctx, `INSERT INTO payers (name) VALUES (?)`, name)
	if err != nil {
		return core.Payer{}, fmt.Errorf("create payer: %w", mapConstraintError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Payer{}, fmt.Errorf("create payer: %w", err)
	}

	slog.InfoContext(ctx, "Payer created", "id", id, "name", name)
	return core.Payer{ID: id, Name: name}, nil
}

// resolvePayer returns newPayer's id inside tx, creating the payer on first
// use, or id unchanged when newPayer is empty.
func resolvePayer(ctx context.Context, tx *sql.Tx, id int64, newPayer string) (int64, error) {
	name := strings.TrimSpace(newPayer)
	if name == "" {
		return id, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO payers (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("ensure payer: %w", mapConstraintError(err))
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM payers WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure payer: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) ListTags(ctx context.Context) ([]core.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []core.Tag{}
	for rows.Next() {
		var t core.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag inserts a tag. A duplicate name returns core.ErrConflict.
func (r *SQLiteRepository) CreateTag(ctx context.Context, name string) (core.Tag, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Tag{}, err
	}
	name = strings.TrimSpace(name)

	res, err := r.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return core.Tag{}, fmt.Errorf("create tag: %w", mapConstraintError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Tag{}, fmt.Errorf("create tag: %w", err)
	}

	slog.InfoContext(ctx, "Tag created", "id", id, "name", name)
	return core.Tag{ID: id, Name: name}, nil
}

// DeleteTag removes a tag and its association rows. Quotes, expenses and
// incomes that carried it are left untouched.
func (r *SQLiteRepository) DeleteTag(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM quote_tags WHERE tag_id = ?`,
			`DELETE FROM expense_tags WHERE tag_id = ?`,
			`DELETE FROM income_tags WHERE tag_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete tag associations: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		logNoop(ctx, res, "tag", id)
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Tag deleted", "id", id)
	return nil
}

// tagLink describes one association table.
type tagLink struct {
	table  string
	column string
}

var (
	quoteTags   = tagLink{table: "quote_tags", column: "quote_id"}
	expenseTags = tagLink{table: "expense_tags", column: "expense_id"}
	incomeTags  = tagLink{table: "income_tags", column: "income_id"}
)

// replace swaps the full tag set of one parent row.
func (l tagLink) replace(ctx context.Context, q querier, parentID int64, tagIDs []int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM "+l.table+" WHERE "+l.column+" = ?", parentID); err != nil {
		return fmt.Errorf("clear %s: %w", l.table, err)
	}

	seen := make(map[int64]bool, len(tagIDs))
	for _, tagID := range tagIDs {
		if seen[tagID] {
			continue
		}
		seen[tagID] = true
		_, err := q.ExecContext(ctx, "INSERT INTO "+l.table+" ("+l.column+", tag_id) VALUES (?, ?)", parentID, tagID)
		if err != nil {
			return fmt.Errorf("insert %s: %w", l.table, mapConstraintError(err))
		}
	}
	return nil
}

// load returns the tags of every parent keyed by parent id, in association order.
func (l tagLink) load(ctx context.Context, q querier) (map[int64][]core.Tag, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT a."+l.column+", t.id, t.name FROM "+l.table+" a JOIN tags t ON t.id = a.tag_id ORDER BY a.rowid")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", l.table, err)
	}
	defer rows.Close()

	byParent := make(map[int64][]core.Tag)
	for rows.Next() {
		var parentID int64
		var t core.Tag
		if err := rows.Scan(&parentID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", l.table, err)
		}
		byParent[parentID] = append(byParent[parentID], t)
	}
	return byParent, rows.Err()
}

func tagsOrEmpty(tags []core.Tag) []core.Tag {
	if tags == nil {
		return []core.Tag{}
	}
	return tags
}
