// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"knowtree/internal/models"
)

// ErrNotFound is returned when a write targets a row that does not exist.
var ErrNotFound = errors.New("record not found")

// treeLockKey is the advisory lock serializing structural writes to the
// category tree. Any stable 64-bit value works as long as it is unique
// among the application's advisory locks.
const treeLockKey int64 = 0x6b74726565 // "ktree"

// CategoryTx is the write-side view of the category table inside a single
// transaction. Reads through it observe the transaction's own writes.
type CategoryTx interface {
	List(ctx context.Context) ([]models.Category, error)
	Insert(ctx context.Context, c *models.Category) (*models.Category, error)
	Update(ctx context.Context, c *models.Category) error
	SetSortOrders(ctx context.Context, items []models.SortItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CategoryStore manages categories in PostgreSQL.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, name, description, parent_id, sort_order, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Description,
		&c.ParentID, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func listCategories(ctx context.Context, q queryer) ([]models.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// List returns every category ordered by sort_order. It runs outside any
// write transaction and may race harmlessly with concurrent writers.
func (s *CategoryStore) List(ctx context.Context) ([]models.Category, error) {
	return listCategories(ctx, s.db)
}

// FindByID retrieves a category by ID. Returns nil if not found.
func (s *CategoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// InTx runs fn inside one transaction holding the tree-wide advisory lock.
// The transaction commits only if fn returns nil; on error, panic or
// context cancellation nothing is written.
func (s *CategoryStore) InTx(ctx context.Context, fn func(tx CategoryTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, treeLockKey); err != nil {
		return fmt.Errorf("lock category tree: %w", err)
	}

	if err := fn(&pgCategoryTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgCategoryTx implements CategoryTx over a *sql.Tx.
type pgCategoryTx struct {
	tx *sql.Tx
}

func (t *pgCategoryTx) List(ctx context.Context) ([]models.Category, error) {
	return listCategories(ctx, t.tx)
}

// Insert adds a new category and returns the stored row.
func (t *pgCategoryTx) Insert(ctx context.Context, c *models.Category) (*models.Category, error) {
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, parent_id, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING `+categoryColumns,
		c.Name, c.Description, c.ParentID, c.SortOrder,
	)
	result, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return result, nil
}

// Update writes the mutable columns of an existing category.
func (t *pgCategoryTx) Update(ctx context.Context, c *models.Category) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE categories SET
			name = $1, description = $2, parent_id = $3,
			sort_order = $4, updated_at = NOW()
		WHERE id = $5
	`, c.Name, c.Description, c.ParentID, c.SortOrder, c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return expectOneRow(res, "update category", c.ID)
}

// SetSortOrders updates sort_order for several categories. Any missing id
// fails the call; the caller's transaction then rolls back every update.
func (t *pgCategoryTx) SetSortOrders(ctx context.Context, items []models.SortItem) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		UPDATE categories SET sort_order = $1, updated_at = $2
		WHERE id = $3`)
	if err != nil {
		return fmt.Errorf("prepare sort update: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, item := range items {
		res, err := stmt.ExecContext(ctx, item.SortOrder, now, item.ID)
		if err != nil {
			return fmt.Errorf("sort category %s: %w", item.ID, err)
		}
		if err := expectOneRow(res, "sort category", item.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a category by ID.
func (t *pgCategoryTx) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectOneRow(res, "delete category", id)
}

func expectOneRow(res sql.Result, op string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}
