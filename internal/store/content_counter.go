// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// content_counter.go reads the knowledge_items table owned by the content
// service. The category engine only ever counts rows and reads timestamps;
// it never writes content.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// contentStatusActive is the knowledge_items.status value of published,
// non-deleted items.
const contentStatusActive = 1

// ContentCounter answers content counting questions from PostgreSQL.
type ContentCounter struct {
	db *sql.DB
}

// NewContentCounter returns a new ContentCounter.
func NewContentCounter(db *sql.DB) *ContentCounter {
	return &ContentCounter{db: db}
}

// CountActiveContent returns the number of active items assigned directly
// to the category.
func (c *ContentCounter) CountActiveContent(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM knowledge_items
		WHERE category_id = $1 AND status = $2
	`, categoryID, contentStatusActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active content: %w", err)
	}
	return n, nil
}

// LastContentTimestamp returns when the newest active item of the category
// was created, or nil if it has none.
func (c *ContentCounter) LastContentTimestamp(ctx context.Context, categoryID uuid.UUID) (*time.Time, error) {
	var last sql.NullTime
	err := c.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM knowledge_items
		WHERE category_id = $1 AND status = $2
	`, categoryID, contentStatusActive).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last content timestamp: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// ActiveContentCounts returns direct counts for every category that has at
// least one active item, in a single query.
func (c *ContentCounter) ActiveContentCounts(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT category_id, COUNT(*) FROM knowledge_items
		WHERE category_id IS NOT NULL AND status = $1
		GROUP BY category_id
	`, contentStatusActive)
	if err != nil {
		return nil, fmt.Errorf("active content counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan content count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// LastContentTimestamps returns, per category, the creation time of its
// newest active item created at or after since.
func (c *ContentCounter) LastContentTimestamps(ctx context.Context, since time.Time) (map[uuid.UUID]time.Time, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT category_id, MAX(created_at) FROM knowledge_items
		WHERE category_id IS NOT NULL AND status = $1 AND created_at >= $2
		GROUP BY category_id
	`, contentStatusActive, since)
	if err != nil {
		return nil, fmt.Errorf("last content timestamps: %w", err)
	}
	defer rows.Close()

	last := make(map[uuid.UUID]time.Time)
	for rows.Next() {
		var id uuid.UUID
		var ts time.Time
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("scan content timestamp: %w", err)
		}
		last[id] = ts
	}
	return last, rows.Err()
}
