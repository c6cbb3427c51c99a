// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// memory.go provides process-local implementations of the category store
// and content counter. They back STORE_DRIVER=memory and the unit tests of
// the packages above this one.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"knowtree/internal/models"
)

// MemoryCategoryStore keeps categories in a map. Write transactions are
// serialized and operate on a private copy that replaces the live map only
// when the transaction succeeds.
type MemoryCategoryStore struct {
	writeMu sync.Mutex

	mu   sync.RWMutex
	rows map[uuid.UUID]models.Category

	now func() time.Time
}

// NewMemoryCategoryStore returns an empty in-memory store.
func NewMemoryCategoryStore() *MemoryCategoryStore {
	return &MemoryCategoryStore{
		rows: make(map[uuid.UUID]models.Category),
		now:  time.Now,
	}
}

// List returns every category ordered by sort_order, then id.
func (s *MemoryCategoryStore) List(ctx context.Context) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRows(s.rows), nil
}

// FindByID retrieves a category by ID. Returns nil if not found.
func (s *MemoryCategoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	c = cloneCategory(c)
	return &c, nil
}

// InTx runs fn against a copy of the table and publishes the copy only if
// fn succeeds and ctx is still live.
func (s *MemoryCategoryStore) InTx(ctx context.Context, fn func(tx CategoryTx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	s.mu.RLock()
	work := make(map[uuid.UUID]models.Category, len(s.rows))
	for id, c := range s.rows {
		work[id] = cloneCategory(c)
	}
	s.mu.RUnlock()

	if err := fn(&memCategoryTx{rows: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.mu.Lock()
	s.rows = work
	s.mu.Unlock()
	return nil
}

type memCategoryTx struct {
	rows map[uuid.UUID]models.Category
	now  func() time.Time
}

func (t *memCategoryTx) List(ctx context.Context) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortedRows(t.rows), nil
}

func (t *memCategoryTx) Insert(ctx context.Context, c *models.Category) (*models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := cloneCategory(c.Stripped())
	row.ID = uuid.New()
	row.CreatedAt = t.now()
	row.UpdatedAt = row.CreatedAt
	t.rows[row.ID] = row
	out := cloneCategory(row)
	return &out, nil
}

func (t *memCategoryTx) Update(ctx context.Context, c *models.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	old, ok := t.rows[c.ID]
	if !ok {
		return fmt.Errorf("update category %s: %w", c.ID, ErrNotFound)
	}
	row := cloneCategory(c.Stripped())
	row.CreatedAt = old.CreatedAt
	row.UpdatedAt = t.now()
	t.rows[c.ID] = row
	return nil
}

func (t *memCategoryTx) SetSortOrders(ctx context.Context, items []models.SortItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := t.now()
	for _, item := range items {
		row, ok := t.rows[item.ID]
		if !ok {
			return fmt.Errorf("sort category %s: %w", item.ID, ErrNotFound)
		}
		row.SortOrder = item.SortOrder
		row.UpdatedAt = now
		t.rows[item.ID] = row
	}
	return nil
}

func (t *memCategoryTx) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("delete category %s: %w", id, ErrNotFound)
	}
	delete(t.rows, id)
	return nil
}

func cloneCategory(c models.Category) models.Category {
	if c.ParentID != nil {
		p := *c.ParentID
		c.ParentID = &p
	}
	return c
}

func sortedRows(rows map[uuid.UUID]models.Category) []models.Category {
	out := make([]models.Category, 0, len(rows))
	for _, c := range rows {
		out = append(out, cloneCategory(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// contentEntry holds the active content tally of one category.
type contentEntry struct {
	count int64
	last  time.Time
}

// MemoryContentCounter is a settable content counter.
type MemoryContentCounter struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]contentEntry
}

// NewMemoryContentCounter returns a counter reporting zero for every category.
func NewMemoryContentCounter() *MemoryContentCounter {
	return &MemoryContentCounter{entries: make(map[uuid.UUID]contentEntry)}
}

// Set records count active items for the category, the newest created at last.
func (c *MemoryContentCounter) Set(categoryID uuid.UUID, count int64, last time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count <= 0 {
		delete(c.entries, categoryID)
		return
	}
	c.entries[categoryID] = contentEntry{count: count, last: last}
}

// CountActiveContent returns the recorded count for the category.
func (c *MemoryContentCounter) CountActiveContent(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[categoryID].count, nil
}

// LastContentTimestamp returns the recorded newest item time, or nil.
func (c *MemoryContentCounter) LastContentTimestamp(ctx context.Context, categoryID uuid.UUID) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[categoryID]
	if !ok {
		return nil, nil
	}
	last := e.last
	return &last, nil
}

// ActiveContentCounts returns every non-zero count.
func (c *MemoryContentCounter) ActiveContentCounts(ctx context.Context) (map[uuid.UUID]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uuid.UUID]int64, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.count
	}
	return out, nil
}

// LastContentTimestamps returns the newest item times not older than since.
func (c *MemoryContentCounter) LastContentTimestamps(ctx context.Context, since time.Time) (map[uuid.UUID]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uuid.UUID]time.Time)
	for id, e := range c.entries {
		if !e.last.Before(since) {
			out[id] = e.last
		}
	}
	return out, nil
}
