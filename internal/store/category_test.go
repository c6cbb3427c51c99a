// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"knowtree/internal/models"
)

func TestCategoryStoreInsertAndFind(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	root := insertCategory(t, s, "test-root-"+uuid.NewString()[:8], nil, 0)
	child := insertCategory(t, s, "Algebra", &root.ID, 3)
	t.Cleanup(func() { cleanCategories(t, db, root.ID, child.ID) })

	if root.ID == uuid.Nil {
		t.Error("expected non-nil UUID")
	}
	if root.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	found, err := s.FindByID(ctx, child.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found == nil {
		t.Fatal("expected category, got nil")
	}
	if found.ParentID == nil || *found.ParentID != root.ID {
		t.Errorf("parent_id: got %v, want %v", found.ParentID, root.ID)
	}
	if found.SortOrder != 3 {
		t.Errorf("sort_order: got %d, want 3", found.SortOrder)
	}

	missing, err := s.FindByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("FindByID (missing): %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestCategoryStoreListIncludesInserted(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)

	root := insertCategory(t, s, "test-list-"+uuid.NewString()[:8], nil, 0)
	t.Cleanup(func() { cleanCategories(t, db, root.ID) })

	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var seen bool
	for _, c := range items {
		if c.ID == root.ID {
			seen = true
		}
	}
	if !seen {
		t.Error("inserted category missing from List")
	}
}

func TestCategoryStoreUpdate(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	a := insertCategory(t, s, "test-upd-a-"+uuid.NewString()[:8], nil, 0)
	b := insertCategory(t, s, "test-upd-b-"+uuid.NewString()[:8], nil, 1)
	t.Cleanup(func() { cleanCategories(t, db, a.ID, b.ID) })

	b.ParentID = &a.ID
	b.Description = "moved"
	err := s.InTx(ctx, func(tx CategoryTx) error { return tx.Update(ctx, b) })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, _ := s.FindByID(ctx, b.ID)
	if found.ParentID == nil || *found.ParentID != a.ID {
		t.Errorf("parent_id not updated: %v", found.ParentID)
	}
	if found.Description != "moved" {
		t.Errorf("description: got %q, want %q", found.Description, "moved")
	}

	ghost := &models.Category{ID: uuid.New(), Name: "ghost"}
	err = s.InTx(ctx, func(tx CategoryTx) error { return tx.Update(ctx, ghost) })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("update unknown: got %v, want ErrNotFound", err)
	}
}

func TestCategoryStoreSetSortOrdersAllOrNothing(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	a := insertCategory(t, s, "test-sort-a-"+uuid.NewString()[:8], nil, 10)
	b := insertCategory(t, s, "test-sort-b-"+uuid.NewString()[:8], nil, 11)
	t.Cleanup(func() { cleanCategories(t, db, a.ID, b.ID) })

	err := s.InTx(ctx, func(tx CategoryTx) error {
		return tx.SetSortOrders(ctx, []models.SortItem{
			{ID: a.ID, SortOrder: 0},
			{ID: b.ID, SortOrder: 1},
			{ID: uuid.New(), SortOrder: 2},
		})
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetSortOrders: got %v, want ErrNotFound", err)
	}

	for id, want := range map[uuid.UUID]int{a.ID: 10, b.ID: 11} {
		c, _ := s.FindByID(ctx, id)
		if c.SortOrder != want {
			t.Errorf("sort_order of %s: got %d, want %d (batch must roll back)", id, c.SortOrder, want)
		}
	}
}

func TestCategoryStoreDelete(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	c := insertCategory(t, s, "test-del-"+uuid.NewString()[:8], nil, 0)
	t.Cleanup(func() { cleanCategories(t, db, c.ID) })

	if err := s.InTx(ctx, func(tx CategoryTx) error { return tx.Delete(ctx, c.ID) }); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	found, _ := s.FindByID(ctx, c.ID)
	if found != nil {
		t.Error("expected category to be gone")
	}

	err := s.InTx(ctx, func(tx CategoryTx) error { return tx.Delete(ctx, c.ID) })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func TestCategoryStoreTxRollbackOnError(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	name := "test-rollback-" + uuid.NewString()[:8]
	var id uuid.UUID
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx CategoryTx) error {
		c, err := tx.Insert(ctx, &models.Category{Name: name})
		if err != nil {
			return err
		}
		id = c.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx: got %v, want boom", err)
	}
	found, _ := s.FindByID(ctx, id)
	if found != nil {
		cleanCategories(t, db, id)
		t.Error("insert should have been rolled back")
	}
}

func TestCategoryStoreUniqueSiblingBackstop(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()

	name := "test-dup-" + uuid.NewString()[:8]
	first := insertCategory(t, s, name, nil, 0)
	t.Cleanup(func() { cleanCategories(t, db, first.ID) })

	err := s.InTx(ctx, func(tx CategoryTx) error {
		_, err := tx.Insert(ctx, &models.Category{Name: name})
		return err
	})
	if err == nil {
		t.Error("expected unique index violation for duplicate root name")
	}
}

func TestContentCounter(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	counter := NewContentCounter(db)
	ctx := context.Background()

	c := insertCategory(t, s, "test-count-"+uuid.NewString()[:8], nil, 0)
	t.Cleanup(func() { cleanCategories(t, db, c.ID) })

	n, err := counter.CountActiveContent(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountActiveContent: %v", err)
	}
	if n != 0 {
		t.Errorf("count: got %d, want 0", n)
	}
	last, err := counter.LastContentTimestamp(ctx, c.ID)
	if err != nil {
		t.Fatalf("LastContentTimestamp: %v", err)
	}
	if last != nil {
		t.Errorf("expected nil timestamp, got %v", last)
	}

	db.Exec(`INSERT INTO knowledge_items (category_id, title, status) VALUES ($1, 'a', 1), ($1, 'b', 1), ($1, 'c', 0)`, c.ID)

	n, _ = counter.CountActiveContent(ctx, c.ID)
	if n != 2 {
		t.Errorf("count: got %d, want 2 (inactive items excluded)", n)
	}
	last, _ = counter.LastContentTimestamp(ctx, c.ID)
	if last == nil {
		t.Fatal("expected a timestamp")
	}

	counts, err := counter.ActiveContentCounts(ctx)
	if err != nil {
		t.Fatalf("ActiveContentCounts: %v", err)
	}
	if counts[c.ID] != 2 {
		t.Errorf("batch count: got %d, want 2", counts[c.ID])
	}

	recent, err := counter.LastContentTimestamps(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastContentTimestamps: %v", err)
	}
	if _, ok := recent[c.ID]; !ok {
		t.Error("expected category among recent timestamps")
	}
}
