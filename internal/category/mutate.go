// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"knowtree/internal/models"
	"knowtree/internal/store"
	"knowtree/internal/tree"
)

const (
	maxNameLen        = 100
	maxDescriptionLen = 500
)

// errUnchanged aborts a transaction that has nothing to write. mutate
// reports it as success.
var errUnchanged = errors.New("unchanged")

// CreateInput holds the fields of a new category. A nil SortOrder places
// the category after its last sibling.
type CreateInput struct {
	Name        string
	Description string
	ParentID    *uuid.UUID
	SortOrder   *int
}

// UpdateInput holds the fields to change. Nil fields are left untouched; a
// non-nil ParentID re-parents the category under full move validation.
type UpdateInput struct {
	Name        *string
	Description *string
	ParentID    *uuid.UUID
	SortOrder   *int
}

// mutate runs fn in one store transaction, handing it a validator over a
// tree read inside that same transaction. Checks and write therefore see
// the same state, and concurrent mutations cannot interleave between them.
func (s *Service) mutate(ctx context.Context, op string, fn func(tx store.CategoryTx, v tree.Validator) error) error {
	started := time.Now()
	err := s.store.InTx(ctx, func(tx store.CategoryTx) error {
		rows, err := tx.List(ctx)
		if err != nil {
			return err
		}
		return fn(tx, s.validator(tree.New(rows)))
	})
	if errors.Is(err, errUnchanged) {
		observeMutation(op, nil, started)
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	observeMutation(op, err, started)

	switch {
	case err == nil:
		s.invalidate(ctx)
	case IsRejection(err):
		slog.Warn("category mutation rejected", "operation", op, "code", Code(err), "error", err)
	default:
		slog.Error("category mutation failed", "operation", op, "error", err)
	}
	return err
}

// cleanName validates a requested name and returns the form to store.
func (s *Service) cleanName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	name = s.cfg.Names.Normalize(name)
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, maxNameLen)
	}
	return name, nil
}

func checkDescription(desc string) error {
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("%w: description longer than %d characters", ErrInvalidInput, maxDescriptionLen)
	}
	return nil
}

// nextSortOrder returns one past the largest sort order under parentID,
// or 0 when there are no siblings.
func nextSortOrder(f *tree.Forest, parentID *uuid.UUID) int {
	siblings := f.Children(parentID)
	if len(siblings) == 0 {
		return 0
	}
	highest := siblings[0].SortOrder
	for _, c := range siblings[1:] {
		highest = max(highest, c.SortOrder)
	}
	return highest + 1
}

// Create adds a new category.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Category, error) {
	name, err := s.cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := checkDescription(in.Description); err != nil {
		return nil, err
	}

	var created models.Category
	err = s.mutate(ctx, "create", func(tx store.CategoryTx, v tree.Validator) error {
		if in.ParentID != nil && !v.Forest.Has(*in.ParentID) {
			return fmt.Errorf("%w: %s", ErrParentNotFound, *in.ParentID)
		}
		if !v.DepthAllowed(in.ParentID) {
			return fmt.Errorf("%w: a child of %s would sit below depth %d", ErrDepthExceeded, *in.ParentID, v.MaxDepth)
		}
		if !v.NameUnique(name, in.ParentID, nil) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}

		order := nextSortOrder(v.Forest, in.ParentID)
		if in.SortOrder != nil {
			order = *in.SortOrder
		}
		c, err := tx.Insert(ctx, &models.Category{
			Name:        name,
			Description: in.Description,
			ParentID:    in.ParentID,
			SortOrder:   order,
		})
		if err != nil {
			return err
		}
		created = view(v.Forest, *c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("category created", "id", created.ID, "name", created.Name, "depth", created.Depth)
	return &created, nil
}

// Rename changes the name of a category.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, newName string) (*models.Category, error) {
	name, err := s.cleanName(newName)
	if err != nil {
		return nil, err
	}

	var out models.Category
	err = s.mutate(ctx, "rename", func(tx store.CategoryTx, v tree.Validator) error {
		c, ok := v.Forest.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if c.Name == name {
			out = view(v.Forest, c)
			return errUnchanged
		}
		if !v.NameUnique(name, c.ParentID, &id) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		c.Name = name
		if err := tx.Update(ctx, &c); err != nil {
			return err
		}
		out = view(v.Forest, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("category renamed", "id", id, "name", name)
	return &out, nil
}

// Move re-parents a category together with its subtree. A nil newParentID
// moves it to the root scope. The sort order is kept.
func (s *Service) Move(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*models.Category, error) {
	var out models.Category
	err := s.mutate(ctx, "move", func(tx store.CategoryTx, v tree.Validator) error {
		c, ok := v.Forest.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if newParentID != nil && *newParentID != id && !v.Forest.Has(*newParentID) {
			return fmt.Errorf("%w: %s", ErrParentNotFound, *newParentID)
		}
		if models.SameParent(c.ParentID, newParentID) {
			out = view(v.Forest, c)
			return errUnchanged
		}
		if err := checkReparent(v, id, newParentID); err != nil {
			return err
		}
		if !v.NameUnique(c.Name, newParentID, &id) {
			return fmt.Errorf("%w: %q under the new parent", ErrDuplicateName, c.Name)
		}

		c.ParentID = copyID(newParentID)
		if err := tx.Update(ctx, &c); err != nil {
			return err
		}
		out = view(v.Forest, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("category moved", "id", id, "parent_id", newParentID, "depth", out.Depth)
	return &out, nil
}

// checkReparent runs the structural checks of attaching id's subtree
// under newParentID.
func checkReparent(v tree.Validator, id uuid.UUID, newParentID *uuid.UUID) error {
	if !v.NoCycle(id, newParentID) {
		return fmt.Errorf("%w: %s cannot be placed under itself or its descendant %s", ErrCycleDetected, id, *newParentID)
	}
	if !v.SubtreeFits(id, newParentID) {
		return fmt.Errorf("%w: subtree of %s would extend below depth %d", ErrDepthExceeded, id, v.MaxDepth)
	}
	return nil
}

// UpdateSortOrder sets the sort order of one category.
func (s *Service) UpdateSortOrder(ctx context.Context, id uuid.UUID, order int) (*models.Category, error) {
	var out models.Category
	err := s.mutate(ctx, "sort", func(tx store.CategoryTx, v tree.Validator) error {
		c, ok := v.Forest.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if c.SortOrder == order {
			out = view(v.Forest, c)
			return errUnchanged
		}
		if err := tx.SetSortOrders(ctx, []models.SortItem{{ID: id, SortOrder: order}}); err != nil {
			return err
		}
		c.SortOrder = order
		out = view(v.Forest, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchUpdateSortOrder applies every sort order in one transaction. An
// unknown id rejects the whole batch.
func (s *Service) BatchUpdateSortOrder(ctx context.Context, items []models.SortItem) error {
	if len(items) == 0 {
		return nil
	}
	err := s.mutate(ctx, "batch_sort", func(tx store.CategoryTx, v tree.Validator) error {
		for _, item := range items {
			if !v.Forest.Has(item.ID) {
				return fmt.Errorf("%w: %s", ErrNotFound, item.ID)
			}
		}
		return tx.SetSortOrders(ctx, items)
	})
	if err != nil {
		return err
	}

	slog.Info("category sort orders updated", "count", len(items))
	return nil
}

// Delete removes a category that has neither children nor directly
// assigned content. The content count is looked up once without retries.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.mutate(ctx, "delete", func(tx store.CategoryTx, v tree.Validator) error {
		if !v.Forest.Has(id) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if n := v.Forest.ChildCount(id); n > 0 {
			return fmt.Errorf("%w: %s has %d children", ErrDeleteBlocked, id, n)
		}
		direct, err := s.counter.count(ctx, id)
		if err != nil {
			return err
		}
		if !v.Deletable(id, direct) {
			return fmt.Errorf("%w: %s has %d content items", ErrDeleteBlocked, id, direct)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	slog.Info("category deleted", "id", id)
	return nil
}

// Update applies a combined change of name, description, parent and sort
// order, validated and written in one transaction.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Category, error) {
	var name string
	if in.Name != nil {
		n, err := s.cleanName(*in.Name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	if in.Description != nil {
		if err := checkDescription(*in.Description); err != nil {
			return nil, err
		}
	}

	var out models.Category
	err := s.mutate(ctx, "update", func(tx store.CategoryTx, v tree.Validator) error {
		cur, ok := v.Forest.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		next := cur
		if in.Name != nil {
			next.Name = name
		}
		if in.Description != nil {
			next.Description = *in.Description
		}
		if in.SortOrder != nil {
			next.SortOrder = *in.SortOrder
		}

		moved := in.ParentID != nil && !models.SameParent(cur.ParentID, in.ParentID)
		if moved {
			if *in.ParentID != id && !v.Forest.Has(*in.ParentID) {
				return fmt.Errorf("%w: %s", ErrParentNotFound, *in.ParentID)
			}
			if err := checkReparent(v, id, in.ParentID); err != nil {
				return err
			}
			next.ParentID = copyID(in.ParentID)
		}

		if (moved || next.Name != cur.Name) && !v.NameUnique(next.Name, next.ParentID, &id) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, next.Name)
		}

		if !moved && next.Name == cur.Name && next.Description == cur.Description && next.SortOrder == cur.SortOrder {
			out = view(v.Forest, cur)
			return errUnchanged
		}
		if err := tx.Update(ctx, &next); err != nil {
			return err
		}
		out = view(v.Forest, next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("category updated", "id", id)
	return &out, nil
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
