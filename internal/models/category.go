// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Category represents a node in the classification tree.
// Knowledge items reference at most one category.
type Category struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parentId"`
	SortOrder   int        `json:"sortOrder"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Virtual fields populated by the query layer, never stored.
	ParentName        string     `json:"parentName,omitempty"`
	Depth             int        `json:"depth"`
	ChildrenCount     int        `json:"childrenCount"`
	Leaf              bool       `json:"leaf"`
	ContentCount      *int64     `json:"contentCount,omitempty"`
	TotalContentCount *int64     `json:"totalContentCount,omitempty"`
	LastContentAt     *time.Time `json:"lastContentAt,omitempty"`
	Children          []Category `json:"children,omitempty"`
}

// IsRoot reports whether the category sits in the root sibling scope.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// Stripped returns a copy holding only the persisted columns.
func (c Category) Stripped() Category {
	return Category{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		ParentID:    c.ParentID,
		SortOrder:   c.SortOrder,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// CategoryStats is the per-node counting view used by stats and popular listings.
type CategoryStats struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	ContentCount      int64     `json:"contentCount"`
	TotalContentCount int64     `json:"totalContentCount"`
	ChildrenCount     int       `json:"childrenCount"`
	Depth             int       `json:"depth"`
}

// SortItem is a single entry of a batch sort request.
type SortItem struct {
	ID        uuid.UUID `json:"id"`
	SortOrder int       `json:"sortOrder"`
}

// ParentKey returns a comparable key for a nullable parent reference.
// The root scope maps to uuid.Nil.
func ParentKey(parentID *uuid.UUID) uuid.UUID {
	if parentID == nil {
		return uuid.Nil
	}
	return *parentID
}

// SameParent compares two nullable parent references (both nil or same value).
func SameParent(a, b *uuid.UUID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
