// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package tree holds the in-memory category hierarchy: an adjacency snapshot
// built from the flat category table, the read-side walks over it (path,
// depth, subtree, aggregated counts) and the structural validation checks
// run before any mutation is committed.
//
// A Forest is immutable once built and safe for concurrent readers.
package tree

import (
	"bytes"
	"errors"
	"sort"

	"github.com/google/uuid"

	"knowtree/internal/models"
)

var (
	// ErrNotFound is returned when a walk starts from an unknown id.
	ErrNotFound = errors.New("category not found")

	// ErrCorrupt is returned when the parent chain of a node does not
	// terminate at a root. Committed mutations never produce this.
	ErrCorrupt = errors.New("category parent chain does not terminate")
)

// Forest is an adjacency snapshot of the category table.
type Forest struct {
	nodes    map[uuid.UUID]models.Category
	children map[uuid.UUID][]uuid.UUID // uuid.Nil holds the roots
}

// New builds a Forest from a flat list of categories. Children of every
// node are ordered by sort_order ascending, ties broken by id ascending.
// Nodes whose parent is missing from the list are treated as roots.
func New(flat []models.Category) *Forest {
	f := &Forest{
		nodes:    make(map[uuid.UUID]models.Category, len(flat)),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, c := range flat {
		c = c.Stripped()
		if c.ParentID != nil {
			p := *c.ParentID
			c.ParentID = &p
		}
		f.nodes[c.ID] = c
	}
	for id, c := range f.nodes {
		key := models.ParentKey(c.ParentID)
		if _, ok := f.nodes[key]; !ok {
			key = uuid.Nil
		}
		f.children[key] = append(f.children[key], id)
	}
	for key := range f.children {
		f.sortSiblings(f.children[key])
	}
	return f
}

func (f *Forest) sortSiblings(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := f.nodes[ids[i]], f.nodes[ids[j]]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// Len returns the number of nodes.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Has reports whether id is a known node.
func (f *Forest) Has(id uuid.UUID) bool {
	_, ok := f.nodes[id]
	return ok
}

// Get returns the node with the given id.
func (f *Forest) Get(id uuid.UUID) (models.Category, bool) {
	c, ok := f.nodes[id]
	return c, ok
}

// Roots returns the root nodes in display order.
func (f *Forest) Roots() []models.Category {
	return f.collect(f.children[uuid.Nil])
}

// Children returns the direct children of parentID (nil for the roots)
// in display order.
func (f *Forest) Children(parentID *uuid.UUID) []models.Category {
	return f.collect(f.children[models.ParentKey(parentID)])
}

// ChildCount returns the number of direct children of id.
func (f *Forest) ChildCount(id uuid.UUID) int {
	return len(f.children[id])
}

func (f *Forest) collect(ids []uuid.UUID) []models.Category {
	out := make([]models.Category, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.nodes[id])
	}
	return out
}

// Flat returns every node reachable from a root in depth-first display
// order with Depth set. Useful for indented dropdowns and full listings.
func (f *Forest) Flat() []models.Category {
	out := make([]models.Category, 0, len(f.nodes))
	f.walk(uuid.Nil, 0, func(c models.Category, depth int) {
		c.Depth = depth
		out = append(out, c)
	})
	return out
}

// walk visits the children of parent depth-first, pre-order. The visit
// count is bounded by the node count so a corrupt chain cannot spin forever.
func (f *Forest) walk(parent uuid.UUID, depth int, visit func(models.Category, int)) {
	type frame struct {
		id    uuid.UUID
		depth int
	}
	kids := f.children[parent]
	stack := make([]frame, 0, len(kids))
	for i := len(kids) - 1; i >= 0; i-- {
		stack = append(stack, frame{kids[i], depth})
	}
	for visited := 0; len(stack) > 0 && visited <= len(f.nodes); visited++ {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(f.nodes[top.id], top.depth)
		kids := f.children[top.id]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], top.depth + 1})
		}
	}
}

// Path returns the ancestor chain from the root down to id, inclusive.
func (f *Forest) Path(id uuid.UUID) ([]models.Category, error) {
	c, ok := f.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	path := []models.Category{c}
	for c.ParentID != nil {
		parent, ok := f.nodes[*c.ParentID]
		if !ok {
			break
		}
		if len(path) > len(f.nodes) {
			return nil, ErrCorrupt
		}
		path = append(path, parent)
		c = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	for i := range path {
		path[i].Depth = i
	}
	return path, nil
}

// Depth returns the distance of id from its root (roots are at depth 0).
func (f *Forest) Depth(id uuid.UUID) (int, error) {
	path, err := f.Path(id)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

// AncestorIDs returns the id set of Path(id), including id itself.
func (f *Forest) AncestorIDs(id uuid.UUID) (map[uuid.UUID]struct{}, error) {
	path, err := f.Path(id)
	if err != nil {
		return nil, err
	}
	set := make(map[uuid.UUID]struct{}, len(path))
	for _, c := range path {
		set[c.ID] = struct{}{}
	}
	return set, nil
}

// SubtreeIDs returns id followed by all of its descendants in pre-order.
func (f *Forest) SubtreeIDs(id uuid.UUID) ([]uuid.UUID, error) {
	if !f.Has(id) {
		return nil, ErrNotFound
	}
	ids := []uuid.UUID{id}
	f.walk(id, 1, func(c models.Category, _ int) {
		ids = append(ids, c.ID)
	})
	return ids, nil
}

// Height returns the depth of the deepest descendant of id relative to id.
// A leaf has height 0.
func (f *Forest) Height(id uuid.UUID) (int, error) {
	if !f.Has(id) {
		return 0, ErrNotFound
	}
	height := 0
	f.walk(id, 1, func(_ models.Category, depth int) {
		if depth > height {
			height = depth
		}
	})
	return height, nil
}

// Subtree returns id as a nested tree with Depth, ChildrenCount and Leaf set
// on every node. Depth is absolute, measured from the real root.
func (f *Forest) Subtree(id uuid.UUID) (models.Category, error) {
	depth, err := f.Depth(id)
	if err != nil {
		return models.Category{}, err
	}
	return f.build(id, depth), nil
}

// Tree returns every root as a nested tree.
func (f *Forest) Tree() []models.Category {
	roots := f.children[uuid.Nil]
	out := make([]models.Category, 0, len(roots))
	for _, id := range roots {
		out = append(out, f.build(id, 0))
	}
	return out
}

func (f *Forest) build(id uuid.UUID, depth int) models.Category {
	c := f.nodes[id]
	c.Depth = depth
	kids := f.children[id]
	c.ChildrenCount = len(kids)
	c.Leaf = len(kids) == 0
	if len(kids) > 0 {
		c.Children = make([]models.Category, 0, len(kids))
		for _, kid := range kids {
			c.Children = append(c.Children, f.build(kid, depth+1))
		}
	}
	return c
}

// Aggregates computes, for every reachable node, its direct count plus the
// aggregates of all of its children, in a single post-order pass.
// Ids missing from direct count as zero.
func (f *Forest) Aggregates(direct map[uuid.UUID]int64) map[uuid.UUID]int64 {
	order := make([]uuid.UUID, 0, len(f.nodes))
	f.walk(uuid.Nil, 0, func(c models.Category, _ int) {
		order = append(order, c.ID)
	})

	total := make(map[uuid.UUID]int64, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		total[id] += direct[id]
		if p := f.nodes[id].ParentID; p != nil && f.Has(*p) {
			total[*p] += total[id]
		}
	}
	return total
}

// AggregateOf computes the aggregate count for a single subtree.
func (f *Forest) AggregateOf(id uuid.UUID, direct map[uuid.UUID]int64) (int64, error) {
	ids, err := f.SubtreeIDs(id)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, sub := range ids {
		sum += direct[sub]
	}
	return sum, nil
}
