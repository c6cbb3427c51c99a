// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tree

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxDepth is the deepest level a category may sit at (roots are 0).
const DefaultMaxDepth = 5

// NameRule controls how sibling names are compared. The zero value is an
// exact, case-sensitive match.
type NameRule struct {
	FoldCase bool
	Trim     bool
}

// Normalize returns the form of name that is stored.
func (r NameRule) Normalize(name string) string {
	if r.Trim {
		return strings.TrimSpace(name)
	}
	return name
}

// Equal reports whether two names collide under the rule.
func (r NameRule) Equal(a, b string) bool {
	a, b = r.Normalize(a), r.Normalize(b)
	if r.FoldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Validator runs the structural checks against one Forest snapshot.
// All checks are read-only. Callers mutating the tree must build the
// Forest from a read taken inside the same transaction as the write.
type Validator struct {
	Forest   *Forest
	MaxDepth int
	Names    NameRule
}

// NameUnique reports whether no sibling under parentID, other than
// excludeID, already carries name.
func (v Validator) NameUnique(name string, parentID *uuid.UUID, excludeID *uuid.UUID) bool {
	for _, sib := range v.Forest.Children(parentID) {
		if excludeID != nil && sib.ID == *excludeID {
			continue
		}
		if v.Names.Equal(sib.Name, name) {
			return false
		}
	}
	return true
}

// DepthAllowed reports whether a new child may be placed under parentID.
// Root placement is always allowed. An unknown parent is not.
func (v Validator) DepthAllowed(parentID *uuid.UUID) bool {
	if parentID == nil {
		return true
	}
	depth, err := v.Forest.Depth(*parentID)
	if err != nil {
		return false
	}
	return depth+1 <= v.MaxDepth
}

// NoCycle reports whether nodeID may be re-parented under newParentID
// without becoming its own ancestor.
func (v Validator) NoCycle(nodeID uuid.UUID, newParentID *uuid.UUID) bool {
	if newParentID == nil {
		return true
	}
	if *newParentID == nodeID {
		return false
	}
	ancestors, err := v.Forest.AncestorIDs(*newParentID)
	if err != nil {
		return false
	}
	_, inside := ancestors[nodeID]
	return !inside
}

// SubtreeFits reports whether every node of the subtree rooted at nodeID
// stays within MaxDepth once the subtree is attached under newParentID.
func (v Validator) SubtreeFits(nodeID uuid.UUID, newParentID *uuid.UUID) bool {
	height, err := v.Forest.Height(nodeID)
	if err != nil {
		return false
	}
	base := 0
	if newParentID != nil {
		depth, err := v.Forest.Depth(*newParentID)
		if err != nil {
			return false
		}
		base = depth + 1
	}
	return base+height <= v.MaxDepth
}

// Deletable reports whether id has no children and no directly assigned
// content.
func (v Validator) Deletable(id uuid.UUID, directCount int64) bool {
	return v.Forest.Has(id) && v.Forest.ChildCount(id) == 0 && directCount == 0
}
