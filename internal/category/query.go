package category

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowtree/internal/models"
	"knowtree/internal/tree"
)

// Limits of the popular and recent listings.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func (s *Service) forest(ctx context.Context) (*tree.Forest, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.forest, nil
}

func lookupErr(err error, id uuid.UUID) error {
	if errors.Is(err, tree.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// directCounts fetches the direct content counts of ids, retrying while
// the content counter is unavailable.
func (s *Service) directCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	var counts map[uuid.UUID]int64
	err := withRetry(ctx, s.cfg.CounterRetries, s.cfg.CounterRetryDelay, func(ctx context.Context) error {
		c, err := s.counter.counts(ctx, ids)
		counts = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func flatIDs(f *tree.Forest) []uuid.UUID {
	flat := f.Flat()
	ids := make([]uuid.UUID, 0, len(flat))
	for _, c := range flat {
		ids = append(ids, c.ID)
	}
	return ids
}

// Get returns a single category.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := f.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := view(f, c)
	return &out, nil
}

// ListAll returns every category in depth-first display order.
func (s *Service) ListAll(ctx context.Context) ([]models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	return viewAll(f, f.Flat()), nil
}

// ListRoots returns the root categories in display order.
func (s *Service) ListRoots(ctx context.Context) ([]models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	return viewAll(f, f.Roots()), nil
}

// ListChildren returns the direct children of parentID in display order.
func (s *Service) ListChildren(ctx context.Context, parentID uuid.UUID) ([]models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	if !f.Has(parentID) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	return viewAll(f, f.Children(&parentID)), nil
}

// FullTree returns every root as a nested tree carrying direct and
// aggregate content counts.
func (s *Service) FullTree(ctx context.Context) ([]models.Category, error) {
	return cachedView(ctx, s, "tree", func(ctx context.Context, f *tree.Forest) ([]models.Category, error) {
		direct, err := s.directCounts(ctx, flatIDs(f))
		if err != nil {
			return nil, err
		}
		nodes := f.Tree()
		decorateTree(nodes, "", direct, f.Aggregates(direct))
		return nodes, nil
	})
}

// Subtree returns id as a nested tree carrying direct and aggregate
// content counts.
func (s *Service) Subtree(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	root, err := f.Subtree(id)
	if err != nil {
		return nil, lookupErr(err, id)
	}
	ids, err := f.SubtreeIDs(id)
	if err != nil {
		return nil, lookupErr(err, id)
	}
	direct, err := s.directCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	parentName := ""
	if root.ParentID != nil {
		if p, ok := f.Get(*root.ParentID); ok {
			parentName = p.Name
		}
	}
	nodes := []models.Category{root}
	decorateTree(nodes, parentName, direct, f.Aggregates(direct))
	return &nodes[0], nil
}

// decorateTree sets parent names and counts on nested nodes in place.
func decorateTree(nodes []models.Category, parentName string, direct, total map[uuid.UUID]int64) {
	for i := range nodes {
		n := &nodes[i]
		d, t := direct[n.ID], total[n.ID]
		n.ParentName = parentName
		n.ContentCount = &d
		n.TotalContentCount = &t
		decorateTree(n.Children, n.Name, direct, total)
	}
}

// Path returns the breadcrumb from the root down to id, inclusive.
func (s *Service) Path(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	path, err := f.Path(id)
	if err != nil {
		return nil, lookupErr(err, id)
	}
	return viewAll(f, path), nil
}

// Depth returns the distance of id from its root.
func (s *Service) Depth(ctx context.Context, id uuid.UUID) (int, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return 0, err
	}
	depth, err := f.Depth(id)
	if err != nil {
		return 0, lookupErr(err, id)
	}
	return depth, nil
}

// Search returns the categories whose name contains keyword, ignoring case.
func (s *Service) Search(ctx context.Context, keyword string) ([]models.Category, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword is required", ErrInvalidInput)
	}
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]models.Category, 0)
	for _, c := range f.Flat() {
		if strings.Contains(strings.ToLower(c.Name), keyword) {
			matches = append(matches, c)
		}
	}
	return viewAll(f, matches), nil
}

func statsOf(f *tree.Forest, c models.Category, depth int, direct, total map[uuid.UUID]int64) models.CategoryStats {
	return models.CategoryStats{
		ID:                c.ID,
		Name:              c.Name,
		ContentCount:      direct[c.ID],
		TotalContentCount: total[c.ID],
		ChildrenCount:     f.ChildCount(c.ID),
		Depth:             depth,
	}
}

// Stats returns the direct and aggregate content counts of one category.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*models.CategoryStats, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := f.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	depth, err := f.Depth(id)
	if err != nil {
		return nil, lookupErr(err, id)
	}
	ids, err := f.SubtreeIDs(id)
	if err != nil {
		return nil, lookupErr(err, id)
	}
	direct, err := s.directCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	total, err := f.AggregateOf(id, direct)
	if err != nil {
		return nil, lookupErr(err, id)
	}

	st := statsOf(f, c, depth, direct, map[uuid.UUID]int64{id: total})
	return &st, nil
}

// StatsAll returns counts for every category in display order. Aggregates
// are computed in a single pass over the tree.
func (s *Service) StatsAll(ctx context.Context) ([]models.CategoryStats, error) {
	return cachedView(ctx, s, "stats", func(ctx context.Context, f *tree.Forest) ([]models.CategoryStats, error) {
		flat := f.Flat()
		direct, err := s.directCounts(ctx, flatIDs(f))
		if err != nil {
			return nil, err
		}
		total := f.Aggregates(direct)

		out := make([]models.CategoryStats, 0, len(flat))
		for _, c := range flat {
			out = append(out, statsOf(f, c, c.Depth, direct, total))
		}
		return out, nil
	})
}

// Popular returns up to limit categories ordered by aggregate content
// count, highest first. Ties keep display order.
func (s *Service) Popular(ctx context.Context, limit int) ([]models.CategoryStats, error) {
	all, err := s.StatsAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].TotalContentCount > all[j].TotalContentCount
	})
	return all[:min(normalizeLimit(limit), len(all))], nil
}

// RecentlyUsed returns up to limit categories that received content within
// the configured window, most recent first.
func (s *Service) RecentlyUsed(ctx context.Context, limit int) ([]models.Category, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-s.cfg.RecentWindow)

	var last map[uuid.UUID]time.Time
	err = withRetry(ctx, s.cfg.CounterRetries, s.cfg.CounterRetryDelay, func(ctx context.Context) error {
		ts, err := s.counter.lastTimestamps(ctx, flatIDs(f), since)
		last = ts
		return err
	})
	if err != nil {
		return nil, err
	}

	used := make([]models.Category, 0, len(last))
	for id, ts := range last {
		c, ok := f.Get(id)
		if !ok {
			continue
		}
		c = view(f, c)
		c.LastContentAt = &ts
		used = append(used, c)
	}
	sort.Slice(used, func(i, j int) bool {
		a, b := *used[i].LastContentAt, *used[j].LastContentAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return used[i].ID.String() < used[j].ID.String()
	})
	return used[:min(normalizeLimit(limit), len(used))], nil
}

// CanDelete reports whether Delete would currently succeed for id.
func (s *Service) CanDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return false, err
	}
	if !f.Has(id) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if f.ChildCount(id) > 0 {
		return false, nil
	}
	direct, err := s.directCounts(ctx, []uuid.UUID{id})
	if err != nil {
		return false, err
	}
	return s.validator(f).Deletable(id, direct[id]), nil
}

// ValidateName reports whether name is free among the children of
// parentID, ignoring excludeID.
func (s *Service) ValidateName(ctx context.Context, name string, parentID, excludeID *uuid.UUID) (bool, error) {
	name, err := s.cleanName(name)
	if err != nil {
		return false, err
	}
	f, err := s.forest(ctx)
	if err != nil {
		return false, err
	}
	if parentID != nil && !f.Has(*parentID) {
		return false, fmt.Errorf("%w: %s", ErrParentNotFound, *parentID)
	}
	return s.validator(f).NameUnique(name, parentID, excludeID), nil
}

// ValidateDepth reports whether a new child may be created under parentID.
func (s *Service) ValidateDepth(ctx context.Context, parentID *uuid.UUID) (bool, error) {
	f, err := s.forest(ctx)
	if err != nil {
		return false, err
	}
	if parentID != nil && !f.Has(*parentID) {
		return false, fmt.Errorf("%w: %s", ErrParentNotFound, *parentID)
	}
	return s.validator(f).DepthAllowed(parentID), nil
}
