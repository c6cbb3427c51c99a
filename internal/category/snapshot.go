package category

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"knowtree/internal/tree"
)

// ViewCache tracks the tree version and optionally stores rendered views
// keyed by it. Every successful mutation bumps the version, which
// invalidates every cached view at once. A Valkey-backed implementation
// shares the version between instances.
type ViewCache interface {
	Version(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
	GetView(ctx context.Context, version int64, name string) ([]byte, bool)
	SetView(ctx context.Context, version int64, name string, data []byte)
}

// localViews is the single-process ViewCache. It keeps only the version;
// views are always rebuilt.
type localViews struct {
	version atomic.Int64
}

func (l *localViews) Version(context.Context) (int64, error) { return l.version.Load(), nil }

func (l *localViews) Bump(context.Context) error {
	l.version.Add(1)
	return nil
}

func (l *localViews) GetView(context.Context, int64, string) ([]byte, bool) { return nil, false }

func (l *localViews) SetView(context.Context, int64, string, []byte) {}

// snapshot is an immutable Forest built from one read of the store.
type snapshot struct {
	version  int64
	forest   *tree.Forest
	loadedAt time.Time
}

// noVersion marks a snapshot loaded while the version was unknown. Such
// snapshots are never cached.
const noVersion int64 = -1

// snapshotCache holds the most recent snapshot and deduplicates
// concurrent loads of the same version.
type snapshotCache struct {
	mu     sync.RWMutex
	cur    *snapshot
	flight singleflight.Group
	ttl    time.Duration
	now    func() time.Time
}

func (c *snapshotCache) get(version int64) *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil || c.cur.version != version {
		return nil
	}
	if c.ttl > 0 && c.now().Sub(c.cur.loadedAt) > c.ttl {
		return nil
	}
	return c.cur
}

func (c *snapshotCache) put(s *snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = s
}

func (c *snapshotCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = nil
}

// snapshot returns a Forest of the current tree. Reads never lock the
// store and may observe a tree one mutation behind a concurrent writer.
func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	version, err := s.views.Version(ctx)
	if err != nil {
		slog.Warn("tree version unavailable, loading uncached", "error", err)
		return s.loadSnapshot(ctx, noVersion)
	}

	if snap := s.snaps.get(version); snap != nil {
		snapshotTotal.WithLabelValues("hit").Inc()
		return snap, nil
	}

	v, err, _ := s.snaps.flight.Do(strconv.FormatInt(version, 10), func() (any, error) {
		snap, err := s.loadSnapshot(ctx, version)
		if err != nil {
			return nil, err
		}
		s.snaps.put(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func (s *Service) loadSnapshot(ctx context.Context, version int64) (*snapshot, error) {
	snapshotTotal.WithLabelValues("load").Inc()
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category tree: %w", err)
	}
	return &snapshot{version: version, forest: tree.New(rows), loadedAt: s.now()}, nil
}

// invalidate drops every cached view after a committed mutation. It runs
// detached from the request so a client disconnect cannot leave a stale
// version behind.
func (s *Service) invalidate(ctx context.Context) {
	s.snaps.reset()
	if err := s.views.Bump(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("tree version bump failed", "error", err)
	}
}

// cachedView returns the view called name for the current tree version,
// building and storing it on a miss.
func cachedView[T any](ctx context.Context, s *Service, name string, build func(ctx context.Context, f *tree.Forest) (T, error)) (T, error) {
	var zero T
	snap, err := s.snapshot(ctx)
	if err != nil {
		return zero, err
	}

	if snap.version != noVersion {
		if data, ok := s.views.GetView(ctx, snap.version, name); ok {
			var out T
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
			slog.Warn("cached view unreadable, rebuilding", "view", name)
		}
	}

	out, err := build(ctx, snap.forest)
	if err != nil {
		return zero, err
	}

	if snap.version != noVersion {
		if data, err := json.Marshal(out); err == nil {
			s.views.SetView(ctx, snap.version, name, data)
		}
	}
	return out, nil
}
