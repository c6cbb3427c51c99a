// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package category implements the category tree engine: validated
// structural mutations executed inside one store transaction, and
// read-only views composed from cached tree snapshots and content counts.
package category

import (
	"context"
	"time"

	"knowtree/internal/models"
	"knowtree/internal/store"
	"knowtree/internal/tree"
)

// NodeStore persists categories. InTx must run fn atomically and
// serialized with every other InTx call on the same tree.
type NodeStore interface {
	List(ctx context.Context) ([]models.Category, error)
	InTx(ctx context.Context, fn func(tx store.CategoryTx) error) error
}

// Config tunes validation and the content counter guard.
type Config struct {
	MaxDepth int
	Names    tree.NameRule

	// RecentWindow limits RecentlyUsed to content created within it.
	RecentWindow time.Duration

	CounterTimeout    time.Duration
	CounterRetries    int
	CounterRetryDelay time.Duration

	// SnapshotTTL bounds how long an in-process tree snapshot is reused
	// when the version did not change. Zero disables the bound.
	SnapshotTTL time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          tree.DefaultMaxDepth,
		Names:             tree.NameRule{Trim: true},
		RecentWindow:      30 * 24 * time.Hour,
		CounterTimeout:    500 * time.Millisecond,
		CounterRetries:    2,
		CounterRetryDelay: 50 * time.Millisecond,
		SnapshotTTL:       30 * time.Second,
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithViewCache replaces the process-local version counter, typically with
// the Valkey tree cache shared by every instance.
func WithViewCache(vc ViewCache) Option {
	return func(s *Service) { s.views = vc }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the entry point for every category operation.
type Service struct {
	store   NodeStore
	counter *guardedCounter
	cfg     Config
	views   ViewCache
	snaps   *snapshotCache
	now     func() time.Time
}

// New creates a Service over the given store and content counter.
func New(st NodeStore, counter ContentCounter, cfg Config, opts ...Option) *Service {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = tree.DefaultMaxDepth
	}
	s := &Service{
		store:   st,
		counter: newGuardedCounter(counter, cfg.CounterTimeout),
		cfg:     cfg,
		views:   &localViews{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snaps = &snapshotCache{ttl: cfg.SnapshotTTL, now: s.now}
	return s
}

// MaxDepth returns the configured depth limit.
func (s *Service) MaxDepth() int {
	return s.cfg.MaxDepth
}

func (s *Service) validator(f *tree.Forest) tree.Validator {
	return tree.Validator{Forest: f, MaxDepth: s.cfg.MaxDepth, Names: s.cfg.Names}
}

// view returns c decorated with the fields derived from its position in f.
// c need not be part of f yet, but its parent must be.
func view(f *tree.Forest, c models.Category) models.Category {
	c = c.Stripped()
	if c.ParentID != nil {
		if parent, ok := f.Get(*c.ParentID); ok {
			c.ParentName = parent.Name
		}
		if depth, err := f.Depth(*c.ParentID); err == nil {
			c.Depth = depth + 1
		}
	}
	c.ChildrenCount = f.ChildCount(c.ID)
	c.Leaf = c.ChildrenCount == 0
	return c
}

// viewAll decorates every category of list.
func viewAll(f *tree.Forest, list []models.Category) []models.Category {
	out := make([]models.Category, 0, len(list))
	for _, c := range list {
		out = append(out, view(f, c))
	}
	return out
}
