// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides the Valkey-backed tree version and view cache (L2).
// Every instance reads the same version counter, so a mutation committed
// by one instance invalidates the snapshots and views of all of them.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix is the Valkey key prefix for tree cache entries.
	DefaultKeyPrefix = "tree:"

	// DefaultViewTTL is how long a rendered view stays cached. It also
	// bounds how stale content counts in a cached view can get.
	DefaultViewTTL = 30 * time.Second
)

// TreeCache manages the tree version counter and versioned views in Valkey.
type TreeCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, prefix string, ttl time.Duration) *TreeCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl == 0 {
		ttl = DefaultViewTTL
	}
	return &TreeCache{client: client, prefix: prefix, ttl: ttl}
}

func (tc *TreeCache) versionKey() string {
	return tc.prefix + "version"
}

func (tc *TreeCache) viewKey(version int64, name string) string {
	return tc.prefix + "v" + strconv.FormatInt(version, 10) + ":" + name
}

// Version returns the current tree version. A missing counter is version 0.
func (tc *TreeCache) Version(ctx context.Context) (int64, error) {
	v, err := tc.client.Get(ctx, tc.versionKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tree cache version: %w", err)
	}
	return v, nil
}

// Bump increments the tree version, orphaning every cached view.
func (tc *TreeCache) Bump(ctx context.Context) error {
	v, err := tc.client.Incr(ctx, tc.versionKey()).Result()
	if err != nil {
		return fmt.Errorf("tree cache bump: %w", err)
	}
	slog.Debug("tree cache version bumped", "version", v)
	return nil
}

// GetView retrieves a cached view for a tree version.
func (tc *TreeCache) GetView(ctx context.Context, version int64, name string) ([]byte, bool) {
	val, err := tc.client.Get(ctx, tc.viewKey(version, name)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "view", name, "error", err)
		return nil, false
	}
	slog.Debug("tree cache hit", "view", name, "version", version)
	return val, true
}

// SetView stores a view for a tree version with the configured TTL.
func (tc *TreeCache) SetView(ctx context.Context, version int64, name string, data []byte) {
	if err := tc.client.Set(ctx, tc.viewKey(version, name), data, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "view", name, "error", err)
	}
}

// Purge removes every cached view but keeps the version counter. Used at
// startup, since views written by an older build may no longer decode.
func (tc *TreeCache) Purge(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := tc.client.Scan(ctx, cursor, tc.prefix+"v*", 100).Result()
		if err != nil {
			slog.Warn("tree cache scan error", "error", err)
			return
		}
		var views []string
		for _, k := range keys {
			if k != tc.versionKey() {
				views = append(views, k)
			}
		}
		if len(views) > 0 {
			if err := tc.client.Del(ctx, views...).Err(); err != nil {
				slog.Warn("tree cache bulk delete error", "error", err)
			}
			deleted += len(views)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("tree cache views cleared", "deleted", deleted)
	}
}
