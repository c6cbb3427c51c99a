package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// ContentCounter is the external collaborator owning content. The engine
// only reads from it.
type ContentCounter interface {
	CountActiveContent(ctx context.Context, categoryID uuid.UUID) (int64, error)
	LastContentTimestamp(ctx context.Context, categoryID uuid.UUID) (*time.Time, error)
}

// batchCounter is implemented by counters able to return every direct
// count in one round trip.
type batchCounter interface {
	ActiveContentCounts(ctx context.Context) (map[uuid.UUID]int64, error)
}

// batchRecency is implemented by counters able to return the newest
// content timestamps of all categories in one round trip.
type batchRecency interface {
	LastContentTimestamps(ctx context.Context, since time.Time) (map[uuid.UUID]time.Time, error)
}

// fanOutLimit bounds concurrent per-category lookups when the counter has
// no batch form.
const fanOutLimit = 8

// guardedCounter bounds every lookup with a timeout and trips a circuit
// breaker after repeated failures, so a slow content service turns into
// ErrContentCounterUnavailable instead of stalled requests.
type guardedCounter struct {
	inner   ContentCounter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

func newGuardedCounter(inner ContentCounter, timeout time.Duration) *guardedCounter {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "content-counter",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &guardedCounter{inner: inner, breaker: cb, timeout: timeout}
}

// call runs fn under the timeout and the breaker. Cancellation by the
// caller is returned as is; every other failure is reported as
// ErrContentCounterUnavailable.
func (g *guardedCounter) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	v, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
	if err == nil {
		counterCalls.WithLabelValues("ok").Inc()
		return v, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		counterCalls.WithLabelValues("rejected").Inc()
	} else {
		counterCalls.WithLabelValues("error").Inc()
		slog.Warn("content counter call failed", "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrContentCounterUnavailable, err)
}

// count returns the direct active content count of one category.
func (g *guardedCounter) count(ctx context.Context, id uuid.UUID) (int64, error) {
	v, err := g.call(ctx, func(ctx context.Context) (any, error) {
		return g.inner.CountActiveContent(ctx, id)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// counts returns the direct counts of ids. Ids without content map to zero
// or are absent.
func (g *guardedCounter) counts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	if bc, ok := g.inner.(batchCounter); ok {
		v, err := g.call(ctx, func(ctx context.Context) (any, error) {
			return bc.ActiveContentCounts(ctx)
		})
		if err != nil {
			return nil, err
		}
		return v.(map[uuid.UUID]int64), nil
	}

	results := make([]int64, len(ids))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fanOutLimit)
	for i, id := range ids {
		eg.Go(func() error {
			n, err := g.count(egCtx, id)
			results[i] = n
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int64, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}

// lastTimestamps returns, for the given ids, the creation time of their
// newest content when it is not older than since.
func (g *guardedCounter) lastTimestamps(ctx context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]time.Time, error) {
	if br, ok := g.inner.(batchRecency); ok {
		v, err := g.call(ctx, func(ctx context.Context) (any, error) {
			return br.LastContentTimestamps(ctx, since)
		})
		if err != nil {
			return nil, err
		}
		return v.(map[uuid.UUID]time.Time), nil
	}

	results := make([]*time.Time, len(ids))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fanOutLimit)
	for i, id := range ids {
		eg.Go(func() error {
			v, err := g.call(egCtx, func(ctx context.Context) (any, error) {
				return g.inner.LastContentTimestamp(ctx, id)
			})
			if err != nil {
				return err
			}
			results[i] = v.(*time.Time)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]time.Time)
	for i, id := range ids {
		if ts := results[i]; ts != nil && !ts.Before(since) {
			out[id] = *ts
		}
	}
	return out, nil
}

// withRetry retries fn a bounded number of times while it fails with
// ErrContentCounterUnavailable. Any other error is returned immediately.
func withRetry(ctx context.Context, retries int, delay time.Duration, fn func(ctx context.Context) error) error {
	if delay <= 0 {
		delay = time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(max(retries, 0)), retry.NewConstant(delay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrContentCounterUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}
