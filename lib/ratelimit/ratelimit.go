// Package ratelimit bounds how many portal submissions happen per
// hour across every worker sharing the counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"municipalrecords-backend/lib/timezone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("municipalrecords.lib.ratelimit")

// CounterStore is the atomic increment-with-expiry contract the
// limiter needs. Production uses redis, tests use an in-memory map.
type CounterStore interface {
	// Incr atomically increments key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the key's time to live.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type Limiter struct {
	store   CounterStore
	prefix  string
	ceiling int64
}

// NewLimiter bounds acquisitions to ceiling per clock hour. ceiling
// <= 0 falls back to the default of 10 submissions per hour.
func NewLimiter(store CounterStore, prefix string, ceiling int64) *Limiter {
	if ceiling <= 0 {
		ceiling = 10
	}
	return &Limiter{store: store, prefix: prefix, ceiling: ceiling}
}

// TryAcquire consumes one unit of this hour's budget. A false result
// means the budget is exhausted and the caller must defer, it is
// never a failure of the work item itself.
func (l *Limiter) TryAcquire(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "TryAcquire")
	defer span.End()

	key := fmt.Sprintf("%s:%s", l.prefix, timezone.Now().Format("2006010215"))
	span.SetAttributes(attribute.String("key", key))

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		// first writer of the hour owns the expiry
		err = l.store.Expire(ctx, key, time.Hour)
		if err != nil {
			return false, err
		}
	}

	ok := count <= l.ceiling
	span.SetAttributes(
		attribute.Int64("count", count),
		attribute.Bool("acquired", ok),
	)
	return ok, nil
}
