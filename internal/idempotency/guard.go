// Package idempotency reserves side-effect tokens in redis so an effect
// runs at most once across processes. The lead record's own receipt is
// the source of truth once committed; the guard closes the window between
// invoking a port and committing its result.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"acquisition_backend/platform/logger"
)

// State reports what the guard knows about a token.
type State string

const (
	// StateAcquired means this caller holds the reservation and may
	// perform the effect.
	StateAcquired State = "acquired"
	// StateInFlight means another caller reserved the token and has not
	// reported an outcome yet.
	StateInFlight State = "in_flight"
	// StateDone means the effect already completed; its receipt is
	// available.
	StateDone State = "done"
)

// Outcome is the result of Begin.
type Outcome struct {
	State   State
	Receipt string
}

const (
	keyPrefix      = "idem:"
	pendingMarker  = "pending"
	doneMarker     = "done:"
	receiptRetainT = 7 * 24 * time.Hour
)

// Guard is the redis-backed token reservation. A nil guard is valid and
// always grants the reservation, for running without redis.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New creates a guard. The reservation TTL must exceed the port call
// timeout so a reservation cannot lapse mid-call.
func New(client *redis.Client, ttl time.Duration, log *logger.Logger) *Guard {
	return &Guard{
		client: client,
		ttl:    ttl,
		log:    log.WithComponent("idempotency"),
	}
}

// NewClient builds a redis client from a URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (g *Guard) key(token string) string {
	return keyPrefix + token
}

// Begin reserves the token or reports what happened to it.
func (g *Guard) Begin(ctx context.Context, token string) (Outcome, error) {
	if g == nil || g.client == nil {
		return Outcome{State: StateAcquired}, nil
	}

	ok, err := g.client.SetNX(ctx, g.key(token), pendingMarker, g.ttl).Result()
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve token: %w", err)
	}
	if ok {
		return Outcome{State: StateAcquired}, nil
	}

	val, err := g.client.Get(ctx, g.key(token)).Result()
	if err == redis.Nil {
		// The reservation lapsed between SETNX and GET. Treat it as
		// in flight; the next pass will re-reserve.
		return Outcome{State: StateInFlight}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("inspect token: %w", err)
	}

	if strings.HasPrefix(val, doneMarker) {
		return Outcome{State: StateDone, Receipt: strings.TrimPrefix(val, doneMarker)}, nil
	}
	return Outcome{State: StateInFlight}, nil
}

// Remember records the effect's receipt so later passes reuse it instead
// of repeating the effect.
func (g *Guard) Remember(ctx context.Context, token, receipt string) error {
	if g == nil || g.client == nil {
		return nil
	}
	if err := g.client.Set(ctx, g.key(token), doneMarker+receipt, receiptRetainT).Err(); err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}
	return nil
}

// Release frees a reservation after a cleanly failed call, letting the
// retry (under its new token) proceed without waiting for the TTL.
func (g *Guard) Release(ctx context.Context, token string) error {
	if g == nil || g.client == nil {
		return nil
	}
	if err := g.client.Del(ctx, g.key(token)).Err(); err != nil {
		return fmt.Errorf("release token: %w", err)
	}
	return nil
}
