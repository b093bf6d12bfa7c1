// Package lock provides the per-proposal mutual exclusion the editing
// session requires: a reconciliation merge's read-modify-write of the
// item list must be atomic with respect to other merges and to direct
// user edits, across both the API and the worker process.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is a Redis-backed lock keyed by an arbitrary string.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// ProposalKey derives the lock key guarding one proposal's session.
func ProposalKey(proposalNo string) string {
	return "polis:lock:proposal:" + proposalNo
}

// WithLock runs fn while holding the lock for key, releasing it afterwards
// even when fn fails. Acquisition retries until the context is cancelled.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 25 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		acquired, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if acquired {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// release deletes the key only when it still holds our token, so an
// expired lock taken over by another owner is never clobbered.
func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
