package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-polis/internal/lock"
)

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerialisesCriticalSections(t *testing.T) {
	locker := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := lock.ProposalKey("P-100")
	var mu sync.Mutex
	var order []string
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	done := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, key, time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstEntered)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstEntered

	go func() {
		err := locker.WithLock(ctx, key, time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		close(done)
	}()

	// The second holder must not enter while the first is inside.
	time.Sleep(25 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()

	close(releaseFirst)
	<-done

	mu.Lock()
	require.Equal(t, []string{"first", "second"}, order)
	mu.Unlock()
}

func TestWithLockRespectsContextCancellation(t *testing.T) {
	locker := newLocker(t)
	key := lock.ProposalKey("P-200")

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), key, time.Second, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, key, time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
