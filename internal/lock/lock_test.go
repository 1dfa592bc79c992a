package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupCoordinator(t *testing.T) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, Options{Expiry: 5 * time.Second, Retries: 1, RetryDelay: 10 * time.Millisecond}), mr
}

func never(context.Context) (bool, error) { return false, nil }

func TestExecuteRunsActionAndReleases(t *testing.T) {
	c, mr := setupCoordinator(t)
	ran := 0

	skipped, acquired, err := c.ExecuteWithConditionalLock(context.Background(), "publish-correspondence-1", never,
		func(context.Context) error { ran++; return nil })

	require.NoError(t, err)
	require.False(t, skipped)
	require.True(t, acquired)
	require.Equal(t, 1, ran)
	require.False(t, mr.Exists("lock:publish-correspondence-1"))
}

func TestExecuteSkipsBeforeLock(t *testing.T) {
	c, _ := setupCoordinator(t)

	skipped, acquired, err := c.ExecuteWithConditionalLock(context.Background(), "k",
		func(context.Context) (bool, error) { return true, nil },
		func(context.Context) error { t.Fatal("action must not run"); return nil })

	require.NoError(t, err)
	require.True(t, skipped)
	require.False(t, acquired)
}

func TestExecuteRechecksAfterLock(t *testing.T) {
	c, _ := setupCoordinator(t)
	calls := 0
	shouldSkip := func(context.Context) (bool, error) {
		calls++
		return calls > 1, nil
	}

	skipped, acquired, err := c.ExecuteWithConditionalLock(context.Background(), "k", shouldSkip,
		func(context.Context) error { t.Fatal("action must not run"); return nil })

	require.NoError(t, err)
	require.True(t, skipped)
	require.True(t, acquired)
	require.Equal(t, 2, calls)
}

func TestExecuteContendedLock(t *testing.T) {
	c, mr := setupCoordinator(t)
	require.NoError(t, mr.Set("lock:k", "someone-else"))

	skipped, acquired, err := c.ExecuteWithConditionalLock(context.Background(), "k", never,
		func(context.Context) error { t.Fatal("action must not run"); return nil })

	require.NoError(t, err)
	require.False(t, skipped)
	require.False(t, acquired)
}

func TestExecuteReturnsActionError(t *testing.T) {
	c, mr := setupCoordinator(t)
	boom := errors.New("boom")

	_, acquired, err := c.ExecuteWithConditionalLock(context.Background(), "k", never,
		func(context.Context) error { return boom })

	require.ErrorIs(t, err, boom)
	require.True(t, acquired)
	require.False(t, mr.Exists("lock:k"))
}

func TestExecuteRejectsEmptyKey(t *testing.T) {
	c, _ := setupCoordinator(t)
	_, _, err := c.ExecuteWithConditionalLock(context.Background(), "", never, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrEmptyKey)
}
