package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *EntityLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEntityLocker(client, 5*time.Second)
}

func TestEntityLockerMutualExclusion(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	key := ShipmentLockKey(42)
	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockHeld)

	release()

	release2, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	release2()
}

func TestEntityLockerIndependentKeys(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	release1, err := locker.Acquire(ctx, ShipmentLockKey(1))
	require.NoError(t, err)
	defer release1()

	release2, err := locker.Acquire(ctx, CommissionLockKey(1))
	require.NoError(t, err)
	defer release2()
}

func TestEntityLockerNilClient(t *testing.T) {
	locker := NewEntityLocker(nil, time.Second)
	release, err := locker.Acquire(context.Background(), ShipmentLockKey(7))
	require.NoError(t, err)
	release()
}
