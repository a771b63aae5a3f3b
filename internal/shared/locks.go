package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ShipmentLockKey builds redis keys for shipment critical sections.
func ShipmentLockKey(shipmentID int64) string {
	return fmt.Sprintf("logistics:shipment:%d:lock", shipmentID)
}

// CommissionLockKey builds redis keys for ledger entry critical sections.
func CommissionLockKey(entryID int64) string {
	return fmt.Sprintf("commission:entry:%d:lock", entryID)
}

// ErrLockHeld indicates the lease is held by another actor.
var ErrLockHeld = errors.New("entity lock held")

// EntityLocker serialises state transitions per entity across processes using
// redis SET NX leases. Transitions on the same entity are mutually exclusive;
// the lease is released after the transaction commits, before notification
// dispatch.
type EntityLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEntityLocker constructs a locker with the given lease TTL.
func NewEntityLocker(client *redis.Client, ttl time.Duration) *EntityLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EntityLocker{client: client, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lease for key, returning a release func. When the lease
// is already held, ErrLockHeld is returned and the caller must retry after
// the holder finishes.
func (l *EntityLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		// No redis configured: single-process deployments rely on the
		// database transaction alone.
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Result()
	}
	return release, nil
}
