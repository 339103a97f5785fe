package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker holds the document lock.
var ErrLockHeld = errors.New("document lock held")

// DocumentLockKey builds redis keys for per-document sync sections.
func DocumentLockKey(kind, id string) string {
	return fmt.Sprintf("ledger:sync:%s:%s:lock", kind, id)
}

// DocumentLocker guards document syncs across workers with SET NX.
type DocumentLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocumentLocker constructs a locker; a nil client disables locking.
func NewDocumentLocker(client *redis.Client, ttl time.Duration) *DocumentLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DocumentLocker{client: client, ttl: ttl}
}

// Acquire takes the lock for the document and returns its release func.
func (l *DocumentLocker) Acquire(ctx context.Context, kind, id string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := DocumentLockKey(kind, id)
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = l.client.Del(context.WithoutCancel(ctx), key).Err()
	}, nil
}
