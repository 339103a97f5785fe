package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, ActorFromContext(ctx))
	require.Equal(t, "clerk", ActorFromContext(ContextWithActor(ctx, "clerk")))
}

func TestDocumentLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewDocumentLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "sales_order", "SO1")
	require.NoError(t, err)
	require.True(t, mr.Exists(DocumentLockKey("sales_order", "SO1")))

	_, err = locker.Acquire(ctx, "sales_order", "SO1")
	require.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Acquire(ctx, "purchase_order", "SO1")
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists(DocumentLockKey("sales_order", "SO1")))
	again, err := locker.Acquire(ctx, "sales_order", "SO1")
	require.NoError(t, err)
	again()
}

func TestDocumentLockerExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewDocumentLocker(client, 30*time.Second)

	_, err := locker.Acquire(context.Background(), "sales_order", "SO9")
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)
	_, err = locker.Acquire(context.Background(), "sales_order", "SO9")
	require.NoError(t, err)
}

func TestDocumentLockerWithoutRedis(t *testing.T) {
	release, err := NewDocumentLocker(nil, 0).Acquire(context.Background(), "sales_order", "SO1")
	require.NoError(t, err)
	release()
}

func TestAuditLogValidation(t *testing.T) {
	require.Error(t, AuditLog{Action: "post", Entity: "posting_group", EntityID: "JV00000001"}.validate())
	require.Error(t, AuditLog{Actor: "clerk", Entity: "posting_group", EntityID: "JV00000001"}.validate())
	require.NoError(t, AuditLog{Actor: "clerk", Action: "post", Entity: "posting_group", EntityID: "JV00000001"}.validate())

	err := (*AuditLogger)(nil).Record(context.Background(), AuditLog{})
	require.Error(t, err)
}

func TestIdempotencyStoreGuards(t *testing.T) {
	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(context.Background(), "k", "m"))
	require.NoError(t, store.Delete(context.Background(), "k", "m"))
	removed, err := store.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)

	store = NewIdempotencyStore(nil)
	require.Error(t, store.CheckAndInsert(context.Background(), "", "m"))
	require.Error(t, store.CheckAndInsert(context.Background(), "k", ""))
}
