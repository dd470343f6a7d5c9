package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, opts...), mr
}

func TestRedisStoreCRUD(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, newTestSession("missing", "")), ErrNotFound)

	sess := newTestSession("s1", "conv-1")
	sess.Messages = []Message{{ID: "m1", Role: RoleBot, Content: "Hi"}}
	require.NoError(t, store.Create(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "greeting", got.ScenarioID)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "Ann", got.Slots["name"])
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Hi", got.Messages[0].Content)

	got.Status = StatusCanceled
	require.NoError(t, store.Update(ctx, got))
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "s1"), ErrNotFound)
}

func TestRedisStoreNilSlots(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	sess := newTestSession("s1", "")
	sess.Slots = nil
	require.NoError(t, store.Create(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.Slots)
	got.Slots["x"] = 1
}

func TestRedisStoreListByConversation(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	a := newTestSession("a", "conv-1")
	a.CreatedAt = time.Now().Add(-time.Hour)
	b := newTestSession("b", "conv-1")
	c := newTestSession("c", "conv-2")
	for _, s := range []*Session{b, a, c} {
		require.NoError(t, store.Create(ctx, s))
	}

	got, err := store.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	// Deleting a session removes it from the conversation index.
	require.NoError(t, store.Delete(ctx, "a"))
	got, err = store.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	empty, err := store.ListByConversation(ctx, "conv-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("s1", "conv-1")))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The stale index entry is skipped, not surfaced as an error.
	got, err := store.ListByConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStorePrefix(t *testing.T) {
	store, mr := newTestRedisStore(t, WithPrefix("other:"))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestSession("s1", "")))
	assert.True(t, mr.Exists("other:s1"))
	assert.False(t, mr.Exists("chatflow:session:s1"))
}
