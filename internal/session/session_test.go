package session

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"relaybot/pkg/relay"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store relay.SessionStore, userID int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.RecordSent(ctx, userID, 10, 11))
	require.NoError(t, store.RecordCommand(ctx, userID, 3))
	require.NoError(t, store.RecordSent(ctx, userID, 12))
	require.NoError(t, store.RecordSent(ctx, userID+1, 99))

	tracked, err := store.DrainForDeletion(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12}, tracked.Sent)
	assert.Equal(t, []int{3}, tracked.Commands)
	assert.Equal(t, []int{10, 11, 12, 3}, tracked.All())

	again, err := store.DrainForDeletion(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, again.All(), "drain must forget tracked ids")

	other, err := store.DrainForDeletion(ctx, userID+1)
	require.NoError(t, err)
	assert.Equal(t, []int{99}, other.Sent)

	stopped, err := store.CheckStopFlag(ctx, userID)
	require.NoError(t, err)
	assert.False(t, stopped)

	require.NoError(t, store.SetStopFlag(ctx, userID, true))
	stopped, err = store.CheckStopFlag(ctx, userID)
	require.NoError(t, err)
	assert.True(t, stopped)

	require.NoError(t, store.SetStopFlag(ctx, userID, false))
	stopped, err = store.CheckStopFlag(ctx, userID)
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	exerciseStore(t, NewMemoryStore(), 42)
}

func TestMemoryStoreIgnoresEmptyRecords(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.RecordSent(context.Background(), 1))

	tracked, err := store.DrainForDeletion(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, tracked.Sent)
}

// TestRedisStore runs against a live server named by RELAYBOT_TEST_REDIS_ADDR.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("RELAYBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RELAYBOT_TEST_REDIS_ADDR not set")
	}

	prefix := "relaybot-test:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"
	store, err := NewRedisStore(context.Background(), nil, RedisConfig{Addr: addr, Prefix: prefix, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	exerciseStore(t, store, 7)
}

func TestRedisStoreDefaults(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() {
		_ = client.Close()
	})

	store := newRedisStoreWithClient(client, RedisConfig{})
	assert.Equal(t, DefaultRedisPrefix, store.prefix)
	assert.Equal(t, DefaultRedisTTL, store.ttl)
	assert.Equal(t, "relaybot:sent:5", store.key("sent", 5))
}

func TestParseIDs(t *testing.T) {
	t.Parallel()

	ids, err := parseIDs([]string{"1", "20"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 20}, ids)

	_, err = parseIDs([]string{"x"})
	require.Error(t, err)
}
