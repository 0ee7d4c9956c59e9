package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"relaybot/pkg/relay"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces every key written by RedisStore.
	DefaultRedisPrefix = "relaybot:"
	// DefaultRedisTTL expires tracking lists of idle users.
	DefaultRedisTTL = 7 * 24 * time.Hour
)

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr     string        // Redis address (host:port)
	Password string        // Redis password
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Expiry refreshed on every write
}

// RedisStore is a relay.SessionStore shared across bot restarts.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, logger *slog.Logger, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}

	store := newRedisStoreWithClient(client, cfg)
	if logger != nil {
		logger.Info("connected to redis session store",
			"addr", cfg.Addr,
			"db", cfg.DB,
			"prefix", store.prefix,
		)
	}

	return store, nil
}

func newRedisStoreWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(kind string, userID int64) string {
	return s.prefix + kind + ":" + strconv.FormatInt(userID, 10)
}

// RecordSent tracks messages the bot created for userID.
func (s *RedisStore) RecordSent(ctx context.Context, userID int64, ids ...int) error {
	if err := s.push(ctx, s.key("sent", userID), ids); err != nil {
		return fmt.Errorf("record sent for %d: %w", userID, err)
	}

	return nil
}

// RecordCommand tracks command messages userID sent to the bot.
func (s *RedisStore) RecordCommand(ctx context.Context, userID int64, ids ...int) error {
	if err := s.push(ctx, s.key("cmd", userID), ids); err != nil {
		return fmt.Errorf("record command for %d: %w", userID, err)
	}

	return nil
}

func (s *RedisStore) push(ctx context.Context, key string, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)

	return err
}

// DrainForDeletion atomically reads and deletes the tracked ids of userID.
func (s *RedisStore) DrainForDeletion(ctx context.Context, userID int64) (relay.TrackedMessages, error) {
	sentKey := s.key("sent", userID)
	commandKey := s.key("cmd", userID)

	pipe := s.client.TxPipeline()
	sent := pipe.LRange(ctx, sentKey, 0, -1)
	commands := pipe.LRange(ctx, commandKey, 0, -1)
	pipe.Del(ctx, sentKey, commandKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return relay.TrackedMessages{}, fmt.Errorf("drain tracked messages for %d: %w", userID, err)
	}

	sentIDs, err := parseIDs(sent.Val())
	if err != nil {
		return relay.TrackedMessages{}, fmt.Errorf("drain sent messages for %d: %w", userID, err)
	}
	commandIDs, err := parseIDs(commands.Val())
	if err != nil {
		return relay.TrackedMessages{}, fmt.Errorf("drain command messages for %d: %w", userID, err)
	}

	return relay.TrackedMessages{Sent: sentIDs, Commands: commandIDs}, nil
}

// SetStopFlag sets or clears the batch stop request of userID.
func (s *RedisStore) SetStopFlag(ctx context.Context, userID int64, stop bool) error {
	key := s.key("stop", userID)

	var err error
	if stop {
		err = s.client.Set(ctx, key, "1", s.ttl).Err()
	} else {
		err = s.client.Del(ctx, key).Err()
	}
	if err != nil {
		return fmt.Errorf("set stop flag for %d: %w", userID, err)
	}

	return nil
}

// CheckStopFlag reports whether userID asked to stop the running batch.
func (s *RedisStore) CheckStopFlag(ctx context.Context, userID int64) (bool, error) {
	value, err := s.client.Get(ctx, s.key("stop", userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check stop flag for %d: %w", userID, err)
	}

	return value == "1", nil
}

func parseIDs(values []string) ([]int, error) {
	if len(values) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(values))
	for _, value := range values {
		id, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("parse message id %q: %w", value, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

var _ relay.SessionStore = (*RedisStore)(nil)
