package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/lumi/internal/models"
)

const (
	defaultRedisPrefix = "lumi:history:"
	maxAppendRetries   = 8
)

// RedisStore keeps each session as a Redis list of JSON encoded turns plus a sequence
// counter. Appends WATCH the counter so concurrent writers from any process never share a
// number.
type RedisStore struct {
	client *redis.Client
	prefix string
	locks  *sessionLocks
}

// NewRedisStore connects to addr and verifies the server answers.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ""), nil
}

// NewRedisStoreWithClient wraps an existing client. An empty prefix uses "lumi:history:".
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, locks: newSessionLocks()}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) seqKey(sessionID string) string {
	return r.prefix + sessionID + ":seq"
}

// Append implements Store.
func (r *RedisStore) Append(ctx context.Context, sessionID string, turn *models.Turn) (*models.Turn, error) {
	t, err := prepare(sessionID, turn)
	if err != nil {
		return nil, err
	}
	unlock := r.locks.lock(sessionID)
	defer unlock()

	key, seqKey := r.key(sessionID), r.seqKey(sessionID)
	for attempt := 1; attempt <= maxAppendRetries; attempt++ {
		err = r.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Get(ctx, seqKey).Int64()
			if err == redis.Nil {
				n = 0
			} else if err != nil {
				return err
			}
			t.Seq = n + 1
			payload, err := json.Marshal(t)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, seqKey, t.Seq, 0)
				pipe.RPush(ctx, key, payload)
				return nil
			})
			return err
		}, seqKey)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, unavailable(ctx, "append turn", err)
		}
	}
	return nil, unavailable(ctx, "append turn", fmt.Errorf("gave up after %d conflicting writes", maxAppendRetries))
}

// Read implements Store.
func (r *RedisStore) Read(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	raw, err := r.client.LRange(ctx, r.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(ctx, "read turns", err)
	}
	turns := make([]*models.Turn, 0, len(raw))
	for _, item := range raw {
		var t models.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, unavailable(ctx, "decode turn", err)
		}
		turns = append(turns, &t)
	}
	return turns, nil
}

// Reset implements Store.
func (r *RedisStore) Reset(ctx context.Context, sessionID string) error {
	if err := validateSession(sessionID); err != nil {
		return err
	}
	unlock := r.locks.lock(sessionID)
	defer unlock()
	if err := r.client.Del(ctx, r.key(sessionID), r.seqKey(sessionID)).Err(); err != nil {
		return unavailable(ctx, "reset session", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
