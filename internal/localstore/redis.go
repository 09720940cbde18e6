package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Local records outlive any single visit but not indefinitely; an untouched
// record expires after this TTL.
const recordTTL = 30 * 24 * time.Hour

type RedisStore struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisStore(client *redis.Client, log *zap.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (r *RedisStore) Load(ctx context.Context, sessionToken string) *Record {
	key := recordKey(sessionToken)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		r.log.Warn("local store read failed, treating as empty",
			zap.String("session_token", sessionToken), zap.Error(err))
		return nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		r.log.Warn("local store record corrupted, treating as empty",
			zap.String("session_token", sessionToken), zap.Error(err))
		return nil
	}

	return &rec
}

func (r *RedisStore) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal local record failed: %w", err)
	}

	if err := r.client.Set(ctx, recordKey(rec.SessionToken), data, recordTTL).Err(); err != nil {
		return fmt.Errorf("local store write failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionToken string) error {
	if err := r.client.Del(ctx, recordKey(sessionToken)).Err(); err != nil {
		return fmt.Errorf("local store delete failed: %w", err)
	}
	return nil
}

func recordKey(sessionToken string) string {
	return fmt.Sprintf("cartsync:cart:%s", sessionToken)
}
