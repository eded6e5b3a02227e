package repository

// This file defines the Redis-backed hold store.  Holds are short-lived
// and looked up by id only, which suits plain string keys.  Each key gets a
// TTL that ends `retention` after the hold deadline: Redis then removes the
// record by itself (passive expiration) while the sweeper still gets a
// window to see the expired hold and free its seat.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

const scanBatch = 200

// RedisHoldStore implements store.HoldStore on Redis.
type RedisHoldStore struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisHoldStore returns a hold store writing keys under prefix.
func NewRedisHoldStore(rdb *redis.Client, prefix string, retention time.Duration) *RedisHoldStore {
	if prefix == "" {
		prefix = "seatlease"
	}
	if retention <= 0 {
		retention = store.DefaultRetention
	}
	return &RedisHoldStore{rdb: rdb, prefix: prefix, retention: retention, now: time.Now}
}

var _ store.HoldStore = (*RedisHoldStore)(nil)

func (s *RedisHoldStore) key(holdID string) string { return s.prefix + ":hold:" + holdID }

// PutHold stores h with SET NX so an id can never be overwritten.
func (s *RedisHoldStore) PutHold(ctx context.Context, h model.Hold) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}
	ttl := h.Deadline().Add(s.retention).Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.rdb.SetNX(ctx, s.key(h.HoldID), body, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrConditionFailed
	}
	return nil
}

// GetHold returns the hold or store.ErrNotFound once Redis dropped it.
func (s *RedisHoldStore) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	body, err := s.rdb.Get(ctx, s.key(holdID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Hold{}, store.ErrNotFound
	}
	if err != nil {
		return model.Hold{}, err
	}
	return decodeHold(body)
}

// DeleteHold removes the key; missing keys are ignored.
func (s *RedisHoldStore) DeleteHold(ctx context.Context, holdID string) error {
	return s.rdb.Del(ctx, s.key(holdID)).Err()
}

// ScanHolds walks the key space with SCAN and loads the values in MGET
// batches.  Keys that expire between the two steps are skipped.
func (s *RedisHoldStore) ScanHolds(ctx context.Context) ([]model.Hold, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+":hold:*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	holds := make([]model.Hold, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		vals, err := s.rdb.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			h, err := decodeHold([]byte(str))
			if err != nil {
				return nil, err
			}
			holds = append(holds, h)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].HoldID < holds[j].HoldID })
	return holds, nil
}

func decodeHold(body []byte) (model.Hold, error) {
	var h model.Hold
	if err := json.Unmarshal(body, &h); err != nil {
		return model.Hold{}, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	if err := h.Validate(); err != nil {
		return model.Hold{}, fmt.Errorf("%w: %v", store.ErrMalformed, err)
	}
	return h, nil
}
