package spam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisTrackerPrefix = "spam/tracker/"
	redisMaxRetries    = 8
)

// RedisStore keeps records as JSON values and uses WATCH/MULTI for the read-modify-write.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{Client: rdb, TTL: 24 * time.Hour}, nil
}

func redisKey(userID, communityID string) string {
	return redisTrackerPrefix + communityID + "/" + userID
}

func (s *RedisStore) Get(ctx context.Context, userID, communityID string) (Record, bool, error) {
	raw, err := s.Client.Get(ctx, redisKey(userID, communityID)).Bytes()
	if err == redis.Nil {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, false, fmt.Errorf("decode spam tracker: %w", err)
	}
	return r, true, nil
}

func (s *RedisStore) Update(ctx context.Context, userID, communityID string, fn func(*Record) error) (Record, error) {
	key := redisKey(userID, communityID)
	var out Record
	txf := func(tx *redis.Tx) error {
		var r Record
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("decode spam tracker: %w", err)
			}
		}
		if err := fn(&r); err != nil {
			return err
		}
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.TTL)
			return nil
		})
		if err == nil {
			out = r
		}
		return err
	}
	for i := 0; i < redisMaxRetries; i++ {
		err := s.Client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return out, nil
	}
	return Record{}, fmt.Errorf("spam tracker %s: too much contention", key)
}
