package participant

import (
	"context"
	"errors"
	"time"

	"kolmarket/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

type RedisCodeStore struct {
	rdb *redis.Client
}

func NewRedisCodeStore(rdb *redis.Client) CodeStore {
	return &RedisCodeStore{rdb: rdb}
}

func (s *RedisCodeStore) Put(ctx context.Context, chatID int64, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, rediskey.HandleVerification(chatID), code, ttl).Err()
}

func (s *RedisCodeStore) Get(ctx context.Context, chatID int64) (string, error) {
	code, err := s.rdb.Get(ctx, rediskey.HandleVerification(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return code, err
}

func (s *RedisCodeStore) Delete(ctx context.Context, chatID int64) error {
	return s.rdb.Del(ctx, rediskey.HandleVerification(chatID)).Err()
}
