// AngelaMos | 2026
// store.go

package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

// Store persists the sid to uid mapping so a session survives a process
// restart or lands on another instance.
type Store interface {
	Save(ctx context.Context, sid, uid string, ttl time.Duration) error
	Load(ctx context.Context, sid string) (string, error)
	Touch(ctx context.Context, sid string, ttl time.Duration) error
	Delete(ctx context.Context, sid string) error
}

type redisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) key(sid string) string {
	return s.prefix + sid
}

func (s *redisStore) Save(ctx context.Context, sid, uid string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(sid), uid, ttl).Err(); err != nil {
		return core.StorageError("save session", err)
	}
	return nil
}

func (s *redisStore) Load(ctx context.Context, sid string) (string, error) {
	uid, err := s.client.Get(ctx, s.key(sid)).Result()
	if err != nil {
		return "", core.RedisError("load session", err)
	}
	return uid, nil
}

func (s *redisStore) Touch(ctx context.Context, sid string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(sid), ttl).Err(); err != nil {
		return core.StorageError("touch session", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return core.StorageError("delete session", err)
	}
	return nil
}
