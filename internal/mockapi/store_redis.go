package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps fixture state in redis so several mockapi instances can
// share sessions in multi-process development setups. Keys get a retention
// TTL well past their logical expiry; logical expiry stays in the payload so
// handlers can still report SESSION_EXPIRED.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ssemock"
	}
	return &RedisStore{client: client, prefix: prefix, retention: 24 * time.Hour}
}

func (s *RedisStore) key(kind, id string) string {
	return s.prefix + ":" + kind + ":" + id
}

func (s *RedisStore) put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, s.retention).Err()
}

func (s *RedisStore) get(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) PutSession(ctx context.Context, id string, sess Session) error {
	return s.put(ctx, s.key("session", id), sess)
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (Session, bool, error) {
	var sess Session
	ok, err := s.get(ctx, s.key("session", id), &sess)
	return sess, ok, err
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key("session", id)).Err()
}

func (s *RedisStore) PutChallenge(ctx context.Context, ch Challenge) error {
	return s.put(ctx, s.key("challenge", ch.ID), ch)
}

func (s *RedisStore) GetChallenge(ctx context.Context, id string) (Challenge, bool, error) {
	var ch Challenge
	ok, err := s.get(ctx, s.key("challenge", id), &ch)
	return ch, ok, err
}

func (s *RedisStore) DeleteChallenge(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key("challenge", id)).Err()
}

func (s *RedisStore) PutResetToken(ctx context.Context, t ResetToken) error {
	return s.put(ctx, s.key("reset", t.Token), t)
}

func (s *RedisStore) ConsumeResetToken(ctx context.Context, token string) (ResetToken, bool, error) {
	key := s.key("reset", token)
	var t ResetToken
	ok, err := s.get(ctx, key, &t)
	if err != nil || !ok {
		return ResetToken{}, ok, err
	}
	used := t
	used.Used = true
	if err := s.put(ctx, key, used); err != nil {
		return ResetToken{}, false, err
	}
	return t, true, nil
}
