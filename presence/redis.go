// Package presence mirrors user presence into Redis so other nodes and the
// push transport can read it.
package presence

import (
	"context"
	stderrors "errors"
	"fmt"
	"skill-chat/domain"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "skillchat"

// RedisMirror stores one key per online user. Keys expire after ttl unless
// refreshed, so a crashed node never leaves users online forever.
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisMirror(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func (m *RedisMirror) key(user domain.UserID) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, user)
}

// SetStatus records the status, offline removes the key.
func (m *RedisMirror) SetStatus(ctx context.Context, user domain.UserID, status domain.PresenceStatus) error {
	if status == domain.StatusOffline {
		return m.client.Del(ctx, m.key(user)).Err()
	}
	return m.client.Set(ctx, m.key(user), string(status), m.ttl).Err()
}

// Status reads the mirrored status. A missing key means offline.
func (m *RedisMirror) Status(ctx context.Context, user domain.UserID) (domain.PresenceStatus, error) {
	value, err := m.client.Get(ctx, m.key(user)).Result()
	if stderrors.Is(err, redis.Nil) {
		return domain.StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return domain.ParsePresenceStatus(value)
}
