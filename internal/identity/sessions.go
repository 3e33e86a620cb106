package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a session token is unknown, expired
// or revoked.
var ErrSessionNotFound = errors.New("session not found")

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionCache stores active provider sessions in Redis, keyed by hashed
// token with the session TTL as the key TTL.
type SessionCache struct {
	client *redis.Client
	prefix string
}

func NewSessionCache(redisURL string) (*SessionCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &SessionCache{client: client, prefix: "session:"}, nil
}

// NewSessionCacheWithClient wraps an existing Redis client.
func NewSessionCacheWithClient(client *redis.Client) *SessionCache {
	return &SessionCache{client: client, prefix: "session:"}
}

func (c *SessionCache) key(tokenHash string) string {
	return c.prefix + tokenHash
}

func (c *SessionCache) Save(ctx context.Context, tokenHash string, user AuthUser, expiresAt time.Time) error {
	record := sessionRecord{
		UserID:    user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	if err := c.client.Set(ctx, c.key(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *SessionCache) Lookup(ctx context.Context, tokenHash string) (AuthUser, error) {
	data, err := c.client.Get(ctx, c.key(tokenHash)).Result()
	if err == redis.Nil {
		return AuthUser{}, ErrSessionNotFound
	}
	if err != nil {
		return AuthUser{}, fmt.Errorf("lookup session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return AuthUser{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return AuthUser{
		ID:       record.UserID,
		Email:    record.Email,
		FullName: record.FullName,
	}, nil
}

func (c *SessionCache) Revoke(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, c.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (c *SessionCache) Close() error {
	return c.client.Close()
}

func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
