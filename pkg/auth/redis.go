package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces token keys.
const DefaultRedisKeyPrefix = "streamchat:token"

// RedisConfig configures the Redis client behind RedisTokenStore.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisTokenStore implements TokenStore using Redis, for deployments that
// run more than one API instance. Keys expire with their grants.
//
// Key structure:
//
//	{prefix}:{token} -> JSON(Grant)
type RedisTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisTokenStore connects to Redis and verifies the connection.
func NewRedisTokenStore(ctx context.Context, cfg RedisConfig) (*RedisTokenStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisTokenStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisTokenStoreFromClient wraps an existing client. An empty keyPrefix
// uses DefaultRedisKeyPrefix.
func NewRedisTokenStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisTokenStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisTokenStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisTokenStore) key(token string) string {
	return s.keyPrefix + ":" + token
}

func (s *RedisTokenStore) Put(ctx context.Context, token string, grant Grant) error {
	ttl := time.Until(grant.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshaling grant: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, token string) (Grant, bool, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Grant{}, false, nil
	}
	if err != nil {
		return Grant{}, false, fmt.Errorf("loading token: %w", err)
	}

	var grant Grant
	if err := json.Unmarshal(data, &grant); err != nil {
		return Grant{}, false, fmt.Errorf("decoding grant: %w", err)
	}
	if !time.Now().Before(grant.ExpiresAt) {
		return Grant{}, false, nil
	}
	return grant, true, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}
