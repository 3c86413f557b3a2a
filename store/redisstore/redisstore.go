// Package redisstore keeps the credential under a single Redis key, for hosts
// where several processes share one session.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "gosession:credential"

// cmdable is the subset of *redis.Client the store uses.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// TTL expires the stored credential server side; zero keeps it until cleared
	TTL time.Duration
}

type Store struct {
	client cmdable
	key    string
	ttl    time.Duration
}

// Dial connects and pings with a short timeout.
func Dial(ctx context.Context, opts Options) (*Store, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redisstore: ping %s: %w", opts.Addr, err)
	}
	return New(client, opts.Key, opts.TTL), client, nil
}

func New(client cmdable, key string, ttl time.Duration) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key, ttl: ttl}
}

func (s *Store) Get(ctx context.Context) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: get: %w", err)
	}
	return val, val != "", nil
}

func (s *Store) Set(ctx context.Context, raw string) error {
	if err := s.client.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redisstore: del: %w", err)
	}
	return nil
}
