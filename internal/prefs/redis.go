// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package prefs

import (
	"context"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/vodplayer/internal/log"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vodplayer:prefs:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps one hash per scope.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := xglog.WithComponent("prefs")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis preference store")

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, scope, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, redisKeyPrefix+scope, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, scope, key, value string) error {
	return r.client.HSet(ctx, redisKeyPrefix+scope, key, value).Err()
}

func (r *RedisStore) Delete(ctx context.Context, scope, key string) error {
	return r.client.HDel(ctx, redisKeyPrefix+scope, key).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
