package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gibster/internal/config"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gibster"

type RedisKeyValueStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisKeyValueStore(client *redis.Client, ttl time.Duration) *RedisKeyValueStore {
	return &RedisKeyValueStore{
		client: client,
		ttl:    ttl,
	}
}

func redisKey(origin, key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, origin, key)
}

func (r *RedisKeyValueStore) Get(ctx context.Context, origin, key string) (string, bool, error) {
	if r.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, redisKey(origin, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get value from redis: %w", err)
	}
	return val, true, nil
}

func (r *RedisKeyValueStore) Set(ctx context.Context, origin, key, value string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, redisKey(origin, key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value in redis: %w", err)
	}
	return nil
}

func (r *RedisKeyValueStore) Delete(ctx context.Context, origin, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, redisKey(origin, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete value from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
