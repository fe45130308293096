package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/andrmlkv/entitlement-engine/internal/config"
)

// Redis хранилище на основе Redis.
type Redis struct {
	db *redis.Client
}

// NewRedis подключается к Redis и проверяет соединение.
func NewRedis(ctx context.Context, cfg config.RedisConnection) (*Redis, error) {
	const op = "kvstore.NewRedis"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Redis{db: db}, nil
}

// Get возвращает значение по ключу и признак его наличия.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "kvstore.Redis.Get"
	val, err := r.db.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return val, true, nil
}

// Put сохраняет значение по ключу без срока жизни.
func (r *Redis) Put(ctx context.Context, key, value string) error {
	const op = "kvstore.Redis.Put"
	if err := r.db.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Remove удаляет ключ.
func (r *Redis) Remove(ctx context.Context, key string) error {
	const op = "kvstore.Redis.Remove"
	if err := r.db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (r *Redis) Close() error {
	return r.db.Close()
}
