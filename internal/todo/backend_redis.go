package todo

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"llmflow/internal/config"
)

const defaultRedisKey = "llmflow:todos"

// RedisBackend 把整份待办集合保存在一个 Redis 字符串键中。
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend 连接 Redis 并返回后端实例。
func NewRedisBackend(ctx context.Context, cfg config.RedisConfig) (*RedisBackend, error) {
	if cfg.Address == "" {
		return nil, stdErrors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisBackend(client, cfg.Key), nil
}

func newRedisBackend(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisBackend{client: client, key: key}
}

// Load 读取键值，键不存在时返回空集合。
func (b *RedisBackend) Load(ctx context.Context) ([]Record, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if stdErrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Redis 读取待办失败: %w", err)
	}
	return decodeRecords(data)
}

// Save 覆盖写入键值。
func (b *RedisBackend) Save(ctx context.Context, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("Redis 写入待办失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (b *RedisBackend) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
