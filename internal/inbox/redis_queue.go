package inbox

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"llmflow/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现消息队列：LPUSH 投递，BRPOP 消费。
// 处理失败的消息原样写入 <queue>:failed 列表。
type RedisQueue struct {
	client     *redis.Client
	queue      string
	deadLetter string
	wait       time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
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
	return newRedisQueue(client, cfg.Queue, cfg.BlockWait), nil
}

func newRedisQueue(client *redis.Client, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = "llmflow:inbox"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, deadLetter: queue + ":failed", wait: wait}
}

// Publish 将消息投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, env Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("Redis 投递消息失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 依次获取消息。
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
		if err != nil {
			if stdErrors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stdErrors.Is(err, redis.ErrClosed) {
				return nil
			}
			return fmt.Errorf("Redis 获取消息失败: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		env, err := decodeEnvelope([]byte(values[1]))
		if err != nil {
			logger.L().Warn("丢弃无法解析的队列消息", slog.String("queue", q.queue), slog.Any("error", err))
			continue
		}
		if err := handler(ctx, env); err != nil {
			q.bury(context.WithoutCancel(ctx), values[1], env.ID)
		}
	}
}

// bury 把处理失败的原始消息写入死信列表。
func (q *RedisQueue) bury(ctx context.Context, payload, id string) {
	if err := q.client.LPush(ctx, q.deadLetter, payload).Err(); err != nil {
		logger.L().Warn("写入死信列表失败",
			slog.String("queue", q.deadLetter),
			slog.String("message_id", id),
			slog.Any("error", err))
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
