package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llmflow/internal/config"
)

// Handler 处理一条入站消息。
type Handler func(ctx context.Context, env Envelope) error

// Producer 负责向队列投递消息。
type Producer interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Consumer 负责从队列中消费消息。Consume 阻塞直到 ctx 取消或队列关闭。
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// NewQueue 根据配置创建队列。
func NewQueue(ctx context.Context, cfg config.QueueConfig) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryQueue(cfg.Size), nil
	case "redis":
		return NewRedisQueue(ctx, RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq", "amqp":
		return NewRabbitMQQueue(RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("不支持的队列驱动: %s", cfg.Driver)
	}
}

// Submit 为文本创建 Envelope 并投递。
func Submit(ctx context.Context, producer Producer, text string) (Envelope, error) {
	env, err := NewEnvelope(text)
	if err != nil {
		return Envelope{}, err
	}
	if err := producer.Publish(ctx, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
