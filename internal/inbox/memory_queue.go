package inbox

import (
	"context"
	stdErrors "errors"
	"sync"
)

// ErrQueueClosed 表示队列已关闭。
var ErrQueueClosed = stdErrors.New("队列已关闭")

// MemoryQueue 使用 channel 模拟消息队列，适合单进程与测试。
type MemoryQueue struct {
	ch     chan Envelope
	mu     sync.RWMutex
	closed bool

	failedMu sync.Mutex
	failed   []Envelope
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan Envelope, size)}
}

// Publish 将消息投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, env Envelope) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- env:
		return nil
	}
}

// Consume 依次处理队列中的消息。处理失败的消息不会重投，而是留存到 Failed 中。
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-q.ch:
			if !ok {
				return nil
			}
			if err := handler(ctx, env); err != nil {
				q.recordFailure(env)
			}
		}
	}
}

// Failed 返回最近处理失败的消息，最多保留与队列容量相同的条数。
func (q *MemoryQueue) Failed() []Envelope {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	return append([]Envelope(nil), q.failed...)
}

func (q *MemoryQueue) recordFailure(env Envelope) {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	if len(q.failed) == cap(q.ch) {
		q.failed = q.failed[1:]
	}
	q.failed = append(q.failed, env)
}

// Close 关闭内存队列，已投递的消息仍会被消费完。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
