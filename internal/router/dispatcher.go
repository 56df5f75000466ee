package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
	"llmflow/internal/todo"
	"llmflow/internal/weather"
	"llmflow/pkg/logger"
)

const saveWarning = "Warning: task could not be saved to storage"

// TaskAdder 新增待办，todo.Store 满足该接口。
type TaskAdder interface {
	Add(ctx context.Context, description string) todo.Result
}

// WeatherAnswerer 回答天气问题，weather.Pipeline 满足该接口。
type WeatherAnswerer interface {
	Answer(ctx context.Context, question string) string
}

// Dispatcher 根据分类结果把消息交给对应的处理器。
// 同一时刻只处理一条消息，API 与队列消费者的并发调用会依次排队。
type Dispatcher struct {
	router     *Router
	client     llm.Client
	tasks      TaskAdder
	weather    WeatherAnswerer
	llmTimeout time.Duration
	log        *slog.Logger
	turn       chan struct{}
}

// Option 定义可选的 Dispatcher 配置。
type Option func(*Dispatcher)

// WithLLMTimeout 设置每次调用大模型的超时时间，0 表示沿用调用方的 context。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.llmTimeout = max(timeout, 0)
	}
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(client llm.Client, tasks TaskAdder, answerer WeatherAnswerer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:  New(client),
		client:  client,
		tasks:   tasks,
		weather: answerer,
		log:     logger.Named("dispatcher"),
		turn:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Process 分类并处理一条消息，返回给用户的回复。
//
// 分类失败与通用问答失败会返回给调用方；天气查询失败已在流水线内转换为提示语。
func (d *Dispatcher) Process(ctx context.Context, message string) (string, error) {
	if d.tasks == nil || d.weather == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "分派器缺少处理器")
	}

	select {
	case d.turn <- struct{}{}:
		defer func() { <-d.turn }()
	case <-ctx.Done():
		return "", xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待处理消息超时")
	}

	category, err := d.classify(ctx, message)
	if err != nil {
		return "", err
	}
	d.log.Debug("消息已分类", slog.String("category", string(category)))

	switch category {
	case CategoryTask:
		return d.handleTask(ctx, message), nil
	case CategoryQuestion:
		return d.handleQuestion(ctx, message)
	case CategoryInformation:
		return fmt.Sprintf("Thanks for the information: %s", message), nil
	default:
		panic(fmt.Sprintf("router: unhandled category %q", category))
	}
}

func (d *Dispatcher) classify(ctx context.Context, message string) (Category, error) {
	callCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.router.Classify(callCtx, message)
}

func (d *Dispatcher) handleTask(ctx context.Context, message string) string {
	res := d.tasks.Add(ctx, message)
	reply := fmt.Sprintf("Task added: %s (ID: %d)", res.Record.Task, res.Record.ID)
	if !res.Persisted {
		d.log.Warn("待办未能持久化", slog.Int("id", res.Record.ID), slog.Any("error", res.SaveErr))
		reply += "\n" + saveWarning
	}
	return reply
}

func (d *Dispatcher) handleQuestion(ctx context.Context, message string) (string, error) {
	if weather.IsWeatherQuestion(message) {
		return d.weather.Answer(ctx, message), nil
	}
	callCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	answer, err := llm.Text(callCtx, d.client, message)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.llmTimeout > 0 {
		return context.WithTimeout(ctx, d.llmTimeout)
	}
	return context.WithCancel(ctx)
}
