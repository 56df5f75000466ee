package inbox

import (
	"context"
	"log/slog"
	"time"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/observability/metrics"
	"llmflow/pkg/logger"
)

// Dispatcher 定义了处理器所需的分派能力，router.Dispatcher 满足该接口。
type Dispatcher interface {
	Process(ctx context.Context, message string) (string, error)
}

// Outcome 是一条消息的处理结果。
type Outcome struct {
	Envelope Envelope
	Response string
	Err      error
	Duration time.Duration
}

// Processor 从队列中依次取出消息交给 Dispatcher，并把结果写入审计日志。
type Processor struct {
	dispatcher Dispatcher
	consumer   Consumer
	timeout    time.Duration
	onOutcome  func(Outcome)
	logger     *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMessageTimeout 限制单条消息的处理时间。
func WithMessageTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = max(timeout, 0)
	}
}

// WithOutcomeHook 在每条消息处理完成后回调。
func WithOutcomeHook(hook func(Outcome)) ProcessorOption {
	return func(p *Processor) {
		p.onOutcome = hook
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(dispatcher Dispatcher, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		dispatcher: dispatcher,
		consumer:   consumer,
		logger:     logger.Named("inbox"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动消费循环，阻塞直到 ctx 取消或队列关闭。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置消息消费者")
	}
	if p.dispatcher == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置消息分派器")
	}
	return p.consumer.Consume(ctx, p.handle)
}

func (p *Processor) handle(ctx context.Context, env Envelope) error {
	msgCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		msgCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	response, err := p.dispatcher.Process(msgCtx, env.Text)
	outcome := Outcome{Envelope: env, Response: response, Err: err, Duration: time.Since(started)}
	metrics.ObserveMessage("inbox", err)

	if err != nil {
		level := xerrors.SeverityOf(err).Level()
		p.logger.Log(ctx, level, "消息处理失败", slog.String("message_id", env.ID), slog.Any("error", err))
		logger.Audit().Log(ctx, level, "消息处理失败",
			slog.String("message_id", env.ID),
			slog.String("message", env.Text),
			slog.String("error", err.Error()),
			slog.String("error_code", string(xerrors.CodeOf(err))),
		)
	} else {
		logger.Audit().Info("消息处理完成",
			slog.String("message_id", env.ID),
			slog.String("message", env.Text),
			slog.String("response", response),
			slog.Duration("duration", outcome.Duration),
		)
	}
	if p.onOutcome != nil {
		p.onOutcome(outcome)
	}
	return err
}
