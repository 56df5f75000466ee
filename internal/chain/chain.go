// Package chain 通过三步结构化调用把一段文字转换为日历事件确认信息：
// 识别事件、提取细节、生成确认语。识别步骤置信度不足时提前结束。
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
	"llmflow/pkg/logger"
)

// MinConfidence 是继续处理所需的最低置信度。
const MinConfidence = 0.7

var extractionSchema = llm.MustSchema("event_extraction", "First call to extract event from input text", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"description":       {Type: "string", Description: "The description of the event"},
		"is_calendar_event": {Type: "boolean", Description: "Whether the event is a calendar event"},
		"confidence_score":  {Type: "number", Description: "The confidence score of the event"},
	},
})

var detailsSchema = llm.MustSchema("event_details", "Second call to extract details from the description", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"name":             {Type: "string", Description: "The name of the event"},
		"date":             {Type: "string", Description: "The date of the event. Use ISO 8601 format."},
		"duration_minutes": {Type: "integer", Description: "The duration of the event in minutes"},
		"participants":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "The participants of the event"},
	},
})

var confirmationSchema = llm.MustSchema("event_confirmation", "Third call to generate a confirmation message", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"confirmation_message": {Type: "string", Description: "Natural language confirmation message"},
	},
})

// Extraction 是第一步的识别结果。
type Extraction struct {
	Description     string  `json:"description"`
	IsCalendarEvent bool    `json:"is_calendar_event"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Details 是第二步提取出的事件细节。
type Details struct {
	Name            string   `json:"name"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Participants    []string `json:"participants"`
}

// Confirmation 是最终生成的确认信息。
type Confirmation struct {
	ConfirmationMessage string `json:"confirmation_message"`
}

// Chain 串行执行三步调用，每一步的输入来自上一步的输出。
type Chain struct {
	client   llm.Client
	now      func() time.Time
	signName string
	log      *slog.Logger
}

// Option 自定义 Chain。
type Option func(*Chain)

// WithClock 替换时间来源，用于提示词中的“今天”。
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSignature 设置确认信息的署名。
func WithSignature(name string) Option {
	return func(c *Chain) {
		if name != "" {
			c.signName = name
		}
	}
}

// New 创建 Chain。
func New(client llm.Client, opts ...Option) *Chain {
	c := &Chain{
		client:   client,
		now:      time.Now,
		signName: "Susie",
		log:      logger.Named("chain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run 处理一段文字。不是日历事件或置信度低于 MinConfidence 时返回 nil, nil。
func (c *Chain) Run(ctx context.Context, text string) (*Confirmation, error) {
	if c.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}

	extraction, err := c.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	if !extraction.IsCalendarEvent || extraction.ConfidenceScore < MinConfidence {
		c.log.Info("不是日历事件或置信度过低，终止处理",
			slog.Bool("calendar_event", extraction.IsCalendarEvent),
			slog.Float64("confidence", extraction.ConfidenceScore))
		return nil, nil
	}

	details, err := c.ExtractDetails(ctx, extraction.Description)
	if err != nil {
		return nil, err
	}
	c.log.Debug("事件细节",
		slog.String("name", details.Name),
		slog.String("date", details.Date),
		slog.Int("duration_minutes", details.DurationMinutes),
		slog.Any("participants", details.Participants))

	confirmation, err := c.Confirm(ctx, details)
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// Extract 判断文字是否描述了一个日历事件。
func (c *Chain) Extract(ctx context.Context, text string) (Extraction, error) {
	prompt := fmt.Sprintf(`Today is %s.
Analyze the following text and extract if the text describes a calendar event.
Text: %s`, c.today(), text)
	return llm.Decode[Extraction](ctx, c.client, prompt, extractionSchema)
}

// ExtractDetails 从事件描述中提取名称、日期、时长与参与者。
func (c *Chain) ExtractDetails(ctx context.Context, description string) (Details, error) {
	prompt := fmt.Sprintf(`Today is %s. Use this date to understand the references like "tomorrow" or "next week".
Analyze the following description and extract the event details.
Description: %s`, c.today(), description)
	return llm.Decode[Details](ctx, c.client, prompt, detailsSchema)
}

// Confirm 根据事件细节生成确认信息。
func (c *Chain) Confirm(ctx context.Context, details Details) (Confirmation, error) {
	encoded, err := json.Marshal(details)
	if err != nil {
		return Confirmation{}, fmt.Errorf("序列化事件细节失败: %w", err)
	}
	prompt := fmt.Sprintf(`Generate a natural confirmation message for the event. Sign off with your name; %s
<example>
Dear Ismail,

I hope this message finds you well. I am pleased to inform you that the event has been accepted.
I would like to meet with you at 02-02-2025 at 10:00 to discuss the details further.
Thank you for your attention, and I look forward to our meeting.
Best regards,

%s
</example>
Use the example but be creative about details.
Event Details: %s`, c.signName, c.signName, encoded)
	return llm.Decode[Confirmation](ctx, c.client, prompt, confirmationSchema)
}

func (c *Chain) today() string {
	return c.now().Format("Monday, January 02, 2006")
}
