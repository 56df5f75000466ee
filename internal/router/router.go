package router

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
)

// Category 是消息的分类结果。
type Category string

const (
	CategoryTask        Category = "Task"
	CategoryQuestion    Category = "Question"
	CategoryInformation Category = "Information"
)

// Categories 返回全部合法分类。
func Categories() []Category {
	return []Category{CategoryTask, CategoryQuestion, CategoryInformation}
}

var routingSchema = llm.MustSchema("message_routing", "The destination a message is routed to", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"result": {
			Type:        "string",
			Description: "The result of the routing, ['Task', 'Question', 'Information']",
			Enum:        []any{string(CategoryTask), string(CategoryQuestion), string(CategoryInformation)},
		},
	},
})

type routingResult struct {
	Result Category `json:"result"`
}

// Router 调用大模型对消息分类。
type Router struct {
	client llm.Client
}

// New 创建 Router。
func New(client llm.Client) *Router {
	return &Router{client: client}
}

// Classify 返回消息的分类。模型给出分类之外的值时返回 CodeSchemaValidation 错误，不做兜底。
func (r *Router) Classify(ctx context.Context, message string) (Category, error) {
	if r == nil || r.client == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	result, err := llm.Decode[routingResult](ctx, r.client, routingPrompt(message), routingSchema)
	if err != nil {
		return "", err
	}
	return result.Result, nil
}

func routingPrompt(message string) string {
	return fmt.Sprintf(`You are a helpful assistant that routes messages to the appropriate destination.
The possible destinations are:
- Task
- Question
- Information
The message is: %s`, message)
}
