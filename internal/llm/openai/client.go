package openai

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
)

const (
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI 兼容 Chat Completions API 所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 通过 OpenAI 兼容接口完成结构化生成与函数调用。
type Client struct {
	api   *goopenai.Client
	model string
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供 OpenAI API Key")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiCfg := goopenai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		apiCfg.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	} else {
		apiCfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		api:   goopenai.NewClientWithConfig(apiCfg),
		model: model,
	}, nil
}

// Complete 实现 llm.Client。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, payload)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstream, "OpenAI 响应中没有有效的 choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		return &llm.Response{
			Text: msg.Content,
			FunctionCall: &llm.FunctionCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: json.RawMessage(args),
			},
		}, nil
	}

	content := strings.TrimSpace(msg.Content)
	out := &llm.Response{Text: content}
	if req.Schema != nil {
		out.Structured = json.RawMessage(content)
	}
	return out, nil
}

func (c *Client) buildRequest(req llm.Request) (goopenai.ChatCompletionRequest, error) {
	messages, err := convertMessages(req.Messages())
	if err != nil {
		return goopenai.ChatCompletionRequest{}, err
	}

	payload := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
	}

	if req.Schema != nil {
		raw, err := json.Marshal(req.Schema.JSON())
		if err != nil {
			return goopenai.ChatCompletionRequest{}, fmt.Errorf("序列化输出 schema 失败: %w", err)
		}
		payload.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Schema.Name(),
				Description: req.Schema.Description(),
				Schema:      json.RawMessage(raw),
				Strict:      true,
			},
		}
	}

	if len(req.Tools) > 0 {
		payload.Tools = make([]goopenai.Tool, 0, len(req.Tools))
		for _, decl := range req.Tools {
			params := map[string]any{"type": "object", "properties": map[string]any{}}
			if decl.Parameters != nil {
				params = decl.Parameters.JSON()
			}
			payload.Tools = append(payload.Tools, goopenai.Tool{
				Type: goopenai.ToolTypeFunction,
				Function: &goopenai.FunctionDefinition{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  params,
				},
			})
		}
		payload.ToolChoice = toolChoice(req.ToolMode, req.AllowedFunctions)
	}
	return payload, nil
}

func toolChoice(mode llm.ToolMode, allowed []string) any {
	switch mode {
	case llm.ToolModeNone:
		return "none"
	case llm.ToolModeAny:
		if len(allowed) == 1 {
			return goopenai.ToolChoice{
				Type:     goopenai.ToolTypeFunction,
				Function: goopenai.ToolFunction{Name: allowed[0]},
			}
		}
		return "required"
	default:
		return "auto"
	}
}

func convertMessages(history []llm.Message) ([]goopenai.ChatCompletionMessage, error) {
	out := make([]goopenai.ChatCompletionMessage, 0, len(history))
	for idx, msg := range history {
		switch {
		case msg.FunctionCall != nil:
			args := string(msg.FunctionCall.Arguments)
			if args == "" {
				args = "{}"
			}
			out = append(out, goopenai.ChatCompletionMessage{
				Role: goopenai.ChatMessageRoleAssistant,
				ToolCalls: []goopenai.ToolCall{{
					ID:   callID(msg.FunctionCall.ID, idx),
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      msg.FunctionCall.Name,
						Arguments: args,
					},
				}},
			})
		case msg.FunctionResult != nil:
			out = append(out, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    string(msg.FunctionResult.Content),
				Name:       msg.FunctionResult.Name,
				ToolCallID: callID(msg.FunctionResult.CallID, idx-1),
			})
		default:
			role, err := convertRole(msg.Role)
			if err != nil {
				return nil, err
			}
			out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: msg.Content})
		}
	}
	return out, nil
}

// callID 在模型未返回调用 ID 时根据函数调用所在位置生成稳定的 ID。
func callID(id string, position int) string {
	if id != "" {
		return id
	}
	return "call_" + strconv.Itoa(position)
}

func convertRole(role llm.Role) (string, error) {
	switch role {
	case llm.RoleSystem:
		return goopenai.ChatMessageRoleSystem, nil
	case llm.RoleUser, "":
		return goopenai.ChatMessageRoleUser, nil
	case llm.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的消息角色: %s", role))
	}
}

func wrapAPIError(err error) error {
	var apiErr *goopenai.APIError
	if stdErrors.As(err, &apiErr) {
		return xerrors.Wrap(xerrors.CodeUpstream, err, fmt.Sprintf("OpenAI 返回错误状态 %d", apiErr.HTTPStatusCode),
			xerrors.WithMetadata("status", strconv.Itoa(apiErr.HTTPStatusCode)))
	}
	var reqErr *goopenai.RequestError
	if stdErrors.As(err, &reqErr) {
		return xerrors.Wrap(xerrors.CodeUpstream, err, fmt.Sprintf("OpenAI 返回错误状态 %d", reqErr.HTTPStatusCode),
			xerrors.WithMetadata("status", strconv.Itoa(reqErr.HTTPStatusCode)))
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeUpstream, err, "请求 OpenAI 超时")
	}
	return xerrors.Wrap(xerrors.CodeUpstream, err, "请求 OpenAI 失败")
}

var _ llm.Client = (*Client)(nil)
