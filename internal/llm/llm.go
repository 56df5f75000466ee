package llm

import (
	"context"
	"encoding/json"
)

// Role 标识对话中一条消息的发送方。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// ToolMode 控制模型调用函数的方式。
type ToolMode string

const (
	// ToolModeAuto 由模型决定是否调用函数。
	ToolModeAuto ToolMode = "auto"
	// ToolModeAny 要求模型必须调用 AllowedFunctions 中的某个函数。
	ToolModeAny ToolMode = "any"
	// ToolModeNone 禁止函数调用。
	ToolModeNone ToolMode = "none"
)

// Message 是对话历史中的一条记录。
type Message struct {
	Role           Role            `json:"role"`
	Content        string          `json:"content,omitempty"`
	FunctionCall   *FunctionCall   `json:"function_call,omitempty"`
	FunctionResult *FunctionResult `json:"function_result,omitempty"`
}

// FunctionDeclaration 描述提供给模型的一个可调用函数。
type FunctionDeclaration struct {
	Name        string
	Description string
	// Parameters 为空表示函数不接收参数。
	Parameters *Schema
}

// FunctionCall 是模型返回的函数调用指令，调用方必须执行并回填结果。
type FunctionCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// FunctionResult 是函数执行结果，作为后续轮次回传给模型。
type FunctionResult struct {
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

// Request 描述一次发送给大模型的请求。
type Request struct {
	Prompt           string
	History          []Message
	Schema           *Schema
	Tools            []FunctionDeclaration
	ToolMode         ToolMode
	AllowedFunctions []string
}

// Messages 返回完整的对话列表：历史记录在前，Prompt 作为最后一条用户消息。
func (r Request) Messages() []Message {
	messages := make([]Message, 0, len(r.History)+1)
	messages = append(messages, r.History...)
	if r.Prompt != "" {
		messages = append(messages, Message{Role: RoleUser, Content: r.Prompt})
	}
	return messages
}

// Response 是大模型返回的内容，三个字段中至多一种是主要结果。
type Response struct {
	Text         string
	Structured   json.RawMessage
	FunctionCall *FunctionCall
}

// Client 定义了调用大模型的统一接口。
//
// 实现方在网络失败、非成功状态码或超时时返回 CodeUpstream 错误，且不做重试。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
