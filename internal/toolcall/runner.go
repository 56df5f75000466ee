// Package toolcall 实现单轮函数调用：模型选择一个已注册的工具，本地执行后
// 把结果回传给模型，再由模型给出最终回答。
package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
	"llmflow/pkg/logger"
)

// Tool 是可供模型调用的本地函数。
type Tool interface {
	Declaration() llm.FunctionDeclaration
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Runner 持有已注册的工具并驱动函数调用流程。
type Runner struct {
	client llm.Client
	tools  map[string]Tool
	order  []string
	log    *slog.Logger
}

// NewRunner 创建 Runner。重名工具以后注册者为准。
func NewRunner(client llm.Client, tools ...Tool) *Runner {
	r := &Runner{
		client: client,
		tools:  make(map[string]Tool, len(tools)),
		log:    logger.Named("toolcall"),
	}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register 注册一个工具。
func (r *Runner) Register(tool Tool) {
	if tool == nil {
		return
	}
	name := tool.Declaration().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Ask 发送问题并要求模型调用一个已注册的工具；工具执行后再请求一次，返回最终文本。
// 模型未调用工具时直接返回其文本回答。
func (r *Runner) Ask(ctx context.Context, prompt string) (string, error) {
	if r.client == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if len(r.tools) == 0 {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未注册任何工具")
	}

	declarations := r.declarations()
	resp, err := r.client.Complete(ctx, llm.Request{
		Prompt:           prompt,
		Tools:            declarations,
		ToolMode:         llm.ToolModeAny,
		AllowedFunctions: r.order,
	})
	if err != nil {
		return "", upstream(err)
	}
	if resp == nil {
		return "", xerrors.New(xerrors.CodeUpstream, "大模型返回空响应")
	}
	if resp.FunctionCall == nil {
		return strings.TrimSpace(resp.Text), nil
	}

	call := *resp.FunctionCall
	tool, ok := r.tools[call.Name]
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("模型调用了未注册的工具: %s", call.Name))
	}
	r.log.Info("执行工具调用", slog.String("tool", call.Name), slog.String("arguments", string(call.Arguments)))

	output, callErr := tool.Call(ctx, call.Arguments)
	if callErr != nil {
		// 工具失败时把错误作为结果交给模型，由模型组织回答。
		r.log.Warn("工具执行失败", slog.String("tool", call.Name), slog.Any("error", callErr))
		output = map[string]string{"error": callErr.Error()}
	}
	content, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("序列化工具结果失败: %w", err)
	}

	followUp, err := r.client.Complete(ctx, llm.Request{
		History: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
			{Role: llm.RoleAssistant, FunctionCall: &call},
			{Role: llm.RoleFunction, FunctionResult: &llm.FunctionResult{CallID: call.ID, Name: call.Name, Content: content}},
		},
		Tools:    declarations,
		ToolMode: llm.ToolModeNone,
	})
	if err != nil {
		return "", upstream(err)
	}
	if followUp == nil {
		return "", xerrors.New(xerrors.CodeUpstream, "大模型返回空响应")
	}
	return strings.TrimSpace(followUp.Text), nil
}

func (r *Runner) declarations() []llm.FunctionDeclaration {
	out := make([]llm.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Declaration())
	}
	return out
}

func upstream(err error) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeUpstream, err, "调用大模型失败")
}
