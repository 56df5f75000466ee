package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/llm"
)

// Client 通过调用 Python 脚本实现大模型推理。
//
// 脚本从标准输入读取一个 JSON 请求，并向标准输出写入一个 JSON 响应：
//
//	request:  {"model", "messages", "schema", "tools", "tool_mode", "allowed_functions"}
//	response: {"text", "structured", "function_call"}
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
	model      string
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir, model string) (*Client, error) {
	if scriptPath == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
		model:      model,
	}, nil
}

type bridgeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type bridgeSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type bridgeRequest struct {
	Model            string        `json:"model,omitempty"`
	Messages         []llm.Message `json:"messages"`
	Schema           *bridgeSchema `json:"schema,omitempty"`
	Tools            []bridgeTool  `json:"tools,omitempty"`
	ToolMode         llm.ToolMode  `json:"tool_mode,omitempty"`
	AllowedFunctions []string      `json:"allowed_functions,omitempty"`
}

type bridgeResponse struct {
	Text         string            `json:"text"`
	Structured   json.RawMessage   `json:"structured"`
	FunctionCall *llm.FunctionCall `json:"function_call"`
}

// Complete 调用外部脚本，并解析输出。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload := bridgeRequest{
		Model:            c.model,
		Messages:         req.Messages(),
		ToolMode:         req.ToolMode,
		AllowedFunctions: req.AllowedFunctions,
	}
	if req.Schema != nil {
		payload.Schema = &bridgeSchema{Name: req.Schema.Name(), Schema: req.Schema.JSON()}
	}
	for _, decl := range req.Tools {
		tool := bridgeTool{Name: decl.Name, Description: decl.Description}
		if decl.Parameters != nil {
			tool.Parameters = decl.Parameters.JSON()
		}
		payload.Tools = append(payload.Tools, tool)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err,
			fmt.Sprintf("执行 Python 脚本失败, stderr=%s", strings.TrimSpace(stderr.String())))
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "解析 Python 输出失败")
	}

	structured := bytes.TrimSpace(resp.Structured)
	if len(structured) == 0 || bytes.Equal(structured, []byte("null")) {
		structured = nil
	}
	return &llm.Response{
		Text:         strings.TrimSpace(resp.Text),
		Structured:   structured,
		FunctionCall: resp.FunctionCall,
	}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}

var _ llm.Client = (*Client)(nil)
