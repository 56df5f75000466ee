package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "llmflow/internal/errors"
)

// Decode 发起一次结构化请求，并把结果校验、解析为 T。
//
// 模型输出不符合 schema 时返回 CodeSchemaValidation，调用失败时返回
// CodeUpstream。不做重试。
func Decode[T any](ctx context.Context, client Client, prompt string, schema *Schema) (T, error) {
	var zero T
	if client == nil {
		return zero, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if schema == nil {
		return zero, xerrors.New(xerrors.CodeInvalidArgument, "结构化请求缺少 schema")
	}

	resp, err := client.Complete(ctx, Request{Prompt: prompt, Schema: schema})
	if err != nil {
		return zero, upstream(err)
	}
	if resp == nil {
		return zero, xerrors.New(xerrors.CodeUpstream, "大模型返回空响应")
	}

	payload := bytes.TrimSpace(resp.Structured)
	if len(payload) == 0 {
		payload = []byte(strings.TrimSpace(resp.Text))
	}
	return Parse[T](payload, schema)
}

// Parse 校验 payload 并严格解码，未声明的字段视为错误。
func Parse[T any](payload []byte, schema *Schema) (T, error) {
	var out T
	if err := schema.Validate(payload); err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, xerrors.Wrap(xerrors.CodeSchemaValidation, err, fmt.Sprintf("%s: 解码失败", schema.Name()))
	}
	return out, nil
}

// Text 发起一次不限制输出结构的请求并返回文本。
func Text(ctx context.Context, client Client, prompt string) (string, error) {
	if client == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	resp, err := client.Complete(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", upstream(err)
	}
	if resp == nil {
		return "", xerrors.New(xerrors.CodeUpstream, "大模型返回空响应")
	}
	return strings.TrimSpace(resp.Text), nil
}

// upstream 保证调用失败带有统一错误码。已带错误码的错误原样返回。
func upstream(err error) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeUpstream, err, "调用大模型失败")
}
