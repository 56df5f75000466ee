package llm

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"

	xerrors "llmflow/internal/errors"
)

// Schema 是一个具名的静态输出结构。所有对象都是封闭的：
// 未声明的字段被拒绝，声明的字段全部必填。
type Schema struct {
	name        string
	description string
	wire        map[string]any
	resolved    *jsonschema.Resolved
}

// NewSchema 编译 schema。definition 不会被修改。
func NewSchema(name, description string, definition *jsonschema.Schema) (*Schema, error) {
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "schema 名称不能为空")
	}
	if definition == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "schema 定义不能为空")
	}
	data, err := json.Marshal(definition)
	if err != nil {
		return nil, fmt.Errorf("序列化 schema %s 失败: %w", name, err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("解析 schema %s 失败: %w", name, err)
	}
	closeObjects(wire)

	resolved, err := compile(wire)
	if err != nil {
		return nil, fmt.Errorf("编译 schema %s 失败: %w", name, err)
	}
	return &Schema{name: name, description: description, wire: wire, resolved: resolved}, nil
}

// MustSchema 与 NewSchema 相同，失败时 panic，用于包级变量。
func MustSchema(name, description string, definition *jsonschema.Schema) *Schema {
	s, err := NewSchema(name, description, definition)
	if err != nil {
		panic(err)
	}
	return s
}

// Name 返回 schema 名称。
func (s *Schema) Name() string { return s.name }

// Description 返回 schema 描述。
func (s *Schema) Description() string { return s.description }

// JSON 返回发送给模型的 JSON Schema（浅拷贝，嵌套结构不可修改）。
func (s *Schema) JSON() map[string]any {
	return maps.Clone(s.wire)
}

// Validate 校验一段 JSON 是否符合 schema。
func (s *Schema) Validate(payload []byte) error {
	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return xerrors.Wrap(xerrors.CodeSchemaValidation, err, fmt.Sprintf("%s: 输出不是合法 JSON", s.name))
	}
	if err := s.resolved.Validate(instance); err != nil {
		return xerrors.Wrap(xerrors.CodeSchemaValidation, err, fmt.Sprintf("%s: 输出不符合 schema", s.name))
	}
	return nil
}

// closeObjects 为每个对象节点设置 additionalProperties: false 并将全部属性设为必填。
func closeObjects(node map[string]any) {
	walk(node, func(n map[string]any) {
		props, ok := n["properties"].(map[string]any)
		if !ok {
			return
		}
		n["additionalProperties"] = false
		keys := slices.Sorted(maps.Keys(props))
		required := make([]any, len(keys))
		for i, k := range keys {
			required[i] = k
		}
		if len(required) > 0 {
			n["required"] = required
		}
		delete(n, "$id")
		delete(n, "id")
	})
}

func walk(node map[string]any, visit func(map[string]any)) {
	if node == nil {
		return
	}
	visit(node)
	for _, val := range node {
		switch v := val.(type) {
		case map[string]any:
			walk(v, visit)
		case []any:
			for _, item := range v {
				if child, ok := item.(map[string]any); ok {
					walk(child, visit)
				}
			}
		}
	}
}

func compile(wire map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}
