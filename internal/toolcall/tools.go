package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	xerrors "llmflow/internal/errors"
	"llmflow/internal/knowledge"
	"llmflow/internal/llm"
	"llmflow/internal/weather"
)

var weatherParams = llm.MustSchema("get_weather", "Coordinates to look up", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"latitude":  {Type: "number", Description: "The latitude of the location"},
		"longitude": {Type: "number", Description: "The longitude of the location"},
	},
})

var customerServiceParams = llm.MustSchema("take_a_look_at_the_customer_service_data", "Optional topic filter", &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"query": {
			Types:       []string{"string", "null"},
			Description: "Keywords describing the customer's problem, or null to read every entry",
		},
	},
})

// Forecaster 查询坐标处的当日天气，weather.Forecaster 满足该接口。
type Forecaster interface {
	Forecast(ctx context.Context, latitude, longitude float64) (weather.Report, error)
}

// WeatherTool 即 get_weather(latitude, longitude)。
type WeatherTool struct {
	forecaster Forecaster
}

// NewWeatherTool 创建天气工具。
func NewWeatherTool(forecaster Forecaster) *WeatherTool {
	return &WeatherTool{forecaster: forecaster}
}

// Declaration 实现 Tool。
func (t *WeatherTool) Declaration() llm.FunctionDeclaration {
	return llm.FunctionDeclaration{
		Name:        "get_weather",
		Description: "Retrieves today's temperature data for the specified coordinates",
		Parameters:  weatherParams,
	}
}

// Call 实现 Tool。
func (t *WeatherTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	if err := weatherParams.Validate(args); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "get_weather 参数不合法")
	}
	var coords struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(args, &coords); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "get_weather 参数不合法")
	}
	report, err := t.forecaster.Forecast(ctx, coords.Latitude, coords.Longitude)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// CustomerServiceTool 即 take_a_look_at_the_customer_service_data(query)。
//
// query 为空时返回全部客服知识；否则按关键字检索，没有命中时仍返回全部条目。
type CustomerServiceTool struct {
	provider knowledge.Provider
}

// NewCustomerServiceTool 创建客服知识工具。
func NewCustomerServiceTool(provider knowledge.Provider) *CustomerServiceTool {
	return &CustomerServiceTool{provider: provider}
}

// Declaration 实现 Tool。
func (t *CustomerServiceTool) Declaration() llm.FunctionDeclaration {
	return llm.FunctionDeclaration{
		Name:        "take_a_look_at_the_customer_service_data",
		Description: "Retrieves customer service data, optionally narrowed to a topic",
		Parameters:  customerServiceParams,
	}
}

// Call 实现 Tool。
func (t *CustomerServiceTool) Call(_ context.Context, args json.RawMessage) (any, error) {
	if t.provider == nil {
		return nil, fmt.Errorf("未配置客服知识库")
	}
	var input struct {
		Query *string `json:"query"`
	}
	if trimmed := bytes.TrimSpace(args); len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &input); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "take_a_look_at_the_customer_service_data 参数不合法")
		}
	}

	if input.Query != nil && strings.TrimSpace(*input.Query) != "" {
		if entries := t.provider.Query(*input.Query); len(entries) > 0 {
			return map[string]any{"entries": entries}, nil
		}
	}
	return map[string]any{"entries": t.provider.All()}, nil
}

var (
	_ Tool = (*WeatherTool)(nil)
	_ Tool = (*CustomerServiceTool)(nil)
)
