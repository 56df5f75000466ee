package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"llmflow/internal/config"
	"llmflow/pkg/logger"
)

const (
	defaultGeocodeURL  = "https://nominatim.openstreetmap.org/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultUserAgent   = "WeatherApp/1.0"
	defaultTimeout     = 10 * time.Second

	noLocationReply = "I couldn't determine which location you're asking about. Please specify a city or region."
)

// Pipeline 串联地点提取、地理编码、天气查询与格式化。
type Pipeline struct {
	geocoder   *Geocoder
	forecaster *Forecaster
	log        *slog.Logger
}

// Option 自定义 Pipeline。
type Option func(*options)

type options struct {
	client *http.Client
}

// WithHTTPClient 指定出站 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// NewPipeline 根据配置创建天气查询流水线。
func NewPipeline(cfg config.WeatherConfig, opts ...Option) *Pipeline {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	o := &options{client: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(o)
	}

	userAgent := orDefault(strings.TrimSpace(cfg.UserAgent), defaultUserAgent)
	log := logger.Named("weather")
	return &Pipeline{
		geocoder: &Geocoder{
			client:    o.client,
			baseURL:   orDefault(strings.TrimSpace(cfg.GeocodeURL), defaultGeocodeURL),
			userAgent: userAgent,
			log:       log,
		},
		forecaster: &Forecaster{
			client:    o.client,
			baseURL:   orDefault(strings.TrimSpace(cfg.ForecastURL), defaultForecastURL),
			userAgent: userAgent,
			log:       log,
		},
		log: log,
	}
}

// Geocoder 返回流水线使用的地理编码器。
func (p *Pipeline) Geocoder() *Geocoder { return p.geocoder }

// Forecaster 返回流水线使用的天气预报客户端。
func (p *Pipeline) Forecaster() *Forecaster { return p.forecaster }

// Lookup 查询地名对应的天气，Report.Location 为地理编码返回的完整名称。
func (p *Pipeline) Lookup(ctx context.Context, location string) (Report, error) {
	place, err := p.geocoder.Geocode(ctx, location)
	if err != nil {
		return Report{}, err
	}
	report, err := p.forecaster.Forecast(ctx, place.Latitude, place.Longitude)
	if err != nil {
		return Report{}, err
	}
	report.Location = place.DisplayName
	return report, nil
}

// Answer 回答一个天气问题，任何失败都转换为固定的提示语。
func (p *Pipeline) Answer(ctx context.Context, question string) string {
	location, ok := ExtractLocation(question)
	if !ok {
		return noLocationReply
	}
	report, err := p.Lookup(ctx, location)
	if err != nil {
		p.log.Info("天气查询失败", slog.String("location", location), slog.Any("error", err))
		return fmt.Sprintf("Sorry, I couldn't retrieve weather information for %s. Please try another location.", location)
	}
	return Format(report)
}

// Format 把天气概况格式化为多行文本。
func Format(r Report) string {
	location := orDefault(r.Location, "the requested location")
	date := orDefault(r.Date, "today")
	tempUnit := orDefault(r.Units.Temperature, "°C")
	precipUnit := orDefault(r.Units.Precipitation, "mm")

	var b strings.Builder
	fmt.Fprintf(&b, "Weather for %s on %s:\n", location, date)
	fmt.Fprintf(&b, "- Maximum temperature: %s%s\n", formatNumber(r.TemperatureMax), tempUnit)
	fmt.Fprintf(&b, "- Minimum temperature: %s%s\n", formatNumber(r.TemperatureMin), tempUnit)
	fmt.Fprintf(&b, "- Precipitation: %s%s", formatNumber(r.Precipitation), precipUnit)
	return b.String()
}

// formatNumber 输出最短表示，整数值保留一位小数（21 -> "21.0"）。
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
