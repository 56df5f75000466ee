package weather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	xerrors "llmflow/internal/errors"
)

var (
	// ErrLocationNotFound 表示地理编码没有结果或请求失败。
	ErrLocationNotFound = xerrors.New(xerrors.CodeNotFound, "无法解析地点")
	// ErrForecastUnavailable 表示天气服务请求失败或返回数据不完整。
	ErrForecastUnavailable = xerrors.New(xerrors.CodeUnavailable, "天气数据不可用")
)

const maxBodyBytes = 1 << 20

// Place 是地理编码结果。
type Place struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Units 是天气数据的单位。
type Units struct {
	Temperature   string `json:"temperature"`
	Precipitation string `json:"precipitation"`
}

// Report 是某地当天的天气概况。
type Report struct {
	Location       string  `json:"location,omitempty"`
	Date           string  `json:"date"`
	TemperatureMax float64 `json:"max_temperature"`
	TemperatureMin float64 `json:"min_temperature"`
	Precipitation  float64 `json:"precipitation"`
	Units          Units   `json:"units"`
}

// Geocoder 调用 Nominatim 风格的搜索接口。
type Geocoder struct {
	client    *http.Client
	baseURL   string
	userAgent string
	log       *slog.Logger
}

// Geocode 返回地名对应的第一个结果。
func (g *Geocoder) Geocode(ctx context.Context, location string) (Place, error) {
	query := url.Values{}
	query.Set("q", location)
	query.Set("format", "json")
	query.Set("limit", "1")

	body, err := get(ctx, g.client, g.baseURL, query, g.userAgent)
	if err != nil {
		g.log.Warn("地理编码请求失败", slog.String("location", location), slog.Any("error", err))
		return Place{}, xerrors.Wrap(xerrors.CodeNotFound, err, "无法解析地点")
	}

	first := gjson.GetBytes(body, "0")
	lat, lon := first.Get("lat"), first.Get("lon")
	if !first.Exists() || !lat.Exists() || !lon.Exists() {
		return Place{}, ErrLocationNotFound
	}
	place := Place{
		DisplayName: first.Get("display_name").String(),
		Latitude:    lat.Float(),
		Longitude:   lon.Float(),
	}
	if place.DisplayName == "" {
		place.DisplayName = location
	}
	return place, nil
}

// Forecaster 调用 Open-Meteo 风格的每日预报接口。
type Forecaster struct {
	client    *http.Client
	baseURL   string
	userAgent string
	log       *slog.Logger
}

// Forecast 返回坐标处当天的最高、最低气温与降水量。
func (f *Forecaster) Forecast(ctx context.Context, latitude, longitude float64) (Report, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	query.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	query.Set("timezone", "auto")
	query.Set("forecast_days", "1")

	body, err := get(ctx, f.client, f.baseURL, query, f.userAgent)
	if err != nil {
		f.log.Warn("天气预报请求失败", slog.Float64("latitude", latitude), slog.Float64("longitude", longitude), slog.Any("error", err))
		return Report{}, xerrors.Wrap(xerrors.CodeUnavailable, err, "天气数据不可用")
	}

	values := gjson.GetManyBytes(body,
		"daily.time.0",
		"daily.temperature_2m_max.0",
		"daily.temperature_2m_min.0",
		"daily.precipitation_sum.0",
	)
	for _, v := range values {
		if !v.Exists() || v.Type == gjson.Null {
			return Report{}, ErrForecastUnavailable
		}
	}

	units := gjson.GetManyBytes(body, "daily_units.temperature_2m_max", "daily_units.precipitation_sum")
	return Report{
		Date:           values[0].String(),
		TemperatureMax: values[1].Float(),
		TemperatureMin: values[2].Float(),
		Precipitation:  values[3].Float(),
		Units: Units{
			Temperature:   orDefault(units[0].String(), "°C"),
			Precipitation: orDefault(units[1].String(), "mm"),
		},
	}, nil
}

func get(ctx context.Context, client *http.Client, baseURL string, query url.Values, userAgent string) ([]byte, error) {
	endpoint := baseURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + query.Encode()
	} else {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("服务返回错误状态 %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("响应不是合法 JSON")
	}
	return body, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
