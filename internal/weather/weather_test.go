package weather

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmflow/internal/config"
)

const forecastBody = `{
  "latitude": 35.7,
  "longitude": 139.7,
  "daily_units": {"time": "iso8601", "temperature_2m_max": "°C", "temperature_2m_min": "°C", "precipitation_sum": "mm"},
  "daily": {"time": ["2024-05-01"], "temperature_2m_max": [22.4], "temperature_2m_min": [15.0], "precipitation_sum": [0.2]}
}`

type fakeServices struct {
	geocodeBody    string
	geocodeStatus  int
	forecastBody   string
	forecastStatus int
	userAgent      atomic.Value
	forecastCalls  atomic.Int32
	lastQuery      atomic.Value
}

func (f *fakeServices) start(t *testing.T) *Pipeline {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		f.userAgent.Store(r.Header.Get("User-Agent"))
		f.lastQuery.Store(r.URL.Query().Get("q"))
		if f.geocodeStatus != 0 {
			w.WriteHeader(f.geocodeStatus)
			return
		}
		_, _ = w.Write([]byte(f.geocodeBody))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		f.forecastCalls.Add(1)
		if f.forecastStatus != 0 {
			w.WriteHeader(f.forecastStatus)
			return
		}
		_, _ = w.Write([]byte(f.forecastBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewPipeline(config.WeatherConfig{
		GeocodeURL:  srv.URL + "/search",
		ForecastURL: srv.URL + "/forecast",
	}, WithHTTPClient(srv.Client()))
}

func TestExtractLocation(t *testing.T) {
	cases := []struct {
		question string
		want     string
		ok       bool
	}{
		{"What is the weather in Tokyo?", "Tokyo", true},
		{"How hot is it in New York?", "New York", true},
		{"how cold is Oslo", "Oslo", true},
		{"Tell me the temperature in Paris", "Paris", true},
		{"What's the weather like in San Francisco?", "San Francisco", true},
		{"WEATHER IN rome", "rome", true},
		{"Is it raining in London?", "", false},
		{"Tell me a joke", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractLocation(tc.question)
		assert.Equal(t, tc.ok, ok, tc.question)
		assert.Equal(t, tc.want, got, tc.question)
	}
}

func TestIsWeatherQuestion(t *testing.T) {
	assert.True(t, IsWeatherQuestion("Will it RAIN tomorrow?"))
	assert.True(t, IsWeatherQuestion("what's the forecast"))
	assert.True(t, IsWeatherQuestion("Is it sunny in Izmir"))
	assert.False(t, IsWeatherQuestion("What is the capital of France?"))
}

func TestAnswerFormatsReport(t *testing.T) {
	f := &fakeServices{
		geocodeBody:  `[{"lat":"35.6768601","lon":"139.7638947","display_name":"Tokyo, Japan"}]`,
		forecastBody: forecastBody,
	}
	p := f.start(t)

	got := p.Answer(context.Background(), "What is the weather in Tokyo?")
	want := "Weather for Tokyo, Japan on 2024-05-01:\n" +
		"- Maximum temperature: 22.4°C\n" +
		"- Minimum temperature: 15.0°C\n" +
		"- Precipitation: 0.2mm"
	assert.Equal(t, want, got)
	assert.Equal(t, "WeatherApp/1.0", f.userAgent.Load())
	assert.Equal(t, "Tokyo", f.lastQuery.Load())
}

func TestAnswerWithoutLocation(t *testing.T) {
	f := &fakeServices{}
	p := f.start(t)

	got := p.Answer(context.Background(), "Is it going to rain?")
	assert.Equal(t, "I couldn't determine which location you're asking about. Please specify a city or region.", got)
	assert.Nil(t, f.lastQuery.Load())
}

func TestAnswerGeocodeNoResults(t *testing.T) {
	f := &fakeServices{geocodeBody: `[]`, forecastBody: forecastBody}
	p := f.start(t)

	got := p.Answer(context.Background(), "What is the weather in Atlantis?")
	assert.Equal(t, "Sorry, I couldn't retrieve weather information for Atlantis. Please try another location.", got)
	assert.Zero(t, f.forecastCalls.Load())
}

func TestAnswerForecastFailure(t *testing.T) {
	f := &fakeServices{
		geocodeBody:    `[{"lat":"1","lon":"2","display_name":"Somewhere"}]`,
		forecastStatus: http.StatusBadGateway,
	}
	p := f.start(t)

	got := p.Answer(context.Background(), "temperature in Somewhere")
	assert.Equal(t, "Sorry, I couldn't retrieve weather information for Somewhere. Please try another location.", got)
}

func TestLookupErrors(t *testing.T) {
	f := &fakeServices{geocodeStatus: http.StatusTooManyRequests}
	p := f.start(t)

	_, err := p.Lookup(context.Background(), "Tokyo")
	assert.True(t, stdErrors.Is(err, ErrLocationNotFound))

	f2 := &fakeServices{
		geocodeBody:  `[{"lat":"1","lon":"2","display_name":"X"}]`,
		forecastBody: `{"daily":{"time":[],"temperature_2m_max":[],"temperature_2m_min":[],"precipitation_sum":[]}}`,
	}
	p2 := f2.start(t)
	_, err = p2.Lookup(context.Background(), "X")
	assert.True(t, stdErrors.Is(err, ErrForecastUnavailable))
}

func TestForecastDefaultsUnits(t *testing.T) {
	f := &fakeServices{forecastBody: `{"daily":{"time":["2024-05-02"],"temperature_2m_max":[30],"temperature_2m_min":[20.5],"precipitation_sum":[0]}}`}
	p := f.start(t)

	report, err := p.Forecaster().Forecast(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, Units{Temperature: "°C", Precipitation: "mm"}, report.Units)
	assert.Equal(t, 30.0, report.TemperatureMax)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "21.0", formatNumber(21))
	assert.Equal(t, "-3.5", formatNumber(-3.5))
	assert.Equal(t, "0.0", formatNumber(0))
}
