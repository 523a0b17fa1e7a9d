package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/bobby-s-dev/weather-lookup/internal/config"
	"github.com/bobby-s-dev/weather-lookup/internal/models"
	"github.com/bobby-s-dev/weather-lookup/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testAPIKey = "0123456789abcdefWXYZ"

const londonPayload = `{
	"weather": [{"id": 803, "main": "Clouds", "description": "broken clouds", "icon": "04d"}],
	"main": {"temp": 15.4, "feels_like": 14.6, "pressure": 1012, "humidity": 72},
	"visibility": 10000,
	"wind": {"speed": 5, "deg": 270},
	"sys": {"country": "GB", "sunrise": 1700000000, "sunset": 1700030000},
	"name": "London",
	"cod": 200
}`

type spyProvider struct {
	calls   int
	queries []client.Query
	reply   *models.UpstreamReply
	err     error
}

func (p *spyProvider) GetCurrentWeather(ctx context.Context, q client.Query) (*models.UpstreamReply, error) {
	p.calls++
	p.queries = append(p.queries, q)
	return p.reply, p.err
}

func okReply(t *testing.T, payload string) *models.UpstreamReply {
	t.Helper()
	var current models.OpenWeatherCurrent
	require.NoError(t, json.Unmarshal([]byte(payload), &current))
	return &models.UpstreamReply{StatusCode: http.StatusOK, Current: &current}
}

func newTestService(apiKey string, provider WeatherProvider, logger *zap.Logger) *WeatherService {
	cfg := &config.Config{}
	cfg.WeatherAPI.OpenWeatherAPIKey = apiKey
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return NewWeatherService(cfg, provider, logger,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return fixed }))
}

func TestLookupSuccess(t *testing.T) {
	provider := &spyProvider{reply: okReply(t, londonPayload)}
	svc := newTestService(testAPIKey, provider, zap.NewNop())

	result, err := svc.Lookup(context.Background(), "  London ")
	require.NoError(t, err)

	require.Len(t, provider.queries, 1)
	assert.Equal(t, client.Query{City: "London", APIKey: testAPIKey, Units: "metric"}, provider.queries[0])

	assert.Equal(t, "London", result.City)
	assert.Equal(t, "GB", result.Country)
	assert.Equal(t, 15, result.Temperature)
	assert.Equal(t, 15, result.FeelsLike)
	assert.Equal(t, 72.0, result.Humidity)
	assert.Equal(t, 1012.0, result.Pressure)
	assert.Equal(t, 18.0, result.WindSpeed)
	assert.Equal(t, 270.0, result.WindDirection)
	assert.Equal(t, 10.0, result.Visibility)
	assert.Equal(t, "Broken Clouds", result.Description)
	assert.Equal(t, "clouds", result.WeatherMain)
	assert.Equal(t, "04d", result.Icon)
	assert.Equal(t, "22:13", result.Sunrise)
	assert.Equal(t, "06:33", result.Sunset)
	assert.Equal(t, "2024-03-01 09:30:00", result.Timestamp)
	assert.Empty(t, result.WindDirectionText, "compass label is added by the endpoint")
	assert.Equal(t, "W", WindDirection(result.WindDirection))
}

func TestLookupOptionalFieldsDefaultToZero(t *testing.T) {
	payload := `{
		"weather": [{"main": "Clear", "description": "clear sky", "icon": "01n"}],
		"main": {"temp": 2.5, "feels_like": -0.5, "pressure": 1030, "humidity": 40},
		"wind": {"speed": 1.2},
		"sys": {"country": "NO", "sunrise": 0, "sunset": 0},
		"name": "Oslo"
	}`
	svc := newTestService(testAPIKey, &spyProvider{reply: okReply(t, payload)}, zap.NewNop())

	result, err := svc.Lookup(context.Background(), "Oslo")
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.WindDirection)
	assert.Equal(t, 0.0, result.Visibility)
	assert.Equal(t, 2, result.Temperature, "ties round half to even")
	assert.Equal(t, 0, result.FeelsLike)
	assert.Equal(t, 4.3, result.WindSpeed)
}

func TestLookupInvalidInput(t *testing.T) {
	for _, city := range []string{"", "   ", "\t\n"} {
		t.Run(fmt.Sprintf("%q", city), func(t *testing.T) {
			provider := &spyProvider{}
			svc := newTestService(testAPIKey, provider, zap.NewNop())

			result, err := svc.Lookup(context.Background(), city)
			assert.Nil(t, result)
			assert.Equal(t, KindInvalidInput, KindOf(err))
			assert.Equal(t, "Please enter a city name", err.Error())
			assert.Zero(t, provider.calls)
		})
	}
}

func TestLookupWithoutCredential(t *testing.T) {
	provider := &spyProvider{}
	svc := newTestService("", provider, zap.NewNop())

	_, err := svc.Lookup(context.Background(), "London")
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
	assert.Contains(t, err.Error(), "API key not configured")
	assert.Zero(t, provider.calls)
	assert.False(t, svc.APIKeySet())
	assert.Zero(t, svc.APIKeyLength())
}

func TestLookupStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		reply   *models.UpstreamReply
		city    string
		kind    Kind
		message string
	}{
		{
			name:    "unauthorized",
			reply:   &models.UpstreamReply{StatusCode: http.StatusUnauthorized, Message: "Invalid API key"},
			city:    "London",
			kind:    KindAuth,
			message: "Invalid API key or authentication failed",
		},
		{
			name:    "not found",
			reply:   &models.UpstreamReply{StatusCode: http.StatusNotFound, Message: "city not found"},
			city:    "Atlantis",
			kind:    KindNotFound,
			message: "City 'Atlantis' not found. Please check the spelling.",
		},
		{
			name:    "rate limited",
			reply:   &models.UpstreamReply{StatusCode: http.StatusTooManyRequests},
			city:    "London",
			kind:    KindRateLimited,
			message: "API rate limit exceeded. Please try again later.",
		},
		{
			name:    "other status with provider message",
			reply:   &models.UpstreamReply{StatusCode: http.StatusBadRequest, Message: "Nothing to geocode"},
			city:    "London",
			kind:    KindUpstream,
			message: "API Error: Nothing to geocode",
		},
		{
			name:    "other status without message",
			reply:   &models.UpstreamReply{StatusCode: http.StatusBadGateway},
			city:    "London",
			kind:    KindUpstream,
			message: "API Error: HTTP 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(testAPIKey, &spyProvider{reply: tt.reply}, zap.NewNop())

			result, err := svc.Lookup(context.Background(), tt.city)
			assert.Nil(t, result)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestLookupMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		missing string
	}{
		{name: "no main block", payload: `{"name":"X","sys":{"country":"X","sunrise":1,"sunset":2},"wind":{"speed":1},"weather":[{"main":"a","description":"b","icon":"c"}]}`, missing: "main"},
		{name: "no weather entries", payload: `{"name":"X","sys":{"country":"X","sunrise":1,"sunset":2},"main":{"temp":1,"feels_like":1,"humidity":1,"pressure":1},"wind":{"speed":1},"weather":[]}`, missing: "weather"},
		{name: "no country", payload: `{"name":"X","sys":{"sunrise":1,"sunset":2},"main":{"temp":1,"feels_like":1,"humidity":1,"pressure":1},"wind":{"speed":1},"weather":[{"main":"a","description":"b","icon":"c"}]}`, missing: "sys.country"},
		{name: "no wind speed", payload: `{"name":"X","sys":{"country":"X","sunrise":1,"sunset":2},"main":{"temp":1,"feels_like":1,"humidity":1,"pressure":1},"wind":{"deg":10},"weather":[{"main":"a","description":"b","icon":"c"}]}`, missing: "wind.speed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(testAPIKey, &spyProvider{reply: okReply(t, tt.payload)}, zap.NewNop())

			_, err := svc.Lookup(context.Background(), "X")
			assert.Equal(t, KindUpstreamFormat, KindOf(err))
			assert.Contains(t, err.Error(), tt.missing)
		})
	}

	t.Run("nil payload", func(t *testing.T) {
		svc := newTestService(testAPIKey, &spyProvider{reply: &models.UpstreamReply{StatusCode: http.StatusOK}}, zap.NewNop())
		_, err := svc.Lookup(context.Background(), "X")
		assert.Equal(t, KindUpstreamFormat, KindOf(err))
	})
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestLookupTransportClassification(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "http://upstream", Err: &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}}

	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "client timeout", err: &url.Error{Op: "Get", URL: "http://upstream", Err: timeoutError{}}, kind: KindTimeout},
		{name: "deadline", err: fmt.Errorf("request failed: %w", context.DeadlineExceeded), kind: KindTimeout},
		{name: "refused", err: fmt.Errorf("request failed: %w", refused), kind: KindConnectivity},
		{name: "dns", err: &url.Error{Op: "Get", URL: "http://nowhere", Err: &net.DNSError{Err: "no such host", Name: "nowhere"}}, kind: KindConnectivity},
		{name: "breaker open", err: fmt.Errorf("failed: %w", client.ErrCircuitOpen), kind: KindUpstream},
		{name: "bad json", err: fmt.Errorf("%w: unexpected EOF", client.ErrMalformedPayload), kind: KindUpstreamFormat},
		{name: "anything else", err: errors.New("tls: handshake failure"), kind: KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(testAPIKey, &spyProvider{err: tt.err}, zap.NewNop())

			_, err := svc.Lookup(context.Background(), "London")
			assert.Equal(t, tt.kind, KindOf(err))
			assert.True(t, errors.Is(err, tt.err), "underlying error stays reachable")
		})
	}
}

func TestLookupTransportErrorMessage(t *testing.T) {
	svc := newTestService(testAPIKey, &spyProvider{err: errors.New("tls: handshake failure")}, zap.NewNop())

	_, err := svc.Lookup(context.Background(), "London")
	assert.Equal(t, "Request error: tls: handshake failure", err.Error())
}

func TestLookupLogsRedactedKey(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := newTestService(testAPIKey, &spyProvider{reply: okReply(t, londonPayload)}, zap.New(core))

	_, err := svc.Lookup(context.Background(), "London")
	require.NoError(t, err)

	entries := logs.FilterMessage("Searching for weather").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "London", fields["city"])
	assert.Equal(t, "01234567...WXYZ", fields["api_key"])
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "SHORT_KEY", RedactKey(""))
	assert.Equal(t, "SHORT_KEY", RedactKey("abcdefghijkl"))
	assert.Equal(t, "abcdefgh...jklm", RedactKey("abcdefghijklm"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NotFound", KindNotFound.String())
	assert.Equal(t, "TransportError", KindTransport.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func newDefaultService(t *testing.T, upstreamURL string) *WeatherService {
	t.Helper()
	for _, key := range []string{"CIRCUIT_BREAKER_THRESHOLD", "CIRCUIT_BREAKER_TIMEOUT", "MAX_RETRIES"} {
		t.Setenv(key, "")
	}
	t.Setenv("OPENWEATHER_API_KEY", testAPIKey)
	t.Setenv("OPENWEATHER_TIMEOUT", "2s")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	provider := client.NewOpenWeatherClient(upstreamURL, client.ClientConfig{
		Timeout:        cfg.WeatherAPI.Timeout,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, zap.NewNop())
	return NewWeatherService(cfg, provider, zap.NewNop())
}

func TestRepeatedRefusedLookupsStayConnectivityErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := newDefaultService(t, "http://"+addr+"/data/2.5/weather")

	for i := 0; i < 5; i++ {
		_, err := s.Lookup(context.Background(), "London")
		require.Error(t, err)
		assert.Equal(t, KindConnectivity, KindOf(err), "lookup %d", i+1)
	}
}

func TestRepeatedServerErrorsReachUpstreamEachTime(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"upstream maintenance"}`)
	}))
	defer ts.Close()

	s := newDefaultService(t, ts.URL)

	for i := 0; i < 5; i++ {
		_, err := s.Lookup(context.Background(), "London")
		require.Error(t, err)
		assert.Equal(t, KindUpstream, KindOf(err))
		assert.Equal(t, "API Error: upstream maintenance", err.Error())
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}
