package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bobby-s-dev/weather-lookup/internal/models"
	"go.uber.org/zap"
)

const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// ErrMalformedPayload means a 200 reply whose body is not valid JSON.
var ErrMalformedPayload = errors.New("malformed weather payload")

// Query is a single current-weather request.
type Query struct {
	City   string
	APIKey string
	Units  string
}

type OpenWeatherClient struct {
	*BaseClient
	baseURL string
	logger  *zap.Logger
}

type openWeatherErrorBody struct {
	Message string `json:"message"`
}

func NewOpenWeatherClient(baseURL string, config ClientConfig, logger *zap.Logger) *OpenWeatherClient {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	baseClient := NewBaseClient("openweather", config, logger)
	return &OpenWeatherClient{
		BaseClient: baseClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// GetCurrentWeather issues one GET for q. Non-200 replies are returned with
// the provider message, if any, and a nil error.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, q Query) (*models.UpstreamReply, error) {
	units := q.Units
	if units == "" {
		units = "metric"
	}

	params := url.Values{}
	params.Set("q", q.City)
	params.Set("appid", q.APIKey)
	params.Set("units", units)

	raw, err := c.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current weather: %w", err)
	}

	reply := &models.UpstreamReply{StatusCode: raw.StatusCode}

	if raw.StatusCode != http.StatusOK {
		var body openWeatherErrorBody
		if err := json.Unmarshal(raw.Body, &body); err != nil {
			c.logger.Debug("Upstream error body is not JSON",
				zap.Int("status", raw.StatusCode),
				zap.Error(err))
		}
		reply.Message = body.Message
		return reply, nil
	}

	var current models.OpenWeatherCurrent
	if err := json.Unmarshal(raw.Body, &current); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	reply.Current = &current

	return reply, nil
}
