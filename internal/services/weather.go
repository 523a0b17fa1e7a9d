package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/bobby-s-dev/weather-lookup/internal/config"
	"github.com/bobby-s-dev/weather-lookup/internal/models"
	"github.com/bobby-s-dev/weather-lookup/pkg/client"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	clockFormat     = "15:04"
	timestampFormat = "2006-01-02 15:04:05"
)

// WeatherProvider fetches the raw current-weather reply for one city.
type WeatherProvider interface {
	GetCurrentWeather(ctx context.Context, q client.Query) (*models.UpstreamReply, error)
}

type WeatherService struct {
	provider WeatherProvider
	apiKey   string
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

type Option func(*WeatherService)

// WithLocation sets the zone used for sunrise, sunset and the timestamp.
func WithLocation(loc *time.Location) Option {
	return func(s *WeatherService) {
		s.location = loc
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *WeatherService) {
		s.now = now
	}
}

func NewWeatherService(cfg *config.Config, provider WeatherProvider, logger *zap.Logger, opts ...Option) *WeatherService {
	s := &WeatherService{
		provider: provider,
		apiKey:   cfg.WeatherAPI.OpenWeatherAPIKey,
		logger:   logger,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// APIKeySet reports whether lookups can reach the provider at all.
func (s *WeatherService) APIKeySet() bool {
	return s.apiKey != ""
}

func (s *WeatherService) APIKeyLength() int {
	return len(s.apiKey)
}

// Lookup fetches and reshapes the current weather for city. Every failure is
// a *LookupError whose Message is safe to show to the user.
func (s *WeatherService) Lookup(ctx context.Context, city string) (*models.WeatherResult, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, newLookupError(KindInvalidInput, nil, "Please enter a city name")
	}

	if s.apiKey == "" {
		s.logger.Error("OpenWeatherMap API key not set")
		return nil, newLookupError(KindConfig, nil, "API key not configured. Please check your .env file.")
	}

	s.logger.Info("Searching for weather",
		zap.String("city", city),
		zap.String("api_key", RedactKey(s.apiKey)))

	reply, err := s.provider.GetCurrentWeather(ctx, client.Query{
		City:   city,
		APIKey: s.apiKey,
		Units:  "metric",
	})
	if err != nil {
		lookupErr := classifyTransportError(err)
		s.logger.Warn("Weather lookup failed",
			zap.String("city", city),
			zap.Stringer("kind", lookupErr.Kind),
			zap.Error(err))
		return nil, lookupErr
	}

	if lookupErr := statusError(city, reply); lookupErr != nil {
		s.logger.Warn("Weather provider rejected lookup",
			zap.String("city", city),
			zap.Int("status", reply.StatusCode),
			zap.Stringer("kind", lookupErr.Kind))
		return nil, lookupErr
	}

	result, lookupErr := s.buildResult(reply.Current)
	if lookupErr != nil {
		s.logger.Error("Weather payload incomplete",
			zap.String("city", city),
			zap.String("error", lookupErr.Message))
		return nil, lookupErr
	}

	return result, nil
}

func statusError(city string, reply *models.UpstreamReply) *LookupError {
	switch reply.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return newLookupError(KindAuth, nil, "Invalid API key or authentication failed")
	case http.StatusNotFound:
		return newLookupError(KindNotFound, nil, "City '%s' not found. Please check the spelling.", city)
	case http.StatusTooManyRequests:
		return newLookupError(KindRateLimited, nil, "API rate limit exceeded. Please try again later.")
	}

	message := reply.Message
	if message == "" {
		message = fmt.Sprintf("HTTP %d", reply.StatusCode)
	}
	return newLookupError(KindUpstream, nil, "API Error: %s", message)
}

func (s *WeatherService) buildResult(p *models.OpenWeatherCurrent) (*models.WeatherResult, *LookupError) {
	if missing := missingFields(p); len(missing) > 0 {
		return nil, newLookupError(KindUpstreamFormat, nil,
			"Unexpected error: weather data is missing %s", strings.Join(missing, ", "))
	}

	var windDeg, visibility float64
	if p.Wind.Deg != nil {
		windDeg = *p.Wind.Deg
	}
	if p.Visibility != nil {
		visibility = *p.Visibility
	}

	condition := p.Weather[0]
	title := cases.Title(language.English)

	return &models.WeatherResult{
		City:          *p.Name,
		Country:       *p.Sys.Country,
		Temperature:   int(math.RoundToEven(*p.Main.Temp)),
		FeelsLike:     int(math.RoundToEven(*p.Main.FeelsLike)),
		Humidity:      *p.Main.Humidity,
		Pressure:      *p.Main.Pressure,
		WindSpeed:     roundTo(*p.Wind.Speed*3.6, 1),
		WindDirection: windDeg,
		Visibility:    visibility / 1000,
		Description:   title.String(*condition.Description),
		WeatherMain:   strings.ToLower(*condition.Main),
		Icon:          *condition.Icon,
		Sunrise:       time.Unix(*p.Sys.Sunrise, 0).In(s.location).Format(clockFormat),
		Sunset:        time.Unix(*p.Sys.Sunset, 0).In(s.location).Format(clockFormat),
		Timestamp:     s.now().In(s.location).Format(timestampFormat),
	}, nil
}

// missingFields lists the required payload paths that are absent.
func missingFields(p *models.OpenWeatherCurrent) []string {
	if p == nil {
		return []string{"payload"}
	}

	var missing []string
	need := func(present bool, field string) {
		if !present {
			missing = append(missing, field)
		}
	}

	need(p.Name != nil, "name")

	need(p.Sys != nil, "sys")
	if p.Sys != nil {
		need(p.Sys.Country != nil, "sys.country")
		need(p.Sys.Sunrise != nil, "sys.sunrise")
		need(p.Sys.Sunset != nil, "sys.sunset")
	}

	need(p.Main != nil, "main")
	if p.Main != nil {
		need(p.Main.Temp != nil, "main.temp")
		need(p.Main.FeelsLike != nil, "main.feels_like")
		need(p.Main.Humidity != nil, "main.humidity")
		need(p.Main.Pressure != nil, "main.pressure")
	}

	need(p.Wind != nil, "wind")
	if p.Wind != nil {
		need(p.Wind.Speed != nil, "wind.speed")
	}

	need(len(p.Weather) > 0, "weather")
	if len(p.Weather) > 0 {
		need(p.Weather[0].Description != nil, "weather[0].description")
		need(p.Weather[0].Main != nil, "weather[0].main")
		need(p.Weather[0].Icon != nil, "weather[0].icon")
	}

	return missing
}

// RedactKey keeps the first 8 and last 4 characters of a credential for logs.
func RedactKey(key string) string {
	if len(key) <= 12 {
		return "SHORT_KEY"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// roundTo rounds half away from zero on the binary value. Temperatures and
// the compass use half-to-even instead; keep them separate.
func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
