package api

import (
	"errors"
	"time"

	"github.com/bobby-s-dev/weather-lookup/internal/models"
	"github.com/bobby-s-dev/weather-lookup/internal/scheduler"
	"github.com/bobby-s-dev/weather-lookup/internal/services"
	"github.com/bobby-s-dev/weather-lookup/web"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler struct {
	weather        *services.WeatherService
	prober         *scheduler.Prober
	diagnosticCity string
	logger         *zap.Logger
}

type weatherRequest struct {
	City string `json:"city"`
}

// NewHandler wires the HTTP handlers. prober may be nil.
func NewHandler(weather *services.WeatherService, prober *scheduler.Prober, diagnosticCity string, logger *zap.Logger) *Handler {
	return &Handler{
		weather:        weather,
		prober:         prober,
		diagnosticCity: diagnosticCity,
		logger:         logger,
	}
}

// Index handles GET /
func (h *Handler) Index(c *fiber.Ctx) error {
	return renderIndex(c, fiber.StatusOK)
}

// GetWeather handles POST /weather
func (h *Handler) GetWeather(c *fiber.Ctx) error {
	var req weatherRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warn("Invalid weather request body", zap.Error(err))
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	resp := h.lookup(c, req.City)
	if resp.Success {
		resp.Data.WindDirectionText = services.WindDirection(resp.Data.WindDirection)
	}

	return c.JSON(resp)
}

// TestAPI handles GET /test-api
func (h *Handler) TestAPI(c *fiber.Ctx) error {
	body := fiber.Map{
		"api_key_set":    h.weather.APIKeySet(),
		"api_key_length": h.weather.APIKeyLength(),
		"test_result":    h.lookup(c, h.diagnosticCity),
	}

	if h.prober != nil {
		if status, ok := h.prober.Status(); ok {
			body["last_probe"] = status
		}
	}

	return c.JSON(body)
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
	})
}

// NotFound serves the landing page for unknown routes.
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return renderIndex(c, fiber.StatusNotFound)
}

// lookup runs a lookup and folds any failure into the in-band envelope.
func (h *Handler) lookup(c *fiber.Ctx, city string) models.LookupResponse {
	result, err := h.weather.Lookup(c.UserContext(), city)
	if err == nil {
		return models.LookupResponse{Success: true, Data: result}
	}

	var lookupErr *services.LookupError
	if errors.As(err, &lookupErr) {
		h.logger.Info("Weather lookup unsuccessful",
			zap.String("city", city),
			zap.Stringer("kind", lookupErr.Kind))
		return models.LookupResponse{Success: false, Error: lookupErr.Message}
	}

	h.logger.Error("Unexpected lookup failure", zap.String("city", city), zap.Error(err))
	return models.LookupResponse{Success: false, Error: "Unexpected error: " + err.Error()}
}

func renderIndex(c *fiber.Ctx, status int) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(web.IndexHTML)
}
