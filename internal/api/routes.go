package api

import (
	"errors"
	"time"

	"github.com/bobby-s-dev/weather-lookup/internal/config"
	"github.com/bobby-s-dev/weather-lookup/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

// NewApp builds the Fiber app with the error handler and all routes.
func NewApp(cfg *config.Config, handler *Handler, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Weather Lookup",
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          ErrorHandler(log),
		DisableStartupMessage: true,
	})

	SetupRoutes(app, handler)

	return app
}

func SetupRoutes(app *fiber.App, handler *Handler) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,OPTIONS",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} ${pid} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	app.Get("/", handler.Index)
	app.Post("/weather", handler.GetWeather)
	app.Get("/test-api", handler.TestAPI)
	app.Get("/health", handler.GetHealth)

	// Known paths with the wrong method
	app.All("/", MethodNotAllowed("GET, HEAD"))
	app.All("/weather", MethodNotAllowed("POST"))
	app.All("/test-api", MethodNotAllowed("GET, HEAD"))
	app.All("/health", MethodNotAllowed("GET, HEAD"))

	// 404 handler
	app.Use(handler.NotFound)
}

// MethodNotAllowed rejects a request to a known path with the Allow header set.
func MethodNotAllowed(allow string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAllow, allow)
		return fiber.ErrMethodNotAllowed
	}
}

// ErrorHandler turns unhandled faults into the JSON error envelope. Unknown
// routes get the landing page with a 404 instead.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			if code < fiber.StatusInternalServerError {
				message = fiberErr.Message
			}
		}

		if code == fiber.StatusNotFound {
			return renderIndex(c, code)
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		} else {
			log.Warn("HTTP request rejected",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		return c.Status(code).JSON(models.LookupResponse{
			Success: false,
			Error:   message,
		})
	}
}
