package api

import (
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/leeaandrob/coloredlog"
	"github.com/leeaandrob/coloredlog/internal/api/middleware"
	"github.com/leeaandrob/coloredlog/internal/config"
	"github.com/leeaandrob/coloredlog/internal/observability"
)

// RegisterRoutes installs middleware and routes on app and returns the
// request logger it mounted.
func RegisterRoutes(app *fiber.App, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*coloredlog.RequestLogger, error) {
	// Add OpenTelemetry middleware
	app.Use(otelfiber.Middleware(
		otelfiber.WithServerName(cfg.Server.ServiceName),
	))

	app.Use(middleware.RequestID(logger))
	app.Use(middleware.InFlight(metrics))

	requestLogger, err := coloredlog.New(app, requestLoggerConfig(cfg, logger, metrics))
	if err != nil {
		return nil, err
	}

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/livez",
		ReadinessEndpoint: "/readyz",
	}))

	// Prometheus metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())(c.Context())
		return nil
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		middleware.GetLogger(c, logger).Debug("status requested")
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": cfg.Server.ServiceName,
		})
	})

	return requestLogger, nil
}

// requestLoggerConfig sends request lines to the host logger in color, or to
// the service logger uncolored when it emits JSON.
func requestLoggerConfig(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) coloredlog.Config {
	rc := coloredlog.Config{
		Exclusions:    cfg.Requests.Exclusions,
		NoLogIP:       cfg.Requests.NoLogIP,
		DisableColors: cfg.Requests.DisableColors,
	}
	if metrics != nil {
		rc.Metrics = metrics
	}
	if cfg.Log.Format == "json" {
		rc.Logger = logger
		rc.DisableColors = true
	}
	return rc
}
