package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/namsral/flag"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/leeaandrob/coloredlog/internal/api"
	"github.com/leeaandrob/coloredlog/internal/config"
	"github.com/leeaandrob/coloredlog/internal/observability"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags / environment override the file
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "server listen port")
	flag.StringVar(&cfg.Log.Level, "log_level", cfg.Log.Level, "log level")
	flag.StringVar(&cfg.Log.Format, "log_format", cfg.Log.Format, "log format (text or json)")
	flag.StringVar(&cfg.Telemetry.OTLPEndpoint, "otel_exporter_otlp_endpoint", cfg.Telemetry.OTLPEndpoint, "OTLP exporter endpoint")
	flag.StringVar(&cfg.Server.ServiceName, "service_name", cfg.Server.ServiceName, "service name")
	flag.BoolVar(&cfg.Requests.NoLogIP, "no_log_ip", cfg.Requests.NoLogIP, "omit client ip from request lines")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Initialize loggers
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	fiberlog.SetOutput(os.Stdout)
	fiberlog.SetLevel(fiberLevel(cfg.Log.Level))

	logger.Info("starting server",
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
		"log_format", cfg.Log.Format,
		"exclusions", cfg.Requests.Exclusions,
		"otlp_endpoint", cfg.Telemetry.OTLPEndpoint,
	)

	// Initialize tracing (if endpoint configured)
	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := observability.InitTracer(context.Background(), cfg.Server.ServiceName, version, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			logger.Warn("failed to initialize tracer", "error", err.Error())
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					logger.Error("failed to shutdown tracer", "error", err.Error())
				}
			}()
			logger.Info("tracer initialized", "endpoint", cfg.Telemetry.OTLPEndpoint)
		}
	}

	metrics := observability.InitMetrics()

	app := fiber.New(fiber.Config{
		AppName:               cfg.Server.ServiceName,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(recover.New())

	if _, err := api.RegisterRoutes(app, cfg, logger, metrics); err != nil {
		log.Fatalf("failed to register routes: %v", err)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			logger.Error("error during shutdown", "error", err.Error())
		}
	}()

	logger.Info("server listening", "port", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func fiberLevel(level string) fiberlog.Level {
	switch level {
	case "debug":
		return fiberlog.LevelDebug
	case "warn":
		return fiberlog.LevelWarn
	case "error":
		return fiberlog.LevelError
	default:
		return fiberlog.LevelInfo
	}
}
