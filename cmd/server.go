package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/config"
	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML configuration file")
	flag.Parse()

	// 1. Configuration and logger
	cfg, err := config.Load(*configPath)
	if err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}
	logx.SetDefaultLogger(logx.NewLogger(cfg.Log.LoggerConfig()))

	logx.Info("🚀 Starting Facility Directory API...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Dependency container
	container, err := NewContainer(ctx, cfg)
	if err != nil {
		logx.Fatalf("Failed to initialize: %v", err)
	}
	defer container.Cleanup()

	// 3. HTTP server
	app := newApp(container)

	// 4. Background services
	container.StartBackgroundServices(ctx)

	// 5. Serve until signalled
	startServer(ctx, app, cfg.Server)
}

func newApp(container *Container) *fiber.App {
	cfg := container.Config.Server

	app := fiber.New(fiber.Config{
		AppName:               "Facility Directory API",
		DisableStartupMessage: true,
		ErrorHandler:          errx.FiberErrorHandler(cfg.Debug),
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Refresh-Token",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: cfg.CORSOrigins != "*",
		ExposeHeaders:    "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	app.Use(requestContext(cfg.RequestTimeout))

	app.Get("/health", healthCheckHandler(container))

	container.IAM.RegisterRoutes(app)
	logx.Info("✓ Onboarding, invitation and session routes registered")

	app.Use(notFoundHandler)
	return app
}

// requestContext bounds every request with timeout and tags its context
// with the request id so service logs can be correlated.
func requestContext(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := logx.ContextWithFields(c.UserContext(), logx.Fields{
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
		})
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "facilitydir",
		}

		for name, err := range container.Ping(c.UserContext()) {
			if err != nil {
				health[name] = "unhealthy"
				health[name+"_error"] = err.Error()
				health["status"] = "degraded"
			} else {
				health[name] = "healthy"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}

// startServer listens until ctx is cancelled, then drains in-flight requests.
func startServer(ctx context.Context, app *fiber.App, cfg config.ServerConfig) {
	addr := ":" + strings.TrimPrefix(cfg.Port, ":")

	go func() {
		logx.Info(strings.Repeat("=", 60))
		logx.Infof("🚀 Server listening on %s", addr)
		logx.Infof("💚 Health Check: http://localhost%s/health", addr)
		logx.Info(strings.Repeat("=", 60))

		if err := app.Listen(addr); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logx.Info("🛑 Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
