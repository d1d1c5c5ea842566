package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"podshorts/internal/config"
	"podshorts/internal/metrics"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

// NewServer wires the routes. rdb may be nil, in which case rate limiting
// is kept in-process and the deep health check reports redis as disabled.
func NewServer(cfg *config.Config, deps Deps, rdb *redis.Client, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimitMB << 20,
		DisableStartupMessage: true,
	})

	// Inject config and collaborators into context for handlers
	app.Use(injectDeps(cfg, deps))

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)
		if logger != nil {
			c.Locals("logger", logger.With("request_id", reqID))
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := routePath(c)

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		// Deep health: check DB and Redis connectivity.
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "disabled"
		if deps.Ledger != nil {
			dbStatus = "ok"
			if err := deps.Ledger.Ping(ctx); err != nil {
				dbStatus = "error"
			}
		}

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		if dbStatus == "error" || redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	uploadLimit := rateLimitMiddleware("uploads", cfg.RateLimit.UploadsPerMinute, rdb, logger)

	api := app.Group("/api")
	registerAPIRoutes(api, uploadLimit)

	return &Server{
		app:    app,
		config: cfg,
		logger: logger,
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerAPIRoutes(group fiber.Router, uploadLimit fiber.Handler) {
	group.Post("/upload-youtube", uploadLimit, uploadYouTubeHandler)
	group.All("/upload", uploadLimit, uploadFileHandler)

	group.Post("/shorts", createShortsHandler)
	group.Get("/shorts/status/:id", shortsKind.statusHandler())
	group.Get("/shorts/status/:id/events", shortsKind.eventsHandler())
	group.Get("/shorts/results/:id", shortsKind.resultsHandler())
	group.Get("/shorts/user/:username", shortsKind.userHandler())

	group.Get("/dubbing/options", dubbingOptionsHandler)
	group.Post("/dubbing", createDubbingHandler)
	group.Get("/dubbing/status/:id", dubbingKind.statusHandler())
	group.Get("/dubbing/status/:id/events", dubbingKind.eventsHandler())
	group.Get("/dubbing/results/:id", dubbingKind.resultsHandler())
	group.Get("/dubbing/user/:username", dubbingKind.userHandler())

	group.Post("/instagram/upload", instagramUploadHandler)

	group.Get("/uploads/user/:username", uploadsHistoryHandler)
}

// routePath is the matched route pattern, which keeps metric label
// cardinality bounded by the route table rather than by job ids.
func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return c.Path()
}
