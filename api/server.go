// Package api serves the storefront and admin HTTP surface: the mirrored
// video list, the sync trigger, link-tree CRUD, metrics and health.
package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"storefeed/internal/metrics"
	"storefeed/linktree"
	"storefeed/storage"
	"storefeed/youtube"
)

// Syncer runs and reports on the video sync. *youtube.SyncManager implements it.
type Syncer interface {
	Run(ctx context.Context, limits youtube.Limits) (*youtube.SyncResult, error)
	Status(ctx context.Context) (*storage.SyncState, error)
}

// Config wires the server.
type Config struct {
	Videos storage.VideoStore
	Links  *linktree.Service
	// Sync is nil when no YouTube credentials are configured; the trigger
	// then answers 503.
	Sync   Syncer
	Limits youtube.Limits

	CORSOrigins []string
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// New builds the fiber app with every route registered.
func New(cfg Config) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "storefeed",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})
	app.Use(requestLogger(logger))

	h := &handler{
		videos: cfg.Videos,
		links:  cfg.Links,
		sync:   cfg.Sync,
		limits: cfg.Limits,
		logger: logger,
	}

	var storefront []fiber.Handler
	if len(cfg.CORSOrigins) > 0 {
		storefront = append(storefront, cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
			AllowMethods: "GET,POST,DELETE,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept",
		}))
	}

	yt := app.Group("/youtube", storefront...)
	yt.Get("/", h.listVideos)
	yt.Post("/", h.triggerSync)
	yt.Get("/status", h.syncStatus)

	lt := app.Group("/linktree", storefront...)
	lt.Get("/linkrow", h.listLinkRows)
	lt.Post("/linkrow", h.createLinkRow)
	lt.Delete("/linkrow/:id", h.deleteLinkRow)
	lt.Post("/update", h.updateLinkRow)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}

// errorHandler renders every error as {"error": msg}.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		msg := err.Error()
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
			msg = utils.StatusMessage(code)
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)))
		return err
	}
}
