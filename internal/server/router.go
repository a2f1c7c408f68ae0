package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recipe-hub/recipe-hub/internal/cache"
	"github.com/recipe-hub/recipe-hub/internal/metrics"
	"github.com/recipe-hub/recipe-hub/internal/recipe"
)

// ImageFetcher resolves an image URL to bytes; fetcher.Fetcher satisfies it.
type ImageFetcher interface {
	Resolve(ctx context.Context, rawURL string) ([]byte, error)
}

// PressureNotifier fires a memory-pressure event; pressure.Broadcaster satisfies it.
type PressureNotifier interface {
	Notify() int
}

// AppOptions collects the dependencies of the HTTP surface.
type AppOptions struct {
	Logger   *logrus.Logger
	Fetcher  ImageFetcher
	Recipes  recipe.Service
	Store    cache.Store
	Pressure PressureNotifier
	Metrics  *metrics.Metrics
}

const contextKeyRequestID = "_recipehub_request_id"

// NewApp builds a Fiber application with request-ID middleware and the
// recipe/image/diagnostics routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("image fetcher is required")
	}
	if opts.Recipes == nil {
		return nil, errors.New("recipe service is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Pressure == nil {
		return nil, errors.New("pressure notifier is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &handlers{
		logger:   opts.Logger,
		fetcher:  opts.Fetcher,
		recipes:  opts.Recipes,
		store:    opts.Store,
		pressure: opts.Pressure,
		metrics:  opts.Metrics,
	}

	app.Get("/recipes", h.listRecipes)
	app.Get("/images", h.image)

	app.Post("/-/memory-pressure", h.memoryPressure)
	app.Delete("/-/cache", h.clearCache)
	app.Get("/-/healthz", h.health)
	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
