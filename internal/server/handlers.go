package server

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/recipe-hub/recipe-hub/internal/cache"
	"github.com/recipe-hub/recipe-hub/internal/fetcher"
	"github.com/recipe-hub/recipe-hub/internal/metrics"
	"github.com/recipe-hub/recipe-hub/internal/recipe"
)

type handlers struct {
	logger   *logrus.Logger
	fetcher  ImageFetcher
	recipes  recipe.Service
	store    cache.Store
	pressure PressureNotifier
	metrics  *metrics.Metrics
}

func (h *handlers) listRecipes(c fiber.Ctx) error {
	started := time.Now()
	recipes, err := h.recipes.GetRecipes(requestContext(c))
	fields := logrus.Fields{
		"action":     "recipes",
		"request_id": RequestID(c),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		fields["error_kind"] = recipe.Kind(err)
		h.logger.WithFields(fields).WithError(err).Warn("recipes_failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": recipe.Kind(err),
		})
	}
	if recipes == nil {
		recipes = []recipe.Recipe{}
	}
	fields["count"] = len(recipes)
	h.logger.WithFields(fields).Info("recipes_complete")
	return c.JSON(recipe.Response{Recipes: recipes})
}

// image 返回缓存或回源得到的图片；任何失败都渲染为占位语义的 404。
func (h *handlers) image(c fiber.Ctx) error {
	raw := c.Query("url")
	blob, err := h.fetcher.Resolve(requestContext(c), raw)
	if err != nil {
		c.Set("X-Recipe-Hub-Outcome", fetcher.OutcomeOf(err))
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "image_unavailable",
		})
	}

	c.Set(fiber.HeaderContentType, http.DetectContentType(blob))
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Status(fiber.StatusOK).Send(blob)
}

func (h *handlers) memoryPressure(c fiber.Ctx) error {
	notified := h.pressure.Notify()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"subscribers": notified,
	})
}

func (h *handlers) clearCache(c fiber.Ctx) error {
	result, err := h.store.Clear(requestContext(c))
	h.metrics.ObserveClear(cache.ReasonManual, result, err)

	fields := logrus.Fields{
		"action":     "cache_clear",
		"reason":     cache.ReasonManual,
		"request_id": RequestID(c),
		"removed":    result.Removed,
		"failed":     result.Failed,
	}
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("cache_clear_partial")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "cache_clear_partial",
			"removed": result.Removed,
			"failed":  result.Failed,
		})
	}
	h.logger.WithFields(fields).Info("cache_clear_complete")
	return c.JSON(fiber.Map{"removed": result.Removed})
}

func (h *handlers) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"cache_dir": h.store.Dir(),
	})
}
