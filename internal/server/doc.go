// Package server hosts the Fiber HTTP service that fronts the image cache. It
// attaches request-ID and recover middlewares, serves the recipe list and
// cached images, and exposes operational endpoints under /-/ for memory
// pressure, manual cache clears, health and Prometheus metrics. Dependencies
// are injected through AppOptions so tests can swap in fakes.
package server
