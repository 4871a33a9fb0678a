package main

import (
	"github.com/gofiber/fiber/v2"

	"github.com/estately/priceuq/internal/middleware"
)

// registerRoutes mounts every route. Reads are public; anything that
// trains, scores or writes requires an operator token.
func registerRoutes(app *fiber.App, deps *Dependencies) {
	h := deps.Handlers

	h.Health.RegisterRoutes(app)
	h.Docs.RegisterRoutes(app)
	app.Get("/metrics", middleware.PrometheusHandler())

	v1 := app.Group("/v1")
	operator := deps.Auth.RequireOperator()
	limited := deps.RateLimit.Handler()

	runs := v1.Group("/runs")
	runs.Get("/", h.Runs.ListRuns)
	runs.Post("/", operator, h.Runs.CreateRun)
	runs.Get("/:id", h.Runs.GetRun)
	runs.Get("/:id/events", h.Events.StreamRunEvents)
	runs.Post("/:id/predict", operator, limited, h.Predictions.Predict)
	runs.Post("/:id/explain", operator, limited, h.Attributions.Explain)
	runs.Get("/:id/explain/:jobId", h.Attributions.GetJob)
	runs.Post("/:id/report/export", operator, h.Reports.Export)

	neighborhoods := v1.Group("/neighborhoods")
	neighborhoods.Get("/", h.Neighborhoods.Lookup)
	neighborhoods.Post("/", operator, h.Neighborhoods.Import)
}
