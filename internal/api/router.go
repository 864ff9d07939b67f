package api

import (
	"time"

	_ "ghg-data-pipeline/docs"
	"ghg-data-pipeline/internal/api/handler"
	"ghg-data-pipeline/internal/metrics"
	"ghg-data-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.PipelineHandler, m *metrics.Collector) {
	r.POST("/api/v1/pipelines/run", h.RunPipeline)
	r.POST("/api/v1/pipelines/validate", h.ValidateTable)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/output", h.GetRunOutput)
	// Generic run route last
	r.GET("/api/v1/runs/*", h.GetRun)
	r.GET("/api/v1/health", h.Health)

	r.Mount("/swagger/", httpSwagger.WrapHandler)
	if m != nil {
		r.Mount("/metrics", m.Handler())
		r.OnRequest(func(route, method string, status int, _ time.Duration) {
			m.RecordRequest(route, method, status)
		})
	}
}
