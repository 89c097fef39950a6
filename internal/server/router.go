// Package server exposes the casebook service as a JSON API for a local
// browser front end.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	HealthHandler   *HealthHandler
	TestCaseHandler *TestCaseHandler

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api")
	if h := cfg.TestCaseHandler; h != nil {
		api.GET("/testcases", h.List)
		api.POST("/testcases", h.Create)
		api.DELETE("/testcases", h.Clear)
		api.GET("/testcases/:id", h.Get)
		api.PUT("/testcases/:id", h.Replace)
		api.DELETE("/testcases/:id", h.Delete)

		api.POST("/import", h.Import)
		api.GET("/export", h.Export)
		api.GET("/facets", h.Facets)
	}

	return r
}
