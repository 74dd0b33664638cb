// Package api exposes the forecasting pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/core/pipeline"
	"github.com/YDUTSEVOLDN/Subway/core/runlog"
	"github.com/YDUTSEVOLDN/Subway/infra/metrics"
)

// Forecaster runs forecast batches. *pipeline.Pipeline satisfies it.
type Forecaster interface {
	RunBatch(ctx context.Context, start, end model.Date, stations []string) ([]model.PredictionResult, error)
	RunAndStore(ctx context.Context, start, end model.Date, stations []string) (pipeline.Report, error)
	PredictOne(ctx context.Context, rec model.HistoricalRecord) (model.PredictionResult, error)
}

// Deps are the collaborators served by the router. Only Forecaster is
// required; routes backed by a nil dependency answer 501.
type Deps struct {
	Forecaster  Forecaster
	Catalog     pipeline.Catalog
	Predictions pipeline.PredictionStore
	Runs        runlog.Store
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Log         logger.Logger
}

// NewRouter builds the gin engine with every API route mounted.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(logger.OrNop(d.Log)), corsMiddleware(d.CORSOrigins))

	h := &handler{deps: d, log: logger.OrNop(d.Log)}
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))

	g := r.Group("/api")
	g.POST("/predict", h.predict)
	g.POST("/predict/single", h.predictSingle)
	g.GET("/predictions", h.predictions)
	g.GET("/stations", h.stations)
	g.GET("/summary", h.summary)
	g.GET("/data/raw", h.rawRecords)
	g.GET("/runs", h.runs)
	return r
}

type handler struct {
	deps Deps
	log  logger.Logger
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func requestLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("http request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
