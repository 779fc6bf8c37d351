package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/usmansafdarmirza/OncoDetectAI/config"
	"github.com/usmansafdarmirza/OncoDetectAI/middleware"
	"github.com/usmansafdarmirza/OncoDetectAI/service"
)

// Deps is everything the router hands to its handlers.
type Deps struct {
	Config   *config.Config
	Build    BuildInfo
	Registry *service.Registry
	Models   *service.ModelCache
	Invoker  *service.Invoker
	Results  *service.ResultCache
	Metrics  *service.Metrics
	Gatherer prometheus.Gatherer
	Files    afero.Fs
}

func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.MaxMultipartMemory = d.Config.Server.MaxUploadSize
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(middleware.CORS(d.Config.CORS.AllowOrigins))

	analyze := NewAnalyzeHandler(d.Registry, d.Models, d.Invoker, d.Results)
	status := NewStatusHandler(d.Build, d.Registry, d.Models)
	frontend := NewFrontendHandler(d.Files, d.Config.Frontend.Dir)

	r.POST("/analyze", analyze.Analyze)

	r.GET("/health", status.Health)
	r.GET("/version", status.Version)
	r.GET("/models", status.Models)
	if d.Gatherer != nil {
		r.GET("/metrics", middleware.MetricsHandler(d.Gatherer))
	}

	r.GET("/", frontend.Index)
	r.GET("/assets/*filepath", frontend.Asset)
	r.NoRoute(frontend.File)

	return r
}
