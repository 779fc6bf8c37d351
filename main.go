package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/usmansafdarmirza/OncoDetectAI/config"
	"github.com/usmansafdarmirza/OncoDetectAI/handler"
	"github.com/usmansafdarmirza/OncoDetectAI/inference"
	"github.com/usmansafdarmirza/OncoDetectAI/service"
	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, cfgErr := config.New(*configPath)

	if err := utils.InitLogger(cfg.Server.Mode, cfg.Log); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	if cfgErr != nil {
		utils.Logger.Warn("config file not loaded, using defaults",
			zap.String("path", *configPath), zap.Error(cfgErr))
	}

	utils.Logger.Info("starting OncoDetectAI server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))
	utils.Logger.Info("resolved paths",
		zap.String("base", config.BasePath()),
		zap.String("models", cfg.Models.Dir),
		zap.String("frontend", cfg.Frontend.Dir))

	rt, err := inference.NewONNXRuntime(cfg.Inference)
	if err != nil {
		utils.Logger.Fatal("failed to initialize onnxruntime", zap.Error(err))
	}
	defer rt.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(reg)

	registry := service.NewRegistry(cfg.Models.DefaultAlias)
	models := service.NewModelCache(afero.NewOsFs(), cfg.Models.Dir, rt, registry.DefaultFile(), metrics)
	defer func() {
		if err := models.Close(); err != nil {
			utils.Logger.Warn("failed to release models", zap.Error(err))
		}
	}()

	// optional response cache
	results := service.NewResultCache(&cfg.Cache)
	if results.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := results.Ping(ctx); err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Cache.Addr))
		}
		cancel()
	}
	defer results.Close()

	router := handler.NewRouter(handler.Deps{
		Config: cfg,
		Build: handler.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			BuildID:   BuildID,
			GitCommit: GitCommit,
			GitBranch: GitBranch,
		},
		Registry: registry,
		Models:   models,
		Invoker:  service.NewInvoker(cfg.Inference.MaxConcurrent, metrics),
		Results:  results,
		Metrics:  metrics,
		Gatherer: reg,
		Files:    afero.NewOsFs(),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Error("server stopped", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	utils.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
