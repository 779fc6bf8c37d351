package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usmansafdarmirza/OncoDetectAI/model"
	"github.com/usmansafdarmirza/OncoDetectAI/service"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	BuildID   string `json:"build_id"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

type StatusHandler struct {
	build    BuildInfo
	registry *service.Registry
	models   *service.ModelCache
}

func NewStatusHandler(build BuildInfo, registry *service.Registry, models *service.ModelCache) *StatusHandler {
	return &StatusHandler{build: build, registry: registry, models: models}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.build.Version,
	})
}

func (h *StatusHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.build)
}

// Models lists every alias with its weight file and whether that file is
// on disk and already loaded.
func (h *StatusHandler) Models(c *gin.Context) {
	aliases := h.registry.Aliases()
	infos := make([]model.ModelInfo, 0, len(aliases))
	for _, alias := range aliases {
		file := h.registry.Resolve(alias)
		infos = append(infos, model.ModelInfo{
			Alias:   alias,
			File:    file,
			Default: alias == h.registry.DefaultAlias(),
			Present: h.models.Present(file),
			Loaded:  h.models.Loaded(file),
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": infos})
}
