package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/usmansafdarmirza/OncoDetectAI/model"
	"github.com/usmansafdarmirza/OncoDetectAI/service"
	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

type AnalyzeHandler struct {
	registry *service.Registry
	models   *service.ModelCache
	invoker  *service.Invoker
	results  *service.ResultCache
}

func NewAnalyzeHandler(registry *service.Registry, models *service.ModelCache, invoker *service.Invoker, results *service.ResultCache) *AnalyzeHandler {
	return &AnalyzeHandler{
		registry: registry,
		models:   models,
		invoker:  invoker,
		results:  results,
	}
}

// Analyze runs segmentation over the uploaded image with the requested model.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			utils.Logger.Error("analyze panicked", zap.Any("panic", r), zap.Stack("stack"))
			h.fail(c, fmt.Errorf("%v", r))
		}
	}()

	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Warn("no image in request", zap.Error(err))
		h.fail(c, service.ErrMissingInput)
		return
	}

	device := c.DefaultPostForm("device", "cpu")
	alias := c.DefaultPostForm("model_type", h.registry.DefaultAlias())

	lookup, err := h.models.Get(h.registry.Resolve(alias))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !lookup.Found {
		utils.Logger.Error("no weight file available", zap.String("model", alias))
		h.fail(c, service.ErrModelUnavailable)
		return
	}

	data, err := readUpload(file)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	cacheKey := h.results.Key(utils.BytesMD5(data), lookup.FileID, device)
	cached, err := h.results.Get(ctx, cacheKey)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}
	if cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
		cached.ModelUsed = alias
		c.JSON(http.StatusOK, cached)
		return
	}

	img, err := h.invoker.Decode(data)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer img.Close()

	res, speed, err := h.invoker.Infer(ctx, lookup.Model, lookup.FileID, img, device)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := &model.AnalyzeResponse{
		Status:         model.StatusSuccess,
		Detections:     service.Normalize(res, img.Cols(), img.Rows(), lookup.Model.Names()),
		InferenceSpeed: service.Round2(speed),
		ModelUsed:      alias,
	}

	utils.Logger.Info("image analyzed",
		zap.String("model", alias),
		zap.String("file", lookup.FileID),
		zap.String("device", device),
		zap.Int("detections", len(resp.Detections)),
		zap.Float64("inference_ms", resp.InferenceSpeed))

	if err := h.results.Set(ctx, cacheKey, resp); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, resp)
}

// fail writes the error envelope for err. Only a missing upload gets the
// 400 shape; everything else is a 500 carrying the error text.
func (h *AnalyzeHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrMissingInput) {
		c.JSON(http.StatusBadRequest, model.MissingInputResponse{Error: err.Error()})
		return
	}

	var derr *service.DecodeError
	var rerr *service.RuntimeError
	switch {
	case errors.As(err, &derr):
		utils.Logger.Warn("undecodable upload", zap.Error(err))
	case errors.As(err, &rerr):
		utils.Logger.Error("model runtime failure", zap.String("file", rerr.FileID), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Status:  model.StatusError,
		Message: err.Error(),
	})
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	return data, nil
}
