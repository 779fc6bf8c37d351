package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/usmansafdarmirza/OncoDetectAI/inference"
	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

// ConfidenceThreshold is the minimum score a detection must exceed.
const ConfidenceThreshold float32 = 0.25

// Invoker decodes uploads and runs a single inference per request.
type Invoker struct {
	semaphore chan struct{}
	metrics   *Metrics
}

// NewInvoker caps concurrent inferences at maxConcurrent; zero or less
// means no cap.
func NewInvoker(maxConcurrent int, metrics *Metrics) *Invoker {
	inv := &Invoker{metrics: metrics}
	if maxConcurrent > 0 {
		inv.semaphore = make(chan struct{}, maxConcurrent)
	}
	return inv
}

// Decode turns uploaded bytes into a 3-channel BGR image. The caller
// closes the returned Mat.
func (i *Invoker) Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, &DecodeError{Cause: errors.New("empty image data")}
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, &DecodeError{Cause: err}
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, &DecodeError{Cause: errors.New("unsupported or corrupt image data")}
	}
	return img, nil
}

// Infer runs m once over img and returns the result with the runtime's
// inference latency in milliseconds.
func (i *Invoker) Infer(ctx context.Context, m inference.Model, fileID string, img gocv.Mat, device string) (res *inference.Result, elapsed float64, err error) {
	if i.semaphore != nil {
		select {
		case i.semaphore <- struct{}{}:
			defer func() { <-i.semaphore }()
		case <-ctx.Done():
			return nil, 0, &RuntimeError{FileID: fileID, Cause: ctx.Err()}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			res, elapsed = nil, 0
			err = &RuntimeError{FileID: fileID, Cause: fmt.Errorf("%v", r)}
		}
	}()

	res, err = m.Predict(ctx, img, device, ConfidenceThreshold)
	if err != nil {
		utils.Logger.Error("inference failed",
			zap.String("file", fileID),
			zap.String("device", device),
			zap.Error(err))
		return nil, 0, &RuntimeError{FileID: fileID, Cause: err}
	}

	i.metrics.inferred(fileID, res.Speed.Inference)
	utils.Logger.Debug("inference done",
		zap.String("file", fileID),
		zap.String("device", device),
		zap.Int("boxes", len(res.Boxes)),
		zap.Float64("preprocess_ms", res.Speed.Preprocess),
		zap.Float64("inference_ms", res.Speed.Inference),
		zap.Float64("postprocess_ms", res.Speed.Postprocess))

	return res, res.Speed.Inference, nil
}
