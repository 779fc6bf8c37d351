// Package inference runs segmentation models over decoded images.
//
// A Runtime turns a weight file into a Model. A Model predicts on a BGR
// gocv.Mat and reports boxes, per-detection outline polygons and timing in
// the original image's pixel space. Callers never see tensors.
package inference

import (
	"context"

	"gocv.io/x/gocv"
)

// Box is one detection in original image pixels.
type Box struct {
	XYXY  [4]float64
	Conf  float64
	Class int
}

// Masks holds one outline per Box, index aligned. A polygon may be empty
// when the mask had no foreground after cropping.
type Masks struct {
	XY [][][2]float64
}

// Speed is per-stage latency in milliseconds.
type Speed struct {
	Preprocess  float64
	Inference   float64
	Postprocess float64
}

// Result is the output of a single Predict call.
type Result struct {
	Boxes []Box
	// Masks is nil when the model produced no masks for this image.
	Masks  *Masks
	Speed  Speed
	Width  int
	Height int
}

// Model is a loaded, ready-to-run set of weights.
type Model interface {
	// Names maps class ids to human readable labels.
	Names() map[int]string
	// Predict runs a single inference. device selects the execution
	// provider; detections scoring at or below conf are discarded.
	Predict(ctx context.Context, img gocv.Mat, device string, conf float32) (*Result, error)
	Close() error
}

// Runtime loads models from weight files.
type Runtime interface {
	Load(path string) (Model, error)
}
