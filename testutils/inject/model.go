// Package inject provides models and runtimes whose behavior tests set
// through function fields.
package inject

import (
	"context"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/usmansafdarmirza/OncoDetectAI/inference"
)

// Model is a fake inference.Model.
type Model struct {
	NamesFunc   func() map[int]string
	PredictFunc func(ctx context.Context, img gocv.Mat, device string, conf float32) (*inference.Result, error)
	CloseFunc   func() error
	Path        string
}

// Names calls the injected Names or returns an empty table.
func (m *Model) Names() map[int]string {
	if m.NamesFunc == nil {
		return map[int]string{}
	}
	return m.NamesFunc()
}

// Predict calls the injected Predict or returns an empty result sized to img.
func (m *Model) Predict(ctx context.Context, img gocv.Mat, device string, conf float32) (*inference.Result, error) {
	if m.PredictFunc == nil {
		return &inference.Result{Width: img.Cols(), Height: img.Rows()}, nil
	}
	return m.PredictFunc(ctx, img, device, conf)
}

// Close calls the injected Close or does nothing.
func (m *Model) Close() error {
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

// Runtime is a fake inference.Runtime that counts Load calls.
type Runtime struct {
	LoadFunc func(path string) (inference.Model, error)
	loads    atomic.Int64
}

// Load calls the injected Load or returns a fresh *Model for path.
func (r *Runtime) Load(path string) (inference.Model, error) {
	r.loads.Add(1)
	if r.LoadFunc == nil {
		return &Model{Path: path}, nil
	}
	return r.LoadFunc(path)
}

// Loads is the number of Load calls so far.
func (r *Runtime) Loads() int64 {
	return r.loads.Load()
}
