package service

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingInput means the request carried no image file.
	ErrMissingInput = errors.New("No image uploaded")
	// ErrModelUnavailable means neither the requested nor the default
	// weight file exists.
	ErrModelUnavailable = errors.New("Model not found")
)

// DecodeError reports image bytes that are not a decodable raster.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to decode image: %v", e.Cause)
	}
	return "failed to decode image"
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// RuntimeError reports a failure while loading or running a model.
type RuntimeError struct {
	FileID string
	Cause  error
}

func (e *RuntimeError) Error() string {
	return e.Cause.Error()
}

func (e *RuntimeError) Unwrap() error { return e.Cause }
