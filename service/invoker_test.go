package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gocv.io/x/gocv"

	"github.com/usmansafdarmirza/OncoDetectAI/inference"
	"github.com/usmansafdarmirza/OncoDetectAI/testutils/inject"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.Set(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, img), test.ShouldBeNil)
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	inv := NewInvoker(0, nil)

	img, err := inv.Decode(pngBytes(t, 12, 7))
	test.That(t, err, test.ShouldBeNil)
	defer img.Close()
	test.That(t, img.Cols(), test.ShouldEqual, 12)
	test.That(t, img.Rows(), test.ShouldEqual, 7)
	// grayscale input still comes back as 3 channels
	test.That(t, img.Channels(), test.ShouldEqual, 3)
}

func TestDecodeFailure(t *testing.T) {
	inv := NewInvoker(0, nil)
	for _, data := range [][]byte{nil, []byte("definitely not an image"), pngBytes(t, 4, 4)[:20]} {
		_, err := inv.Decode(data)
		test.That(t, err, test.ShouldNotBeNil)
		var derr *DecodeError
		test.That(t, errors.As(err, &derr), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode image")
	}
}

func TestInfer(t *testing.T) {
	var gotDevice string
	var gotConf float32
	m := &inject.Model{PredictFunc: func(ctx context.Context, img gocv.Mat, device string, conf float32) (*inference.Result, error) {
		gotDevice, gotConf = device, conf
		return &inference.Result{Speed: inference.Speed{Inference: 12.345}}, nil
	}}
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	res, ms, err := NewInvoker(1, nil).Infer(context.Background(), m, "best.onnx", img, "0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldNotBeNil)
	test.That(t, ms, test.ShouldEqual, 12.345)
	test.That(t, gotDevice, test.ShouldEqual, "0")
	test.That(t, gotConf, test.ShouldEqual, float32(0.25))
}

func TestInferFailures(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()
	inv := NewInvoker(0, nil)

	failing := &inject.Model{PredictFunc: func(context.Context, gocv.Mat, string, float32) (*inference.Result, error) {
		return nil, errors.New("invalid device \"tpu\" requested")
	}}
	_, _, err := inv.Infer(context.Background(), failing, "best.onnx", img, "tpu")
	var rerr *RuntimeError
	test.That(t, errors.As(err, &rerr), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "invalid device \"tpu\" requested")

	panicking := &inject.Model{PredictFunc: func(context.Context, gocv.Mat, string, float32) (*inference.Result, error) {
		panic("out of memory")
	}}
	_, _, err = inv.Infer(context.Background(), panicking, "best.onnx", img, "cpu")
	test.That(t, errors.As(err, &rerr), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "out of memory")
}

func TestInferWaitsForSlot(t *testing.T) {
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()
	inv := NewInvoker(1, nil)
	inv.semaphore <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := inv.Infer(ctx, &inject.Model{}, "best.onnx", img, "cpu")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
