package inference

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// letterboxGeometry describes how an image of srcW x srcH is fitted into
// the model input: scaled by gain, then padded.
type letterboxGeometry struct {
	srcW, srcH               int
	dstW, dstH               int
	newW, newH               int
	top, bottom, left, right int
	gain                     float64
}

func newLetterboxGeometry(srcW, srcH, dstW, dstH int) letterboxGeometry {
	gain := math.Min(float64(dstH)/float64(srcH), float64(dstW)/float64(srcW))
	newW := int(math.Round(float64(srcW) * gain))
	newH := int(math.Round(float64(srcH) * gain))
	dw := float64(dstW-newW) / 2
	dh := float64(dstH-newH) / 2

	return letterboxGeometry{
		srcW:   srcW,
		srcH:   srcH,
		dstW:   dstW,
		dstH:   dstH,
		newW:   newW,
		newH:   newH,
		top:    int(math.Round(dh - 0.1)),
		bottom: int(math.Round(dh + 0.1)),
		left:   int(math.Round(dw - 0.1)),
		right:  int(math.Round(dw + 0.1)),
		gain:   gain,
	}
}

// toSource maps a point in model input space back to source pixels,
// clipped to the source bounds.
func (g letterboxGeometry) toSource(x, y float64) (float64, float64) {
	sx := (x - float64(g.left)) / g.gain
	sy := (y - float64(g.top)) / g.gain
	return clamp(sx, 0, float64(g.srcW)), clamp(sy, 0, float64(g.srcH))
}

// letterbox resizes img keeping its aspect ratio and pads it to the
// geometry's destination size. The caller closes the returned Mat.
func letterbox(img gocv.Mat, g letterboxGeometry) (gocv.Mat, error) {
	resized := gocv.NewMat()
	if g.newW != g.srcW || g.newH != g.srcH {
		gocv.Resize(img, &resized, image.Point{X: g.newW, Y: g.newH}, 0, 0, gocv.InterpolationLinear)
	} else {
		img.CopyTo(&resized)
	}
	defer resized.Close()

	padded := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &padded, g.top, g.bottom, g.left, g.right, gocv.BorderConstant, padColor)
	if padded.Cols() != g.dstW || padded.Rows() != g.dstH {
		padded.Close()
		return gocv.Mat{}, errors.Errorf("letterbox produced %dx%d, want %dx%d",
			padded.Cols(), padded.Rows(), g.dstW, g.dstH)
	}
	return padded, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
