package inference

import (
	"image"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// maskProcessor turns prototype masks and per-detection coefficients into
// outline polygons.
type maskProcessor struct {
	numMasks int
	protoW   int
	protoH   int
}

// logits computes coeffs · protos over the prototype grid, zeroed outside
// the detection box (given in model input space).
func (mp *maskProcessor) logits(protos []float32, coeffs []float32, box [4]float64, inW, inH int) []float32 {
	area := mp.protoW * mp.protoH
	out := make([]float32, area)

	rx := float64(mp.protoW) / float64(inW)
	ry := float64(mp.protoH) / float64(inH)
	x1, y1 := box[0]*rx, box[1]*ry
	x2, y2 := box[2]*rx, box[3]*ry

	for y := 0; y < mp.protoH; y++ {
		fy := float64(y)
		if fy < y1 || fy >= y2 {
			continue
		}
		for x := 0; x < mp.protoW; x++ {
			fx := float64(x)
			if fx < x1 || fx >= x2 {
				continue
			}
			p := y*mp.protoW + x
			var sum float32
			for k := 0; k < mp.numMasks; k++ {
				sum += coeffs[k] * protos[k*area+p]
			}
			out[p] = sum
		}
	}
	return out
}

// binaryMask upsamples logits to the model input size and thresholds them
// at zero (sigmoid 0.5). The caller closes the returned 8-bit Mat.
func (mp *maskProcessor) binaryMask(logits []float32, inW, inH int) (gocv.Mat, error) {
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&logits[0])), len(logits)*4)
	small, err := gocv.NewMatFromBytes(mp.protoH, mp.protoW, gocv.MatTypeCV32F, raw)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to wrap mask logits")
	}
	defer small.Close()

	up := gocv.NewMat()
	defer up.Close()
	gocv.Resize(small, &up, image.Point{X: inW, Y: inH}, 0, 0, gocv.InterpolationLinear)
	runtime.KeepAlive(logits)

	gocv.Threshold(up, &up, 0, 255, gocv.ThresholdBinary)

	mask := gocv.NewMat()
	up.ConvertTo(&mask, gocv.MatTypeCV8U)
	return mask, nil
}

// largestOutline returns the external contour with the most vertices, the
// way multi-part masks are reduced to a single polygon.
func (mp *maskProcessor) largestOutline(mask gocv.Mat) []image.Point {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return nil
	}

	maxLen, maxIndex := -1, 0
	for i := 0; i < contours.Size(); i++ {
		if n := contours.At(i).Size(); n > maxLen {
			maxLen, maxIndex = n, i
		}
	}
	return contours.At(maxIndex).ToPoints()
}

// polygon computes the source-space outline for one detection.
func (mp *maskProcessor) polygon(protos []float32, c candidate, g letterboxGeometry) ([][2]float64, error) {
	logits := mp.logits(protos, c.coeffs, c.box, g.dstW, g.dstH)
	mask, err := mp.binaryMask(logits, g.dstW, g.dstH)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	points := mp.largestOutline(mask)
	poly := make([][2]float64, 0, len(points))
	for _, p := range points {
		x, y := g.toSource(float64(p.X), float64(p.Y))
		poly = append(poly, [2]float64{float64(float32(x)), float64(float32(y))})
	}
	return poly, nil
}
