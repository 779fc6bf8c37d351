package service

import (
	"strconv"

	"github.com/usmansafdarmirza/OncoDetectAI/inference"
	"github.com/usmansafdarmirza/OncoDetectAI/model"
)

// Normalize converts a runtime result into wire detections for an image
// of width x height pixels. Detections keep the runtime's order.
//
// A result without masks yields no detections at all, even when boxes are
// present: outlines drive the loop.
func Normalize(res *inference.Result, width, height int, names map[int]string) []model.Detection {
	detections := make([]model.Detection, 0)
	if res == nil || res.Masks == nil {
		return detections
	}

	w, h := float64(width), float64(height)
	for i, box := range res.Boxes {
		if i >= len(res.Masks.XY) {
			break
		}
		outline := res.Masks.XY[i]

		segments := make([][2]float64, 0, len(outline))
		for _, pt := range outline {
			segments = append(segments, [2]float64{Round2(pt[0] / w * 100), Round2(pt[1] / h * 100)})
		}

		bbox := make([]float64, 4)
		for k, v := range box.XYXY {
			bbox[k] = Round2(v)
		}

		detections = append(detections, model.Detection{
			BBox:     bbox,
			Conf:     Round2(box.Conf * 100),
			Class:    box.Class,
			Name:     className(names, box.Class),
			Segments: segments,
		})
	}
	return detections
}

func className(names map[int]string, class int) string {
	if name, ok := names[class]; ok {
		return name
	}
	return strconv.Itoa(class)
}

// Round2 rounds v to two decimals, correctly rounded from the exact binary
// value with ties to even.
func Round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}
