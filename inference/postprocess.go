package inference

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

const (
	iouThreshold = 0.7
	maxDetection = 300
	maxNMSBoxes  = 30000
)

// candidate is a detection in model input space, before scaling back.
type candidate struct {
	box    [4]float64 // x1, y1, x2, y2
	score  float64
	class  int
	coeffs []float32
}

// headLayout describes the detection head tensor [1, 4+nc+nm, n].
type headLayout struct {
	numClasses int
	numMasks   int
	numAnchors int
}

// decodeHead reads every anchor whose best class score exceeds conf.
// The output tensor is channel-major: channel c of anchor j lives at
// c*numAnchors + j.
func decodeHead(data []float32, l headLayout, conf float32) ([]candidate, error) {
	n := l.numAnchors
	want := (4 + l.numClasses + l.numMasks) * n
	if len(data) != want {
		return nil, errors.Errorf("unexpected detection head length: got %d, want %d", len(data), want)
	}

	var out []candidate
	for j := 0; j < n; j++ {
		best, bestScore := 0, float32(-1)
		for c := 0; c < l.numClasses; c++ {
			if s := data[(4+c)*n+j]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if bestScore <= conf {
			continue
		}

		cx, cy := float64(data[j]), float64(data[n+j])
		w, h := float64(data[2*n+j]), float64(data[3*n+j])

		coeffs := make([]float32, l.numMasks)
		for k := 0; k < l.numMasks; k++ {
			coeffs[k] = data[(4+l.numClasses+k)*n+j]
		}

		out = append(out, candidate{
			box:    [4]float64{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
			score:  float64(bestScore),
			class:  best,
			coeffs: coeffs,
		})
	}
	return out, nil
}

// nonMaxSuppression keeps the highest scoring boxes, suppressing
// same-class boxes overlapping a kept one by more than iou. The result is
// ordered by descending score.
func nonMaxSuppression(cands []candidate, iou float64, limit int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})
	if len(cands) > maxNMSBoxes {
		cands = cands[:maxNMSBoxes]
	}

	kept := make([]candidate, 0, min(len(cands), limit))
	for _, c := range cands {
		suppressed := false
		for _, k := range kept {
			if k.class == c.class && boxIoU(k.box, c.box) > iou {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, c)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

func boxIoU(a, b [4]float64) float64 {
	ix1, iy1 := math.Max(a[0], b[0]), math.Max(a[1], b[1])
	ix2, iy2 := math.Min(a[2], b[2]), math.Min(a[3], b[3])
	inter := math.Max(0, ix2-ix1) * math.Max(0, iy2-iy1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// scaleBox maps a box from model input space to clipped source pixels.
func (g letterboxGeometry) scaleBox(b [4]float64) [4]float64 {
	x1, y1 := g.toSource(b[0], b[1])
	x2, y2 := g.toSource(b[2], b[3])
	return [4]float64{x1, y1, x2, y2}
}
