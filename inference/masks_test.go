package inference

import (
	"testing"

	"go.viam.com/test"
)

func TestPolygonFromPrototypes(t *testing.T) {
	mp := &maskProcessor{numMasks: 1, protoW: 4, protoH: 4}
	protos := make([]float32, 16)
	for i := range protos {
		protos[i] = 1
	}
	g := newLetterboxGeometry(32, 32, 16, 16)
	c := candidate{box: [4]float64{4, 4, 12, 12}, coeffs: []float32{3}}

	poly, err := mp.polygon(protos, c, g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(poly), test.ShouldBeGreaterThanOrEqualTo, 4)
	for _, p := range poly {
		test.That(t, p[0], test.ShouldBeBetweenOrEqual, 0.0, 32.0)
		test.That(t, p[1], test.ShouldBeBetweenOrEqual, 0.0, 32.0)
	}
}

func TestPolygonEmptyMask(t *testing.T) {
	mp := &maskProcessor{numMasks: 1, protoW: 4, protoH: 4}
	protos := make([]float32, 16)
	g := newLetterboxGeometry(16, 16, 16, 16)
	c := candidate{box: [4]float64{0, 0, 16, 16}, coeffs: []float32{-1}}

	poly, err := mp.polygon(protos, c, g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poly, test.ShouldBeEmpty)
}
