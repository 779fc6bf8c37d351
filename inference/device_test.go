package inference

import (
	"testing"

	"go.viam.com/test"
)

func TestParseDevice(t *testing.T) {
	for hint, want := range map[string]string{
		"":       "cpu",
		"cpu":    "cpu",
		" CPU ":  "cpu",
		"cuda":   "cuda:0",
		"0":      "cuda:0",
		"1":      "cuda:1",
		"cuda:2": "cuda:2",
		"0,1":    "cuda:0",
		"mps":    "coreml",
	} {
		dev, err := ParseDevice(hint)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dev.String(), test.ShouldEqual, want)
	}

	for _, bad := range []string{"tpu", "cuda:x", "-1"} {
		_, err := ParseDevice(bad)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "invalid device")
	}
}

func TestParseNames(t *testing.T) {
	names := parseNames(`{0: 'benign', 1: "men's", 2: 'gleason \'4\''}`)
	test.That(t, names, test.ShouldResemble, map[int]string{
		0: "benign",
		1: "men's",
		2: "gleason '4'",
	})

	test.That(t, parseNames(""), test.ShouldBeEmpty)
}

func TestFillNames(t *testing.T) {
	names := fillNames(map[int]string{1: "tumor"}, 3)
	test.That(t, names, test.ShouldResemble, map[int]string{0: "class0", 1: "tumor", 2: "class2"})
	test.That(t, fillNames(nil, 1), test.ShouldResemble, map[int]string{0: "class0"})
}
