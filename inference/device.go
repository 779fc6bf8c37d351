package inference

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type provider int

const (
	providerCPU provider = iota
	providerCUDA
	providerCoreML
)

// Device is a parsed device hint.
type Device struct {
	provider provider
	id       int
}

func (d Device) String() string {
	switch d.provider {
	case providerCUDA:
		return fmt.Sprintf("cuda:%d", d.id)
	case providerCoreML:
		return "coreml"
	default:
		return "cpu"
	}
}

// ParseDevice accepts the hints clients send: "cpu", "cuda", "cuda:N",
// a bare GPU index ("0", or "0,1" where the first index wins) and
// "mps"/"coreml".
func ParseDevice(hint string) (Device, error) {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch h {
	case "", "cpu":
		return Device{provider: providerCPU}, nil
	case "cuda", "gpu":
		return Device{provider: providerCUDA}, nil
	case "mps", "coreml":
		return Device{provider: providerCoreML}, nil
	}

	idx := strings.TrimPrefix(h, "cuda:")
	if first, _, found := strings.Cut(idx, ","); found {
		idx = first
	}
	id, err := strconv.Atoi(strings.TrimSpace(idx))
	if err != nil || id < 0 {
		return Device{}, errors.Errorf("invalid device %q requested, use 'cpu', 'cuda:N' or a GPU index", hint)
	}
	return Device{provider: providerCUDA, id: id}, nil
}
