// Package gpu defines the hardware-accelerated sealing interface the
// sealer frontend dispatches to when GPU sealing is enabled. The kernel
// itself lives outside this module; this package carries only the
// contract plus a hardware-free stand-in used to exercise the fallback
// path.
package gpu

import (
	"errors"

	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
)

// ErrUnavailable is returned by a Sealer that has no hardware to run on,
// triggering the frontend's CPU fallback.
var ErrUnavailable = errors.New("gpu: no GPU backend available")

// LayerNodes carries one layer's "base" (node values) and "tree" (reduced
// internal Merkle rows) portions, as produced by the GPU kernel.
type LayerNodes struct {
	LayerIndex uint32
	Base       []byte
	Tree       []byte
}

// Sealer is the GPU kernel's contract: seal a single window's original
// data into the full stack of per-layer node sequences.
type Sealer interface {
	Seal(cfg config.Config, windowIndex uint32, replicaID domain.Element, originalData []byte) ([]LayerNodes, error)
	// SupportsTreeFamily reports whether this Sealer's tree construction
	// matches the named Merkle tree family, checked by the frontend
	// before attempting dispatch.
	SupportsTreeFamily(family string) bool
}

// NullSealer always fails with ErrUnavailable. It stands in for "no GPU
// present" so the frontend's fallback path is exercised deterministically
// without real hardware.
type NullSealer struct{}

func (NullSealer) Seal(config.Config, uint32, domain.Element, []byte) ([]LayerNodes, error) {
	return nil, ErrUnavailable
}

func (NullSealer) SupportsTreeFamily(string) bool { return false }
