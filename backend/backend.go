// Package backend implements the two Layering adapters the sealer
// frontend dispatches across: a CPU backend that drives the layer package
// directly, and a GPU backend that wraps a gpu.Sealer and adapts its
// output into the same shape. Dispatch itself (the use_gpu_nse setting,
// the capability check, the fallback-on-failure logging) lives in the
// seal package.
package backend

import (
	"fmt"

	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
	"github.com/filecoin-nse/nse-core/gpu"
	"github.com/filecoin-nse/nse-core/layer"
)

// LayerOutput carries one intermediate layer's finalized node bytes,
// ready to be handed to the tree builder.
type LayerOutput struct {
	LayerIndex uint32
	Nodes      []byte
}

// WindowOutputs is everything one window's seal produces: every
// intermediate layer (mask through the last butterfly layer, L-1 of
// them) plus the terminal replica bytes.
type WindowOutputs struct {
	Layers  []LayerOutput
	Replica []byte
}

// Layering is the interface the sealer frontend dispatches across.
type Layering interface {
	Seal(cfg config.Config, windowIndex uint32, replicaID domain.Element, originalData []byte) (WindowOutputs, error)
	// SupportsTreeFamily reports whether this backend's tree construction
	// matches the named Merkle tree family.
	SupportsTreeFamily(family string) bool
}

// BackendError reports that a backend failed to seal a window. The
// frontend treats a GPU BackendError as retryable on CPU.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string { return fmt.Sprintf("backend: %s: %v", e.Backend, e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

// CPU drives the layer package directly: mask, then expander layers, then
// butterfly layers, then the terminal encode layer, double-buffering the
// previous/current layer so only two window-sized scratch buffers are
// ever live.
type CPU struct {
	// Workers bounds the per-layer worker pool; zero means
	// runtime.GOMAXPROCS(0) (see layer.parallelForEach).
	Workers int
}

func (c CPU) SupportsTreeFamily(string) bool { return true }

func (c CPU) Seal(cfg config.Config, windowIndex uint32, replicaID domain.Element, originalData []byte) (WindowOutputs, error) {
	windowSize := cfg.WindowSizeBytes()
	if len(originalData) != windowSize {
		return WindowOutputs{}, &BackendError{Backend: "cpu", Err: fmt.Errorf("original data is %d bytes, want %d", len(originalData), windowSize)}
	}

	out := WindowOutputs{Layers: make([]LayerOutput, 0, cfg.NumLayers()-1)}

	prev := make([]byte, windowSize)
	cur := make([]byte, windowSize)

	if err := layer.Mask(cfg, windowIndex, replicaID, cur, c.Workers); err != nil {
		return WindowOutputs{}, &BackendError{Backend: "cpu", Err: err}
	}
	out.Layers = append(out.Layers, snapshotLayer(1, cur))
	prev, cur = cur, prev

	for l := uint32(2); l <= uint32(cfg.NumExpanderLayers); l++ {
		if err := layer.Expander(cfg, windowIndex, replicaID, l, prev, cur, c.Workers); err != nil {
			return WindowOutputs{}, &BackendError{Backend: "cpu", Err: err}
		}
		out.Layers = append(out.Layers, snapshotLayer(l, cur))
		prev, cur = cur, prev
	}

	lastButterfly := uint32(cfg.NumLayers() - 1)
	for l := uint32(cfg.NumExpanderLayers + 1); l <= lastButterfly; l++ {
		if err := layer.Butterfly(cfg, windowIndex, replicaID, l, prev, cur, c.Workers); err != nil {
			return WindowOutputs{}, &BackendError{Backend: "cpu", Err: err}
		}
		out.Layers = append(out.Layers, snapshotLayer(l, cur))
		prev, cur = cur, prev
	}

	replica := make([]byte, windowSize)
	copy(replica, originalData)
	if err := layer.Encode(cfg, windowIndex, replicaID, uint32(cfg.NumLayers()), prev, replica, c.Workers); err != nil {
		return WindowOutputs{}, &BackendError{Backend: "cpu", Err: err}
	}
	out.Replica = replica

	return out, nil
}

func snapshotLayer(index uint32, nodes []byte) LayerOutput {
	cp := make([]byte, len(nodes))
	copy(cp, nodes)
	return LayerOutput{LayerIndex: index, Nodes: cp}
}

// GPU wraps a gpu.Sealer, adapting the base portion of its per-layer node
// sequences into the same WindowOutputs shape the CPU backend produces, so
// the frontend's commit logic is backend-agnostic. The tree portion is not
// read; every tree is rebuilt from the base bytes.
type GPU struct {
	Sealer gpu.Sealer
}

func (g GPU) SupportsTreeFamily(family string) bool {
	if g.Sealer == nil {
		return false
	}
	return g.Sealer.SupportsTreeFamily(family)
}

func (g GPU) Seal(cfg config.Config, windowIndex uint32, replicaID domain.Element, originalData []byte) (WindowOutputs, error) {
	if g.Sealer == nil {
		return WindowOutputs{}, &BackendError{Backend: "gpu", Err: gpu.ErrUnavailable}
	}

	nodes, err := g.Sealer.Seal(cfg, windowIndex, replicaID, originalData)
	if err != nil {
		return WindowOutputs{}, &BackendError{Backend: "gpu", Err: err}
	}

	terminal := uint32(cfg.NumLayers())
	out := WindowOutputs{Layers: make([]LayerOutput, 0, len(nodes))}
	for _, n := range nodes {
		if n.LayerIndex == terminal {
			out.Replica = n.Base
			continue
		}
		out.Layers = append(out.Layers, LayerOutput{LayerIndex: n.LayerIndex, Nodes: n.Base})
	}

	if out.Replica == nil {
		return WindowOutputs{}, &BackendError{Backend: "gpu", Err: fmt.Errorf("sealer did not return a terminal layer %d", terminal)}
	}

	return out, nil
}
