// Package seal implements the sealer frontend: EncodeWithTrees, Decode
// and EncodeWithTreesAll over windows of a sector, including backend
// dispatch with GPU-to-CPU fallback and per-layer tree commitment via
// the tree builder.
package seal

import (
	"errors"
	"fmt"

	"github.com/filecoin-nse/nse-core/backend"
	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
	"github.com/filecoin-nse/nse-core/internal/obslog"
	"github.com/filecoin-nse/nse-core/tree"
)

var logger = obslog.Default().Module("seal")

// treeFamily is the only Merkle tree family this implementation's CPU and
// GPU adapters know how to build, checked before GPU dispatch.
const treeFamily = "sha256-binary"

// Settings configures backend dispatch. UseGPUNSE is carried as an
// explicit field on the frontend rather than process-global mutable
// state; it is consulted on every EncodeWithTrees call, that is once per
// window.
type Settings struct {
	UseGPUNSE bool
}

// DefaultSettings returns Settings with UseGPUNSE false.
func DefaultSettings() Settings {
	return Settings{UseGPUNSE: false}
}

// state is the per-window lifecycle.
type state int

const (
	stateIdle state = iota
	stateMasking
	stateExpanding
	stateButterflying
	stateEncoding
	stateCommitting
	stateDone
	stateFailed
)

// Frontend owns a Config, a Settings and the two backend.Layering
// implementations it dispatches between.
type Frontend struct {
	cfg      config.Config
	settings Settings
	cpu      backend.Layering
	gpu      backend.Layering
	builder  tree.Builder
}

// NewFrontend constructs a Frontend. gpuBackend may be nil, meaning no GPU
// path is available and every window runs on CPU regardless of settings.
func NewFrontend(cfg config.Config, settings Settings, gpuBackend backend.Layering) *Frontend {
	return &Frontend{
		cfg:      cfg,
		settings: settings,
		cpu:      backend.CPU{},
		gpu:      gpuBackend,
		builder:  tree.NewMemoryBuilder(),
	}
}

// chooseBackend picks the GPU path only if settings request it and the
// GPU adapter supports the tree family this frontend commits with.
func (f *Frontend) chooseBackend() backend.Layering {
	if f.settings.UseGPUNSE && f.gpu != nil && f.gpu.SupportsTreeFamily(treeFamily) {
		return f.gpu
	}
	return f.cpu
}

// EncodeWithTrees runs the full Masking -> Expanding -> Butterflying ->
// Encoding -> Committing lifecycle for one window, replacing data in
// place with the replica and returning the L-1 intermediate-layer trees
// plus the replica tree.
//
// storeConfigs is a fixed, indexed slice with one entry per layer
// (NumLayers() entries): storeConfigs[i] for i < NumLayers()-1 names the
// fully-persisted store for intermediate layer i+1, and the last entry
// names the replica's own low-capacity store, distinct from every
// intermediate layer's.
func (f *Frontend) EncodeWithTrees(storeConfigs []tree.StoreConfig, windowIndex uint32, replicaID domain.Element, data []byte) ([]tree.Tree, tree.Tree, error) {
	windowSize := f.cfg.WindowSizeBytes()
	if len(data) != windowSize {
		return nil, nil, fmt.Errorf("seal: encode_with_trees: data is %d bytes, want %d", len(data), windowSize)
	}
	wantConfigs := f.cfg.NumLayers()
	if len(storeConfigs) != wantConfigs {
		return nil, nil, fmt.Errorf("seal: encode_with_trees: %d store configs, want %d", len(storeConfigs), wantConfigs)
	}

	st := stateMasking
	chosen := f.chooseBackend()

	out, err := chosen.Seal(f.cfg, windowIndex, replicaID, data)
	if err != nil {
		var be *backend.BackendError
		if chosen != f.cpu && errors.As(err, &be) {
			logger.Warn("gpu backend failed, falling back to cpu", "window_index", windowIndex, "error", err)
			out, err = f.cpu.Seal(f.cfg, windowIndex, replicaID, data)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("seal: encode_with_trees: window %d: %s: %w", windowIndex, stateLabel(st), err)
		}
	}

	st = stateCommitting
	trees := make([]tree.Tree, 0, len(out.Layers))
	for i, layerOut := range out.Layers {
		t, err := f.builder.Build(layerOut.Nodes, storeConfigs[i])
		if err != nil {
			return nil, nil, fmt.Errorf("seal: encode_with_trees: window %d: %s: layer %d: %w", windowIndex, stateLabel(st), layerOut.LayerIndex, err)
		}
		trees = append(trees, t)
	}

	// The replica always takes the last store config slot; its tree is
	// the low-capacity variant, compacted right after building.
	replicaConfig := storeConfigs[len(storeConfigs)-1]
	replicaTree, err := f.builder.Build(out.Replica, replicaConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("seal: encode_with_trees: window %d: %s: replica: %w", windowIndex, stateLabel(st), err)
	}
	if err := replicaTree.Compact(replicaConfig, 1); err != nil {
		return nil, nil, fmt.Errorf("seal: encode_with_trees: window %d: %s: replica: compact: %w", windowIndex, stateLabel(st), err)
	}

	copy(data, out.Replica)
	return trees, replicaTree, nil
}

// Decode recovers the original data in place from an encoded replica. It
// never builds trees.
func (f *Frontend) Decode(windowIndex uint32, replicaID domain.Element, encodedData []byte) error {
	windowSize := f.cfg.WindowSizeBytes()
	if len(encodedData) != windowSize {
		return fmt.Errorf("seal: decode: encoded data is %d bytes, want %d", len(encodedData), windowSize)
	}

	prev := make([]byte, windowSize)
	cur := make([]byte, windowSize)

	finalButterfly, err := maskThroughLastButterfly(f.cfg, windowIndex, replicaID, prev, cur)
	if err != nil {
		return fmt.Errorf("seal: decode: window %d: %w", windowIndex, err)
	}

	if err := decodeTerminal(f.cfg, windowIndex, replicaID, finalButterfly, encodedData); err != nil {
		return fmt.Errorf("seal: decode: window %d: %w", windowIndex, err)
	}
	return nil
}

func stateLabel(s state) string {
	switch s {
	case stateIdle:
		return "idle"
	case stateMasking:
		return "masking"
	case stateExpanding:
		return "expanding"
	case stateButterflying:
		return "butterflying"
	case stateEncoding:
		return "encoding"
	case stateCommitting:
		return "committing"
	case stateDone:
		return "done"
	default:
		return "failed"
	}
}
