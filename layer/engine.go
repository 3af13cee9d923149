// Package layer implements the layer engine: the mask, expander,
// butterfly and butterfly-encode/decode layer functions that the sealer
// frontend drives one layer at a time over two alternating buffers.
package layer

import (
	"fmt"

	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
	"github.com/filecoin-nse/nse-core/graph"
	"github.com/filecoin-nse/nse-core/hashutil"
)

const maskLayerIndex = 1

// absoluteIndex computes the sector-wide node index from a window index
// and a node's position within that window.
func absoluteIndex(cfg config.Config, windowIndex uint32, localIndex int) uint64 {
	return uint64(windowIndex)*uint64(cfg.NumNodesWindow) + uint64(localIndex)
}

func checkWindowSized(op string, cfg config.Config, buffers ...[]byte) error {
	want := cfg.WindowSizeBytes()
	for _, b := range buffers {
		if len(b) != want {
			return newPreconditionError(op, ErrLengthMismatch, "got %d bytes, want %d", len(b), want)
		}
	}
	return nil
}

// Mask writes layer 1 into out: every node depends only on its position
// and the replica id, so the computation is fully data-parallel.
func Mask(cfg config.Config, windowIndex uint32, replicaID domain.Element, out []byte, workers int) error {
	if err := checkWindowSized("mask", cfg, out); err != nil {
		return err
	}

	replicaIDBytes := replicaID.IntoBytes()

	parallelForEach(int(cfg.NumNodesWindow), workers, func(i int) {
		prefix := hashutil.HashPrefix(maskLayerIndex, absoluteIndex(cfg, windowIndex, i))
		digest := hashutil.Sum256(prefix[:], replicaIDBytes[:])
		hashutil.Truncate(&digest)
		copy(out[i*config.NodeSize:(i+1)*config.NodeSize], digest[:])
	})

	return nil
}

// Expander writes expander layer layerIndex (2 <= layerIndex <=
// NumExpanderLayers) into out, reading parents from in.
func Expander(cfg config.Config, windowIndex uint32, replicaID domain.Element, layerIndex uint32, in, out []byte, workers int) error {
	if err := checkWindowSized("expander", cfg, in, out); err != nil {
		return err
	}
	if layerIndex <= 1 || int(layerIndex) > cfg.NumExpanderLayers {
		return newPreconditionError("expander", ErrLayerIndexRange,
			"layer_index=%d must be in (1, %d]", layerIndex, cfg.NumExpanderLayers)
	}

	replicaIDBytes := replicaID.IntoBytes()
	g := graph.NewExpander(cfg.NumNodesWindow, cfg.DegreeExpander, cfg.K)

	parallelForEach(int(cfg.NumNodesWindow), workers, func(i int) {
		h := hashutil.NewSHA256()
		prefix := hashutil.HashPrefix(layerIndex, absoluteIndex(cfg, windowIndex, i))
		h.Write(prefix[:])         //nolint:errcheck
		h.Write(replicaIDBytes[:]) //nolint:errcheck

		parents := g.ExpandedParents(uint32(i))
		digest := hashutil.BatchHash(h, int(cfg.K), int(cfg.DegreeExpander), parents, in)
		copy(out[i*config.NodeSize:(i+1)*config.NodeSize], digest[:])
	})

	return nil
}

// Butterfly writes butterfly layer layerIndex (NumExpanderLayers <
// layerIndex < NumLayers) into out, reading parents from in.
func Butterfly(cfg config.Config, windowIndex uint32, replicaID domain.Element, layerIndex uint32, in, out []byte, workers int) error {
	if err := checkWindowSized("butterfly", cfg, in, out); err != nil {
		return err
	}
	if int(layerIndex) <= cfg.NumExpanderLayers || int(layerIndex) >= cfg.NumLayers() {
		return newPreconditionError("butterfly", ErrLayerIndexRange,
			"layer_index=%d must be in (%d, %d)", layerIndex, cfg.NumExpanderLayers, cfg.NumLayers())
	}

	replicaIDBytes := replicaID.IntoBytes()
	g := graph.NewButterfly(cfg.NumNodesWindow, cfg.DegreeButterfly, cfg.WindowLog2())

	parallelForEach(int(cfg.NumNodesWindow), workers, func(i int) {
		digest := butterflyDigest(cfg, g, replicaIDBytes, windowIndex, layerIndex, uint32(i), in)
		copy(out[i*config.NodeSize:(i+1)*config.NodeSize], digest[:])
	})

	return nil
}

// butterflyDigest computes the truncated per-node digest shared by the
// plain butterfly layer and the butterfly encode/decode layer's key
// derivation; both use the same parent hashing.
func butterflyDigest(cfg config.Config, g graph.Butterfly, replicaIDBytes [32]byte, windowIndex, layerIndex, nodeIndex uint32, in []byte) [32]byte {
	h := hashutil.NewSHA256()
	prefix := hashutil.HashPrefix(layerIndex, absoluteIndex(cfg, windowIndex, int(nodeIndex)))
	h.Write(prefix[:])         //nolint:errcheck
	h.Write(replicaIDBytes[:]) //nolint:errcheck

	parents := g.Parents(nodeIndex, layerIndex)
	for p := 0; p+1 < len(parents); p += 2 {
		a, b := parents[p], parents[p+1]
		h.Write(in[int(a)*config.NodeSize : (int(a)+1)*config.NodeSize]) //nolint:errcheck
		h.Write(in[int(b)*config.NodeSize : (int(b)+1)*config.NodeSize]) //nolint:errcheck
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	hashutil.Truncate(&digest)
	return digest
}

// op is the additive combination the terminal layer applies to its
// derived key and the corresponding data node: domain.Encode or
// domain.Decode.
type op func(key, data domain.Element) domain.Element

// Encode runs the terminal butterfly layer in encoding mode, combining the
// derived key with the caller's data node and writing the result back into
// data in place.
func Encode(cfg config.Config, windowIndex uint32, replicaID domain.Element, layerIndex uint32, in, data []byte, workers int) error {
	return encodeDecode(cfg, windowIndex, replicaID, layerIndex, in, data, domain.Encode, workers)
}

// Decode runs the terminal butterfly layer in decoding mode, recovering
// the original data node in place.
func Decode(cfg config.Config, windowIndex uint32, replicaID domain.Element, layerIndex uint32, in, data []byte, workers int) error {
	return encodeDecode(cfg, windowIndex, replicaID, layerIndex, in, data, domain.Decode, workers)
}

func encodeDecode(cfg config.Config, windowIndex uint32, replicaID domain.Element, layerIndex uint32, in, data []byte, combine op, workers int) error {
	if err := checkWindowSized("encode", cfg, in, data); err != nil {
		return err
	}
	if int(layerIndex) != cfg.NumLayers() {
		return newPreconditionError("encode", ErrNotTerminalLayer,
			"layer_index=%d must equal num_layers=%d", layerIndex, cfg.NumLayers())
	}

	replicaIDBytes := replicaID.IntoBytes()
	g := graph.NewButterfly(cfg.NumNodesWindow, cfg.DegreeButterfly, cfg.WindowLog2())

	// firstErr latches the first data-conversion failure so the layer
	// reports it instead of silently corrupting later nodes.
	var firstErr atomicError

	// Writes are disjoint per node, so this may run in parallel.
	parallelForEach(int(cfg.NumNodesWindow), workers, func(i int) {
		if firstErr.loaded() {
			return
		}

		keyBytes := butterflyDigest(cfg, g, replicaIDBytes, windowIndex, layerIndex, uint32(i), in)

		key, err := domain.TryFromBytes(keyBytes[:])
		if err != nil {
			// Truncation guarantees validity for engine-derived keys;
			// reaching this is a bug, not a runtime condition a caller
			// can recover from.
			panic("layer: derived key failed domain conversion: " + err.Error())
		}

		nodeStart := i * config.NodeSize
		nodeBytes := data[nodeStart : nodeStart+config.NodeSize]
		dataElem, err := domain.TryFromBytes(nodeBytes)
		if err != nil {
			firstErr.store(fmt.Errorf("layer: encode: node %d: %w", i, err))
			return
		}

		result := combine(key, dataElem)
		resultBytes := result.IntoBytes()
		copy(nodeBytes, resultBytes[:])
	})

	return firstErr.load()
}
