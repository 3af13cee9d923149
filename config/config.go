// Package config holds the immutable parameters of a single NSE sealing
// operation and the validation rules that let the rest of the engine
// check its preconditions once, up front, rather than scattered across
// every layer call.
package config

import (
	"errors"
	"fmt"
	"math/bits"
)

// NodeSize is the fixed width, in bytes, of every node in every layer.
const NodeSize = 32

// Config is the immutable, per-sealing-operation parameter set.
type Config struct {
	// K is the number of chunks the Batch Hasher splits expander parents
	// into.
	K uint32
	// NumNodesWindow is the number of nodes in a single window. Must be a
	// power of two.
	NumNodesWindow uint32
	// DegreeExpander is the number of expander parents drawn per chunk;
	// DegreeExpander * K is the total number of expander parents per node.
	DegreeExpander uint32
	// DegreeButterfly is the number of butterfly parents per node. Must be
	// a power of two, at least 2.
	DegreeButterfly uint32
	// NumExpanderLayers is the count of layers up to and including the last
	// expander layer, counting the mask layer: layer 1 is the mask and
	// layers 2..NumExpanderLayers are expander layers.
	NumExpanderLayers int
	// NumButterflyLayers is the count of butterfly layers, including the
	// final encoding layer. Must be at least 1.
	NumButterflyLayers int
	// SectorSize is the total sector size in bytes. Neither Validate nor
	// the window-scoped engine reads this field.
	SectorSize uint64
}

// Validation errors. Each names the violated configuration invariant.
var (
	ErrDegreeButterflyNotPowerOfTwo = errors.New("config: degree_butterfly must be a power of two and at least 2")
	ErrNoButterflyLayers            = errors.New("config: num_butterfly_layers must be at least 1")
	ErrNoExpanderLayers             = errors.New("config: num_expander_layers must be at least 1")
	ErrDegreeExpanderNotDivisible   = errors.New("config: degree_expander must be divisible by k")
	ErrNumNodesWindowNotPowerOfTwo  = errors.New("config: num_nodes_window must be a power of two")
	ErrZeroK                        = errors.New("config: k must be nonzero")
)

// Validate checks the Config invariants. Callers should validate once,
// before starting any sealing operation; every downstream component
// assumes these hold.
func (c Config) Validate() error {
	if c.K == 0 {
		return ErrZeroK
	}
	if c.DegreeButterfly < 2 || !isPowerOfTwo(c.DegreeButterfly) {
		return fmt.Errorf("%w: got %d", ErrDegreeButterflyNotPowerOfTwo, c.DegreeButterfly)
	}
	if c.NumButterflyLayers < 1 {
		return fmt.Errorf("%w: got %d", ErrNoButterflyLayers, c.NumButterflyLayers)
	}
	// The mask layer occupies layer 1; with no expander layers the
	// butterfly range would start there and collide with it.
	if c.NumExpanderLayers < 1 {
		return fmt.Errorf("%w: got %d", ErrNoExpanderLayers, c.NumExpanderLayers)
	}
	if c.DegreeExpander%c.K != 0 {
		return fmt.Errorf("%w: degree_expander=%d, k=%d", ErrDegreeExpanderNotDivisible, c.DegreeExpander, c.K)
	}
	if !isPowerOfTwo(c.NumNodesWindow) {
		return fmt.Errorf("%w: got %d", ErrNumNodesWindowNotPowerOfTwo, c.NumNodesWindow)
	}
	return nil
}

// NumLayers returns the total number of layers, including the mask layer
// and the final encoding layer.
func (c Config) NumLayers() int {
	return c.NumExpanderLayers + c.NumButterflyLayers
}

// WindowSizeBytes returns the byte length of a single layer buffer for
// this config.
func (c Config) WindowSizeBytes() int {
	return int(c.NumNodesWindow) * NodeSize
}

// WindowLog2 returns log2(NumNodesWindow), used by the butterfly graph's
// stride computation. Requires Validate to have already passed.
func (c Config) WindowLog2() int {
	return bits.TrailingZeros32(c.NumNodesWindow)
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
