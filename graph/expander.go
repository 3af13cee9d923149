// Package graph implements the two deterministic parent generators the
// layer engine draws on: the expander graph and the butterfly graph.
// Both are pure functions of their inputs, producing identical parent
// sequences on every backend.
package graph

import (
	"encoding/binary"

	"github.com/filecoin-nse/nse-core/hashutil"
)

// Expander generates expander-layer parent indices.
type Expander struct {
	numNodesWindow uint32
	degreeExpander uint32
	k              uint32
}

// NewExpander builds an Expander graph for the given window size, expander
// degree and batch-hash width.
func NewExpander(numNodesWindow, degreeExpander, k uint32) Expander {
	return Expander{
		numNodesWindow: numNodesWindow,
		degreeExpander: degreeExpander,
		k:              k,
	}
}

// ExpandedParents returns the k*degreeExpander parent indices for nodeIndex,
// each in [0, numNodesWindow). The sequence is a deterministic function of
// (nodeIndex, numNodesWindow, degreeExpander, k) only; the same expander
// pattern applies at every expander layer.
//
// Parents are drawn from a SHA-256 keystream seeded on nodeIndex: each
// 32-bit keystream word is reduced modulo numNodesWindow. Counter-mode
// keeps the generator stateless and trivially reproducible across
// backends; repeated parents are permitted and occur with the usual
// birthday-bound frequency.
func (g Expander) ExpandedParents(nodeIndex uint32) []uint32 {
	count := int(g.k) * int(g.degreeExpander)
	parents := make([]uint32, count)

	var seed [12]byte
	binary.BigEndian.PutUint32(seed[0:4], nodeIndex)
	binary.BigEndian.PutUint32(seed[4:8], g.degreeExpander)
	binary.BigEndian.PutUint32(seed[8:12], g.k)

	var counter uint32
	produced := 0
	for produced < count {
		var block [16]byte
		copy(block[:12], seed[:])
		binary.BigEndian.PutUint32(block[12:16], counter)
		counter++

		digest := hashutil.Sum256(block[:])
		// Each 32-byte digest yields eight 32-bit keystream words.
		for w := 0; w < 8 && produced < count; w++ {
			word := binary.BigEndian.Uint32(digest[w*4 : w*4+4])
			parents[produced] = word % g.numNodesWindow
			produced++
		}
	}

	return parents
}
