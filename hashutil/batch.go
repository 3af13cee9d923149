package hashutil

// BatchHash folds a wide expander parent list into a single 32-byte
// truncated digest using a balanced, width-k tree reduction, so no single
// SHA-256 pass ever has to absorb more than degreeExpander parent values
// at once.
//
// primed must already have absorbed the node's hash prefix and replica id.
// parents must have length k*degreeExpander; it is split into k
// consecutive, equal-size chunks. Each chunk is hashed independently
// (concatenated parent node values, read out of layerIn) and truncated;
// the k chunk digests are then fed into primed, which is finalized and
// truncated once more to produce the node's value.
func BatchHash(primed hasher, k, degreeExpander int, parents []uint32, layerIn []byte) [32]byte {
	if len(parents) != k*degreeExpander {
		panic("hashutil: BatchHash parent count must equal k*degreeExpander")
	}

	for chunk := 0; chunk < k; chunk++ {
		chunkHasher := NewSHA256()
		start := chunk * degreeExpander
		for _, parentIdx := range parents[start : start+degreeExpander] {
			nodeStart := int(parentIdx) * NodeSize
			chunkHasher.Write(layerIn[nodeStart : nodeStart+NodeSize]) //nolint:errcheck
		}
		var chunkDigest [32]byte
		copy(chunkDigest[:], chunkHasher.Sum(nil))
		Truncate(&chunkDigest)
		primed.Write(chunkDigest[:]) //nolint:errcheck
	}

	var out [32]byte
	copy(out[:], primed.Sum(nil))
	Truncate(&out)
	return out
}

// hasher is the minimal subset of hash.Hash this package's internals need;
// declared locally so callers can pass either the stdlib interface or the
// sha256-simd one without an import-cycle detour through "hash".
type hasher interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// NodeSize is the fixed byte width of a single node. Declared here rather
// than imported from package config to keep hashutil a leaf package.
const NodeSize = 32
