// Package tree provides the Merkle commitment builder the layer engine
// hands each finalized layer's bytes to: a binary SHA-256 tree with
// cached zero hashes and power-of-two padding, plus a low-capacity
// variant for the replica layer that drops its lowest rows after
// building. Every internal node is truncated the same way leaf labels
// are, so a Tree's Root is a valid domain.Element like every other
// committed value in this pipeline.
package tree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
	"github.com/filecoin-nse/nse-core/hashutil"
)

// StoreError reports that the tree builder or its on-disk store rejected
// a write or read.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("tree: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

var (
	// ErrEmptyInput is returned when Build is handed zero bytes.
	ErrEmptyInput = errors.New("tree: empty node byte slice")
	// ErrNotMultipleOfNodeSize is returned when the byte slice is not an
	// exact multiple of the 32-byte node size.
	ErrNotMultipleOfNodeSize = errors.New("tree: length is not a multiple of the node size")
)

// StoreConfig names the on-disk store a tree is persisted under, keyed by
// (cache_dir, id, rows_to_discard). RowsToDiscard governs how many of the
// tree's lowest levels are dropped from persistent storage, retaining
// only the upper levels needed for challenge responses. A zero value
// persists every row.
type StoreConfig struct {
	CacheDir      string
	ID            string
	RowsToDiscard int
}

// Builder turns one finalized layer's node bytes into a committed tree.
type Builder interface {
	Build(nodes []byte, cfg StoreConfig) (Tree, error)
}

// Tree is a committed Merkle tree over one finalized layer's node values.
type Tree interface {
	Root() domain.Element
	// Compact discards the tree's cfg.RowsToDiscard lowest levels,
	// keeping the upper rows needed for later challenge responses.
	Compact(cfg StoreConfig, version int) error
}

// MemoryBuilder builds trees entirely in memory. It is the reference
// Builder implementation used by the sealer frontend and by tests; a
// production deployment substitutes a disk-backed Builder that persists
// under StoreConfig.CacheDir, but the commitment algorithm itself
// (cached zero hashes, power-of-two padding, bottom-up pairwise
// reduction) is the same.
type MemoryBuilder struct {
	zeroHashesOnce sync.Once
	zeroHashes     []domain.Element
}

// NewMemoryBuilder returns a ready-to-use MemoryBuilder.
func NewMemoryBuilder() *MemoryBuilder {
	return &MemoryBuilder{}
}

func (b *MemoryBuilder) initZeroHashes(depth int) {
	b.zeroHashesOnce.Do(func() {
		b.zeroHashes = make([]domain.Element, depth+1)
		b.zeroHashes[0] = domain.Zero()
		for i := 1; i <= depth; i++ {
			b.zeroHashes[i] = combine(b.zeroHashes[i-1], b.zeroHashes[i-1])
		}
	})
}

// Build constructs a tree over nodes, a sequence of 32-byte field
// elements. Leaf counts that are not a power of two are padded with
// zero-element leaves.
func (b *MemoryBuilder) Build(nodes []byte, cfg StoreConfig) (Tree, error) {
	if len(nodes) == 0 {
		return nil, &StoreError{Op: "build", Err: ErrEmptyInput}
	}
	if len(nodes)%config.NodeSize != 0 {
		return nil, &StoreError{Op: "build", Err: ErrNotMultipleOfNodeSize}
	}

	count := len(nodes) / config.NodeSize
	leaves := make([]domain.Element, count)
	for i := 0; i < count; i++ {
		raw := nodes[i*config.NodeSize : (i+1)*config.NodeSize]
		e, err := domain.TryFromBytes(raw)
		if err != nil {
			return nil, &StoreError{Op: "build", Err: fmt.Errorf("leaf %d: %w", i, err)}
		}
		leaves[i] = e
	}

	limit := nextPowerOfTwo(count)
	depth := treeDepth(limit)
	b.initZeroHashes(depth)

	layers := make([][]domain.Element, depth+1)
	bottom := make([]domain.Element, limit)
	copy(bottom, leaves)
	for i := count; i < limit; i++ {
		bottom[i] = b.zeroHashes[0]
	}
	layers[0] = bottom

	for d := 0; d < depth; d++ {
		cur := layers[d]
		next := make([]domain.Element, len(cur)/2)
		for i := range next {
			next[i] = combine(cur[2*i], cur[2*i+1])
		}
		layers[d+1] = next
	}

	return &memoryTree{layers: layers}, nil
}

// combine hashes two field-element nodes into their parent, truncating
// the digest the same way every layer node value is truncated so the
// result is itself a valid domain element.
func combine(a, b domain.Element) domain.Element {
	ab, bb := a.IntoBytes(), b.IntoBytes()
	digest := hashutil.Sum256(ab[:], bb[:])
	hashutil.Truncate(&digest)
	e, err := domain.TryFromBytes(digest[:])
	if err != nil {
		// Truncate caps the value below 2^254, always a valid scalar;
		// reaching this is a bug.
		panic("tree: truncated combine digest failed domain conversion: " + err.Error())
	}
	return e
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func treeDepth(n int) int {
	d := 0
	for (1 << uint(d)) < n {
		d++
	}
	return d
}

// memoryTree holds every retained level of the tree from leaves
// (layers[0]) to root (layers[len(layers)-1]). Compacted levels are nil.
type memoryTree struct {
	mu             sync.Mutex
	layers         [][]domain.Element
	discardedBelow int
}

func (t *memoryTree) Root() domain.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layers[len(t.layers)-1][0]
}

// Compact discards the cfg.RowsToDiscard lowest levels of the tree,
// leaving the upper rows (and always the root) intact.
func (t *memoryTree) Compact(cfg StoreConfig, version int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cfg.RowsToDiscard < 0 {
		return &StoreError{Op: "compact", Err: fmt.Errorf("negative rows_to_discard=%d", cfg.RowsToDiscard)}
	}

	discard := cfg.RowsToDiscard
	if max := len(t.layers) - 1; discard > max {
		discard = max
	}
	for i := 0; i < discard; i++ {
		t.layers[i] = nil
	}
	if discard > t.discardedBelow {
		t.discardedBelow = discard
	}
	return nil
}
