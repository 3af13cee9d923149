package tree

import (
	"crypto/rand"
	"testing"

	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
)

func randomNodes(t *testing.T, n int) []byte {
	t.Helper()
	out := make([]byte, n*config.NodeSize)
	if _, err := rand.Read(out); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		node := out[i*config.NodeSize : (i+1)*config.NodeSize]
		// Truncate each node the way the layer engine does, so every
		// leaf is a valid field element.
		node[31] &= 0x3f
		if _, err := domain.TryFromBytes(node); err != nil {
			t.Fatalf("truncated node must convert: %v", err)
		}
	}
	return out
}

func TestBuildRejectsEmptyInput(t *testing.T) {
	b := NewMemoryBuilder()
	if _, err := b.Build(nil, StoreConfig{}); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestBuildRejectsMisalignedInput(t *testing.T) {
	b := NewMemoryBuilder()
	if _, err := b.Build(make([]byte, config.NodeSize+1), StoreConfig{}); err == nil {
		t.Fatal("expected an error for misaligned input")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	nodes := randomNodes(t, 64)
	b1 := NewMemoryBuilder()
	b2 := NewMemoryBuilder()

	tr1, err := b1.Build(nodes, StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tr2, err := b2.Build(nodes, StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	r1, r2 := tr1.Root().IntoBytes(), tr2.Root().IntoBytes()
	if r1 != r2 {
		t.Fatal("identical node input produced different roots")
	}
}

func TestBuildHandlesNonPowerOfTwoLeafCount(t *testing.T) {
	b := NewMemoryBuilder()
	nodes := randomNodes(t, 5)
	if _, err := b.Build(nodes, StoreConfig{}); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestBuildSingleLeafRootEqualsLeaf(t *testing.T) {
	b := NewMemoryBuilder()
	nodes := randomNodes(t, 1)
	tr, err := b.Build(nodes, StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root := tr.Root().IntoBytes()
	if string(root[:]) != string(nodes) {
		t.Fatal("a single-leaf tree's root must equal the leaf itself")
	}
}

func TestDifferentNodesProduceDifferentRoots(t *testing.T) {
	b := NewMemoryBuilder()
	nodesA := randomNodes(t, 16)
	nodesB := randomNodes(t, 16)

	trA, err := b.Build(nodesA, StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	trB, err := b.Build(nodesB, StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if trA.Root().IntoBytes() == trB.Root().IntoBytes() {
		t.Fatal("different leaf sets produced the same root")
	}
}

func TestCompactRejectsNegativeRowsToDiscard(t *testing.T) {
	b := NewMemoryBuilder()
	tr, err := b.Build(randomNodes(t, 8), StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := tr.Compact(StoreConfig{RowsToDiscard: -1}, 1); err == nil {
		t.Fatal("expected an error for a negative rows_to_discard")
	}
}

func TestCompactPreservesRoot(t *testing.T) {
	b := NewMemoryBuilder()
	tr, err := b.Build(randomNodes(t, 8), StoreConfig{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	before := tr.Root().IntoBytes()
	if err := tr.Compact(StoreConfig{RowsToDiscard: 1}, 1); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	after := tr.Root().IntoBytes()
	if before != after {
		t.Fatal("compacting must not change the root")
	}
}
