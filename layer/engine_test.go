package layer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
)

func sampleConfig() config.Config {
	return config.Config{
		K:                  8,
		NumNodesWindow:     64,
		DegreeExpander:     12,
		DegreeButterfly:    4,
		NumExpanderLayers:  6,
		NumButterflyLayers: 4,
		SectorSize:         2048 * 8,
	}
}

func randomReplicaID(t *testing.T) domain.Element {
	t.Helper()
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		t.Fatal(err)
	}
	// Truncate the way every engine-derived value is truncated; the
	// result is always a valid field element.
	b[31] &= 0x3f
	e, err := domain.TryFromBytes(b[:])
	if err != nil {
		t.Fatalf("truncated bytes must convert: %v", err)
	}
	return e
}

// randomFieldBytes produces n random 32-byte nodes, each a valid field
// element, the form data arrives in after fr32 padding upstream.
func randomFieldBytes(t *testing.T, n int) []byte {
	t.Helper()
	out := make([]byte, n*config.NodeSize)
	if _, err := rand.Read(out); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		node := out[i*config.NodeSize : (i+1)*config.NodeSize]
		node[31] &= 0x3f
		if _, err := domain.TryFromBytes(node); err != nil {
			t.Fatalf("truncated node must convert: %v", err)
		}
	}
	return out
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestMaskLayerNotAllZero(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	out := make([]byte, cfg.WindowSizeBytes())

	if err := Mask(cfg, 3, replicaID, out, 0); err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if isAllZero(out) {
		t.Fatal("mask layer must not be all zero")
	}
}

func TestExpanderLayerNotAllZero(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	in := randomFieldBytes(t, int(cfg.NumNodesWindow))
	out := make([]byte, cfg.WindowSizeBytes())

	if err := Expander(cfg, 1, replicaID, 2, in, out, 0); err != nil {
		t.Fatalf("Expander: %v", err)
	}
	if isAllZero(out) {
		t.Fatal("expander layer must not be all zero")
	}
}

func TestExpanderLayerRejectsBadLength(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	in := make([]byte, cfg.WindowSizeBytes())
	out := make([]byte, cfg.WindowSizeBytes()-1)

	err := Expander(cfg, 0, replicaID, 2, in, out, 0)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestExpanderLayerRejectsBadLayerIndex(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	in := make([]byte, cfg.WindowSizeBytes())
	out := make([]byte, cfg.WindowSizeBytes())

	if err := Expander(cfg, 0, replicaID, 1, in, out, 0); !errors.Is(err, ErrLayerIndexRange) {
		t.Fatalf("expected ErrLayerIndexRange for layer 1, got %v", err)
	}
	if err := Expander(cfg, 0, replicaID, uint32(cfg.NumExpanderLayers)+1, in, out, 0); !errors.Is(err, ErrLayerIndexRange) {
		t.Fatalf("expected ErrLayerIndexRange for layer beyond range, got %v", err)
	}
}

func TestButterflyLayerNotAllZero(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	in := randomFieldBytes(t, int(cfg.NumNodesWindow))
	out := make([]byte, cfg.WindowSizeBytes())

	layerIndex := uint32(cfg.NumExpanderLayers + 1)
	if err := Butterfly(cfg, 0, replicaID, layerIndex, in, out, 0); err != nil {
		t.Fatalf("Butterfly: %v", err)
	}
	if isAllZero(out) {
		t.Fatal("butterfly layer must not be all zero")
	}
}

func TestButterflyLayerRejectsBadLayerIndex(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	in := make([]byte, cfg.WindowSizeBytes())
	out := make([]byte, cfg.WindowSizeBytes())

	if err := Butterfly(cfg, 0, replicaID, uint32(cfg.NumExpanderLayers), in, out, 0); !errors.Is(err, ErrLayerIndexRange) {
		t.Fatalf("expected ErrLayerIndexRange at the expander/butterfly boundary, got %v", err)
	}
	if err := Butterfly(cfg, 0, replicaID, uint32(cfg.NumLayers()), in, out, 0); !errors.Is(err, ErrLayerIndexRange) {
		t.Fatalf("expected ErrLayerIndexRange at the terminal layer, got %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	layerIndex := uint32(cfg.NumLayers())

	in := randomFieldBytes(t, int(cfg.NumNodesWindow))
	data := randomFieldBytes(t, int(cfg.NumNodesWindow))
	original := append([]byte(nil), data...)

	if err := Encode(cfg, 2, replicaID, layerIndex, in, data, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Equal(data, original) {
		t.Fatal("encode did not change the data")
	}

	if err := Decode(cfg, 2, replicaID, layerIndex, in, data, 0); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(data, original) {
		t.Fatal("decode did not recover the original data")
	}
}

func TestEncodeRejectsNonTerminalLayer(t *testing.T) {
	cfg := sampleConfig()
	replicaID := randomReplicaID(t)
	in := make([]byte, cfg.WindowSizeBytes())
	data := make([]byte, cfg.WindowSizeBytes())

	err := Encode(cfg, 0, replicaID, uint32(cfg.NumLayers())-1, in, data, 0)
	if !errors.Is(err, ErrNotTerminalLayer) {
		t.Fatalf("expected ErrNotTerminalLayer, got %v", err)
	}
}

func TestDecodeWithWrongReplicaIDFailsToRecover(t *testing.T) {
	cfg := sampleConfig()
	r1 := randomReplicaID(t)
	r2 := randomReplicaID(t)
	layerIndex := uint32(cfg.NumLayers())

	in := randomFieldBytes(t, int(cfg.NumNodesWindow))
	data := randomFieldBytes(t, int(cfg.NumNodesWindow))
	original := append([]byte(nil), data...)

	if err := Encode(cfg, 5, r1, layerIndex, in, data, 0); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := Decode(cfg, 5, r2, layerIndex, in, data, 0); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if bytes.Equal(data, original) {
		t.Fatal("decoding with the wrong replica id must not recover the original data")
	}
}
