package seal

import (
	"github.com/filecoin-nse/nse-core/config"
	"github.com/filecoin-nse/nse-core/domain"
	"github.com/filecoin-nse/nse-core/layer"
)

// maskThroughLastButterfly regenerates every non-terminal layer through the
// last butterfly layer, double-buffering between prev and cur exactly as
// the CPU backend does, and returns whichever of the two buffers ends up
// holding that final layer (the number of swaps is config-dependent, so
// the caller cannot assume it statically). Decode never builds trees, so
// it always runs on the CPU path rather than through a backend.Layering.
func maskThroughLastButterfly(cfg config.Config, windowIndex uint32, replicaID domain.Element, prev, cur []byte) ([]byte, error) {
	if err := layer.Mask(cfg, windowIndex, replicaID, cur, 0); err != nil {
		return nil, err
	}
	prev, cur = cur, prev

	for l := uint32(2); l <= uint32(cfg.NumExpanderLayers); l++ {
		if err := layer.Expander(cfg, windowIndex, replicaID, l, prev, cur, 0); err != nil {
			return nil, err
		}
		prev, cur = cur, prev
	}

	lastButterfly := uint32(cfg.NumLayers() - 1)
	for l := uint32(cfg.NumExpanderLayers + 1); l <= lastButterfly; l++ {
		if err := layer.Butterfly(cfg, windowIndex, replicaID, l, prev, cur, 0); err != nil {
			return nil, err
		}
		prev, cur = cur, prev
	}

	return prev, nil
}

func decodeTerminal(cfg config.Config, windowIndex uint32, replicaID domain.Element, lastButterflyLayer, encodedData []byte) error {
	return layer.Decode(cfg, windowIndex, replicaID, uint32(cfg.NumLayers()), lastButterflyLayer, encodedData, 0)
}
