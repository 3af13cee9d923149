package seal

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/filecoin-nse/nse-core/domain"
	"github.com/filecoin-nse/nse-core/tree"
)

// Window is one independent unit of work for EncodeWithTreesAll: a window
// index and the data buffer to encode in place.
type Window struct {
	Index uint32
	Data  []byte
}

// Result is one window's outcome from EncodeWithTreesAll.
type Result struct {
	WindowIndex uint32
	Trees       []tree.Tree
	ReplicaTree tree.Tree
	Err         error
}

// EncodeWithTreesAll runs EncodeWithTrees over every window of one
// replica independently and in parallel; windows are the outer
// parallelism dimension, all sharing the same replica id. Every window
// gets its own store configs, one per layer, keyed by the window's index
// so stores never collide across windows. Intermediate layers are fully
// persisted (RowsToDiscard: 0); only the replica's own, distinctly-IDed
// slot carries rowsToDiscard.
func (f *Frontend) EncodeWithTreesAll(rowsToDiscard int, replicaID domain.Element, windows []Window) []Result {
	results := make([]Result, len(windows))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(windows) {
		workers = len(windows)
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	wg.Add(len(windows))
	for i, w := range windows {
		sem <- struct{}{}
		go func(idx int, win Window) {
			defer wg.Done()
			defer func() { <-sem }()

			numLayers := f.cfg.NumLayers()
			storeConfigs := make([]tree.StoreConfig, numLayers)
			for l := 0; l < numLayers-1; l++ {
				storeConfigs[l] = tree.StoreConfig{
					ID:            fmt.Sprintf("window-%d-layer-%d", win.Index, l+1),
					RowsToDiscard: 0,
				}
			}
			storeConfigs[numLayers-1] = tree.StoreConfig{
				ID:            fmt.Sprintf("window-%d-replica", win.Index),
				RowsToDiscard: rowsToDiscard,
			}

			trees, replicaTree, err := f.EncodeWithTrees(storeConfigs, win.Index, replicaID, win.Data)
			results[idx] = Result{WindowIndex: win.Index, Trees: trees, ReplicaTree: replicaTree, Err: err}
		}(i, w)
	}
	wg.Wait()

	return results
}
