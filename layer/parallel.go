package layer

import (
	"runtime"
	"sync"
)

// parallelForEach runs fn(i) for every i in [0, n), distributed across a
// bounded pool of goroutines gated by a semaphore channel.
//
// Within a layer, node computations are independent and write disjoint
// 32-byte slices, so no ordering between calls to fn is required or
// enforced here. WaitGroup.Wait guarantees every fn(i) call has returned
// before parallelForEach returns, which is the layer-to-layer barrier:
// parent reads of the previous layer are fully sequenced before any node
// write of the next.
func parallelForEach(n, workers int, fn func(i int)) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(idx)
		}(i)
	}
	wg.Wait()
}
