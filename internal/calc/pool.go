package calc

import (
	"runtime"
	"sync"
)

// Pool fans matrix work out over a fixed set of worker goroutines.
type Pool struct {
	workers int
}

// NewPool returns a compute pool with n workers; n <= 0 means one per CPU.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{workers: n}
}

// Each runs fn for every index in [0, n), distributed over the pool.
func (p *Pool) Each(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	workers := p.workers
	if workers > n {
		workers = n
	}

	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(n)

	for w := 0; w < workers; w++ {
		go func() {
			for {
				i, ok := <-order
				if !ok {
					return
				}
				fn(i)
				wg.Done()
			}
		}()
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}
