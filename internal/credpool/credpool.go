package credpool

import (
	"context"
	"errors"
)

// Pool is a bounded allocator for scene-provider accounts. Providers cap the
// number of concurrent downloads per account, so every fetch must hold a
// permit for its duration and give it back on all exit paths.
type Pool struct {
	permits chan struct{}
}

var ErrClosed = errors.New("credential pool is closed")

func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{permits: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.permits <- struct{}{}
	}
	return p
}

// Acquire blocks until a permit is available or the context is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case _, ok := <-p.permits:
		if !ok {
			return ErrClosed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking.
func (p *Pool) TryAcquire() bool {
	select {
	case _, ok := <-p.permits:
		return ok
	default:
		return false
	}
}

// Release returns a permit. Releasing more permits than were acquired is a
// programming error and panics in place of silently growing the pool.
func (p *Pool) Release() {
	select {
	case p.permits <- struct{}{}:
	default:
		panic("credpool: release without acquire")
	}
}

// Available reports how many permits are currently free.
func (p *Pool) Available() int {
	return len(p.permits)
}
