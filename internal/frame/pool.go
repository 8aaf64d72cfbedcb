package frame

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudget is returned when an allocation would exceed the pool budget.
var ErrBudget = errors.New("buffer budget exhausted")

// Allocator hands out grab buffers.
type Allocator interface {
	Alloc(f Format) (*Buffer, error)
	Free(b *Buffer)
}

// Pool is an Allocator bounded by a total byte budget. It counts
// allocations and frees so leaks are observable.
type Pool struct {
	mu     sync.Mutex
	budget int
	inUse  int
	live   map[*Buffer]struct{}

	allocated int
	freed     int
}

// NewPool returns a pool that refuses allocations once budget bytes are
// in use. A budget of zero or less means unbounded.
func NewPool(budget int) *Pool {
	return &Pool{budget: budget, live: make(map[*Buffer]struct{})}
}

// Alloc implements Allocator.
func (p *Pool) Alloc(f Format) (*Buffer, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid buffer format %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.budget > 0 && p.inUse+f.Size() > p.budget {
		return nil, fmt.Errorf("allocate %s: %w", f, ErrBudget)
	}
	b := &Buffer{Format: f, Pix: make([]byte, f.Size())}
	p.inUse += f.Size()
	p.live[b] = struct{}{}
	p.allocated++
	return b, nil
}

// Free implements Allocator. Freeing an unknown buffer is a no-op.
func (p *Pool) Free(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[b]; !ok {
		return
	}
	delete(p.live, b)
	p.inUse -= b.Size()
	p.freed++
}

// Stats reports the number of allocations, frees and live buffers.
func (p *Pool) Stats() (allocated, freed, live int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated, p.freed, len(p.live)
}
