// Package mem provides a fixed block allocator.
//
// A Pool owns a statically sized slab of same-size blocks and a free list
// threaded through an index array, so Acquire and Release are O(1) and
// nothing is allocated after NewPool returns. Running out of blocks is a hard
// limit reported to the caller, never a growth point.
package mem

import "fmt"

// Handle identifies a block inside its Pool.
type Handle int32

// NoHandle is returned by Acquire when the pool is empty.
const NoHandle Handle = -1

// Pool is a slab of count blocks of type T.
type Pool[T any] struct {
	blocks []T
	next   []Handle // free list links, valid only for free blocks
	taken  []bool
	free   Handle
	inUse  int
}

// NewPool creates a pool holding count blocks, all free.
func NewPool[T any](count int) *Pool[T] {
	if count < 0 {
		count = 0
	}
	p := &Pool[T]{
		blocks: make([]T, count),
		next:   make([]Handle, count),
		taken:  make([]bool, count),
	}
	p.Init()
	return p
}

// Init zeroes every block and threads all of them onto the free list.
// Handles acquired before Init must not be used afterwards.
func (p *Pool[T]) Init() {
	var zero T
	for i := range p.blocks {
		p.blocks[i] = zero
		p.taken[i] = false
		p.next[i] = Handle(i + 1)
	}
	if n := len(p.blocks); n > 0 {
		p.next[n-1] = NoHandle
		p.free = 0
	} else {
		p.free = NoHandle
	}
	p.inUse = 0
}

// Acquire takes a block off the free list. It returns NoHandle and nil when
// the pool is exhausted.
func (p *Pool[T]) Acquire() (Handle, *T) {
	h := p.free
	if h == NoHandle {
		return NoHandle, nil
	}
	p.free = p.next[h]
	p.next[h] = NoHandle
	p.taken[h] = true
	p.inUse++
	return h, &p.blocks[h]
}

// Release returns a block to the free list. Releasing a block that is not
// currently acquired is a caller bug and panics.
func (p *Pool[T]) Release(h Handle) {
	if h < 0 || int(h) >= len(p.blocks) || !p.taken[h] {
		panic(fmt.Sprintf("mem: release of block %d that is not acquired", h))
	}
	p.taken[h] = false
	p.next[h] = p.free
	p.free = h
	p.inUse--
}

// At returns the block for h. The block must be acquired.
func (p *Pool[T]) At(h Handle) *T {
	if h < 0 || int(h) >= len(p.blocks) || !p.taken[h] {
		return nil
	}
	return &p.blocks[h]
}

// Cap returns the number of blocks in the pool.
func (p *Pool[T]) Cap() int { return len(p.blocks) }

// InUse returns the number of acquired blocks.
func (p *Pool[T]) InUse() int { return p.inUse }

// Available returns the number of free blocks.
func (p *Pool[T]) Available() int { return len(p.blocks) - p.inUse }

// IsFree reports whether the pool has at least one free block.
func (p *Pool[T]) IsFree() bool { return p.free != NoHandle }
