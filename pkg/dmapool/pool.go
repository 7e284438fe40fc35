// Package dmapool allocates the three physically contiguous, DMA-coherent
// buffers the arena and rotate engine need. It tries CMA dma-heap, then the
// VideoCore mailbox, then falls back to plain CPU buffers with no bus
// address, in that order.
package dmapool

import "fmt"

// Buffer exposes a single allocated frame buffer: its CPU-visible mapping,
// its bus address (zero if the allocator could not establish one), and its
// size. Implementations are returned by Pool and released together by
// Pool.Release.
type Buffer interface {
	// CPU returns the CPU-visible byte slice backing this buffer.
	CPU() []byte
	// BusAddr returns the address a DMA/peripheral master uses to reach
	// this buffer, or 0 if none is available.
	BusAddr() uint32
	// Size returns the buffer's allocated size in bytes.
	Size() int64
}

// Strategy names the allocator variant a Pool ended up using.
type Strategy string

const (
	StrategyCMA     Strategy = "cma"
	StrategyMailbox Strategy = "mailbox"
	StrategyCPU     Strategy = "cpu"
)

// Pool owns three equally sized Buffers allocated by a single strategy.
// Strategy selection happens once, in Allocate: the first strategy that
// successfully allocates all three buffers is adopted; partial failures
// roll back fully before the next strategy is attempted.
type Pool struct {
	strategy Strategy
	buffers  [3]Buffer
	release  func() error
}

// Strategy reports which allocator produced this pool's buffers.
func (p *Pool) Strategy() Strategy {
	return p.strategy
}

// Buffer returns the buffer at index i (0, 1, or 2).
func (p *Pool) Buffer(i int) Buffer {
	return p.buffers[i]
}

// CanDMARotate reports whether all three buffers carry a non-zero bus
// address, the precondition for the rotate engine's hardware DMA path: the
// 2D DMA transfer needs a real bus address to program into the controller's
// source and destination registers.
func (p *Pool) CanDMARotate() bool {
	for _, b := range p.buffers {
		if b.BusAddr() == 0 {
			return false
		}
	}
	return true
}

// Release tears down all three buffers and any allocator-owned file
// descriptors, in reverse acquisition order.
func (p *Pool) Release() error {
	if p.release == nil {
		return nil
	}
	return p.release()
}

// Allocate tries each strategy in order (CMA dma-heap, VideoCore mailbox,
// CPU) and returns the pool built by the first one that succeeds for all
// three buffers of the given size. size should already be page-aligned;
// callers typically pass displayfb.BufferSize(width, height).
func Allocate(size int64) (*Pool, error) {
	if pool, err := allocateCMA(size); err == nil {
		return pool, nil
	}
	if pool, err := allocateMailbox(size); err == nil {
		return pool, nil
	}
	pool, err := allocateCPU(size)
	if err != nil {
		return nil, fmt.Errorf("dmapool: all allocation strategies failed: %w", err)
	}
	return pool, nil
}
