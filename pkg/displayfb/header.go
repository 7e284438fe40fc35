// Package displayfb defines the shared-memory wire format that a producer
// process and the display daemon agree on: a fixed Header followed by three
// packed RGB666-in-RGB888 framebuffers. Producers outside this module import
// it for the Header layout and the Producer client instead of hand-rolling
// the shm contract.
package displayfb

import (
	"sync/atomic"
	"unsafe"
)

// Magic identifies a valid shared-memory arena. Producers must check it
// before trusting any other header field.
const Magic uint32 = 0x49494C39

// Version is the wire format version this package implements.
const Version uint32 = 1

// BytesPerPixel is fixed: packed RGB666-in-RGB888, three bytes per pixel.
const BytesPerPixel uint32 = 3

// PageSize is the alignment every buffer's size is rounded up to, per the
// arena's page-alignment invariant.
const PageSize = 4096

// HeaderSize is the on-wire size of Header, cache-line padded to at least
// 128 bytes.
const HeaderSize = 128

// Header is the process-shared control block at the start of the arena's
// shared-memory region. Every field is 32-bit and host little-endian; the
// layout must not change without bumping Version. PendingSem is a binary
// mutex (initial value 1) manipulated only through TrySemAcquire/SemRelease
// so a real POSIX semaphore (and the cgo it would require) is unnecessary:
// both producer and daemon only ever trywait/post, never block, so a plain
// CAS on a shared int32 gives identical mutual-exclusion semantics.
type Header struct {
	MagicValue    uint32
	VersionValue  uint32
	Width         uint32
	Height        uint32
	BppValue      uint32
	BufferABusAddr uint32
	BufferBBusAddr uint32
	BufferCBusAddr uint32
	FrontIndex    uint32
	BackIndex     uint32
	PendingIndex  uint32
	PendingSem    int32
	FrameCounter  uint32
	RotationDeg   uint32
	DaemonReady   uint32
	AppConnected  uint32

	_pad [HeaderSize - 64]byte
}

var _ [HeaderSize]byte = [unsafe.Sizeof(Header{})]byte{}

// PageAlign rounds n up to the next multiple of PageSize.
func PageAlign(n int64) int64 {
	if rem := n % PageSize; rem != 0 {
		return n + (PageSize - rem)
	}
	return n
}

// BufferSize returns the page-aligned size in bytes of one W·H·3 buffer.
func BufferSize(width, height uint32) int64 {
	return PageAlign(int64(width) * int64(height) * int64(BytesPerPixel))
}

// ArenaSize returns the total shared-memory region size: the header plus
// three buffers of BufferSize(width, height).
func ArenaSize(width, height uint32) int64 {
	return HeaderSize + 3*BufferSize(width, height)
}

// Init fills a freshly mapped Header with its startup values: magic,
// version, geometry, initial role indices (front=0, back=1, pending=2), a
// released semaphore, and zeroed liveness flags.
func (h *Header) Init(width, height, rotationDeg uint32) {
	h.MagicValue = Magic
	h.VersionValue = Version
	h.Width = width
	h.Height = height
	h.BppValue = BytesPerPixel
	h.BufferABusAddr = 0
	h.BufferBBusAddr = 0
	h.BufferCBusAddr = 0
	h.FrontIndex = 0
	h.BackIndex = 1
	h.PendingIndex = 2
	h.PendingSem = 1
	h.FrameCounter = 0
	h.RotationDeg = rotationDeg
	h.DaemonReady = 0
	h.AppConnected = 0
}

// Valid reports whether the header carries a recognized magic and version.
func (h *Header) Valid() bool {
	return h.MagicValue == Magic && h.VersionValue == Version
}

// TrySemAcquire attempts to take the pending-buffer mutex without blocking,
// mirroring sem_trywait on a semaphore of initial value 1. It reports
// whether the acquisition succeeded.
func TrySemAcquire(sem *int32) bool {
	return atomic.CompareAndSwapInt32(sem, 1, 0)
}

// SemRelease releases the pending-buffer mutex, mirroring sem_post.
func SemRelease(sem *int32) {
	atomic.StoreInt32(sem, 1)
}
