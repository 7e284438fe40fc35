//go:build linux

// Package arena implements the triple-buffer arena: a POSIX shared-memory
// region carrying the process-shared header and a mirror backing area,
// wrapping the DMA-coherent buffers that are the daemon's authoritative
// frame storage (the shm mirror is what the producer writes into; the
// daemon copies from there into the DMA-coherent buffer it actually
// rotates and transmits from).
package arena

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/ili9488fbd/fbdaemon/pkg/displayfb"
	"github.com/ili9488fbd/fbdaemon/pkg/dmapool"
	"golang.org/x/sys/unix"
)

// Arena owns the shared-memory region (header + mirror buffers) and the
// three DMA-coherent buffers from a dmapool.Pool that are the actual
// source/destination of rotation and SPI transmission. The daemon is the
// sole owner; it creates the arena at startup and destroys it on
// SIGINT/SIGTERM.
type Arena struct {
	name   string
	fd     int
	region []byte
	header *displayfb.Header

	pool *dmapool.Pool

	width, height uint32
	bufSize       int64
}

// Create backs a new POSIX shared-memory object named name (leading "/"
// added if absent), sized for three width×height×3 mirror buffers plus the
// header, and wraps the DMA-coherent buffers from pool as the authoritative
// storage. On a name collision the existing object is unlinked and
// recreated.
func Create(name string, width, height uint32, rotationDeg uint32, pool *dmapool.Pool) (*Arena, error) {
	path := shmName(name)

	prevMask := unix.Umask(0)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0666)
	if err != nil {
		if err == unix.EEXIST {
			if unlinkErr := unix.Unlink(path); unlinkErr != nil {
				unix.Umask(prevMask)
				return nil, fmt.Errorf("unlink existing shm %s: %w", path, unlinkErr)
			}
			fd, err = unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0666)
		}
	}
	unix.Umask(prevMask)
	if err != nil {
		return nil, fmt.Errorf("create shm %s: %w", path, err)
	}

	size := displayfb.ArenaSize(width, height)
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("truncate shm %s to %d bytes: %w", path, size, err)
	}

	region, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("mmap shm %s: %w", path, err)
	}

	header := (*displayfb.Header)(unsafe.Pointer(&region[0]))
	header.Init(width, height, rotationDeg)
	header.BufferABusAddr = pool.Buffer(0).BusAddr()
	header.BufferBBusAddr = pool.Buffer(1).BusAddr()
	header.BufferCBusAddr = pool.Buffer(2).BusAddr()

	return &Arena{
		name:    path,
		fd:      fd,
		region:  region,
		header:  header,
		pool:    pool,
		width:   width,
		height:  height,
		bufSize: displayfb.BufferSize(width, height),
	}, nil
}

func shmName(name string) string {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return "/dev/shm" + name
}

// Header returns the arena's process-shared control block.
func (a *Arena) Header() *displayfb.Header {
	return a.header
}

// Pool returns the underlying DMA-coherent buffer pool.
func (a *Arena) Pool() *dmapool.Pool {
	return a.pool
}

// MirrorPendingSlice returns the shm mirror region for the buffer currently
// in the pending role, the slice FrameLoop copies from after a successful
// sem_trywait.
func (a *Arena) MirrorPendingSlice() []byte {
	off := displayfb.HeaderSize + int64(a.header.PendingIndex)*a.bufSize
	n := int64(a.width) * int64(a.height) * int64(displayfb.BytesPerPixel)
	return a.region[off : off+n]
}

// SetDaemonReady publishes the daemon_ready liveness flag a producer
// blocks on before writing its first frame.
func (a *Arena) SetDaemonReady(ready bool) {
	if ready {
		a.header.DaemonReady = 1
	} else {
		a.header.DaemonReady = 0
	}
}

// AppConnected reports the producer's last-published app_connected flag.
func (a *Arena) AppConnected() bool {
	return a.header.AppConnected != 0
}

// FrameCounter returns the producer's monotone frame counter.
func (a *Arena) FrameCounter() uint32 {
	return a.header.FrameCounter
}

// Rotate3 performs (front,back,pending) ← (pending,front,back), promoting
// a freshly produced pending frame straight to front on the no-rotation
// path, then republishes the three header bus-address slots to match.
func (a *Arena) Rotate3() {
	front, back, pending := a.header.FrontIndex, a.header.BackIndex, a.header.PendingIndex
	a.header.FrontIndex = pending
	a.header.BackIndex = front
	a.header.PendingIndex = back
	a.republishBusAddrs()
}

// SwapBackFront swaps front and back, promoting a buffer RotateEngine has
// just rotated into back, then republishes the three header bus-address
// slots to match.
func (a *Arena) SwapBackFront() {
	a.header.FrontIndex, a.header.BackIndex = a.header.BackIndex, a.header.FrontIndex
	a.republishBusAddrs()
}

// republishBusAddrs keeps header.buffer_{a,b,c}_bus_addr equal to
// buffers[{front,back,pending}].bus_addr, per invariant 2.
func (a *Arena) republishBusAddrs() {
	a.header.BufferABusAddr = a.pool.Buffer(int(a.header.FrontIndex)).BusAddr()
	a.header.BufferBBusAddr = a.pool.Buffer(int(a.header.BackIndex)).BusAddr()
	a.header.BufferCBusAddr = a.pool.Buffer(int(a.header.PendingIndex)).BusAddr()
}

// FrontBuffer, BackBuffer, and PendingBuffer return the daemon-local
// DMA-coherent buffer currently occupying each role.
func (a *Arena) FrontBuffer() dmapool.Buffer   { return a.pool.Buffer(int(a.header.FrontIndex)) }
func (a *Arena) BackBuffer() dmapool.Buffer    { return a.pool.Buffer(int(a.header.BackIndex)) }
func (a *Arena) PendingBuffer() dmapool.Buffer { return a.pool.Buffer(int(a.header.PendingIndex)) }

// Close unmaps and unlinks the shared-memory region and releases the
// buffer pool. Callers should close the arena last, after the frame loop
// has stopped, so nothing is still reading from the buffers it owns.
func (a *Arena) Close() error {
	a.header.DaemonReady = 0

	var firstErr error
	if err := a.pool.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Munmap(a.region); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Close(a.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Unlink(a.name); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
