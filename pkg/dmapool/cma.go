//go:build linux

package dmapool

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// dmaHeapCandidates are tried in order; the first that opens successfully
// is used for all three buffers.
var dmaHeapCandidates = []string{
	"/dev/dma_heap/linux,cma",
	"/dev/dma_heap/reserved",
	"/dev/dma_heap/system",
}

const (
	vcsmCMAPath = "/dev/vcsm-cma"

	// dmaHeapIoctlAlloc is DMA_HEAP_IOCTL_ALLOC, _IOWR('H', 0x0, struct
	// dma_heap_allocation_data) with that struct's 24-byte layout
	// (len uint64, fd uint32, fd_flags uint32, heap_flags uint64).
	dmaHeapIoctlAlloc = 0xC0184800

	// vcsmImportDMABuf is VCSM_CMA_IOCTL_MEM_IMPORT_DMABUF, _IOR('J',
	// 0x5B, struct vcsmCMAImport).
	vcsmImportDMABuf = 0x80104A5B
)

// dmaHeapAllocationData mirrors struct dma_heap_allocation_data from
// linux/dma-heap.h.
type dmaHeapAllocationData struct {
	Len       uint64
	Fd        uint32
	FdFlags   uint32
	HeapFlags uint64
}

// vcsmCMAImport mirrors the vc-sm-cma driver's dma-buf import request: the
// fd to import and the size being imported in, the resulting bus address
// out.
type vcsmCMAImport struct {
	Fd      int32
	Size    uint32
	DMAAddr uint32
	_       uint32
}

func openDMAHeap() (int, error) {
	for _, path := range dmaHeapCandidates {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err == nil {
			return fd, nil
		}
	}

	entries, err := os.ReadDir("/dev/dma_heap")
	if err != nil {
		return -1, fmt.Errorf("no usable dma-heap device: %w", err)
	}
	for _, e := range entries {
		fd, err := unix.Open(filepath.Join("/dev/dma_heap", e.Name()), unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err == nil {
			return fd, nil
		}
	}
	return -1, fmt.Errorf("no usable dma-heap device found in /dev/dma_heap")
}

// cmaBuffer is a dma-buf allocated through the CMA dma-heap, mmap'd RW, and
// optionally bus-addressed via vc-sm-cma import.
type cmaBuffer struct {
	data    []byte
	dmaBufFd int
	busAddr uint32
}

func (b *cmaBuffer) CPU() []byte    { return b.data }
func (b *cmaBuffer) BusAddr() uint32 { return b.busAddr }
func (b *cmaBuffer) Size() int64     { return int64(len(b.data)) }

// allocateCMA is the preferred allocation strategy: dma-heap for the
// coherent allocation, vc-sm-cma for the bus address. If vc-sm-cma is
// absent the buffers are still usable with a zero bus address.
func allocateCMA(size int64) (*Pool, error) {
	heapFd, err := openDMAHeap()
	if err != nil {
		return nil, err
	}
	defer unix.Close(heapFd)

	vcsmFd, vcsmErr := unix.Open(vcsmCMAPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	hasVCSM := vcsmErr == nil
	if hasVCSM {
		defer unix.Close(vcsmFd)
	}

	var buffers [3]*cmaBuffer
	rollback := func() {
		for i := len(buffers) - 1; i >= 0; i-- {
			b := buffers[i]
			if b == nil {
				continue
			}
			if b.data != nil {
				unix.Munmap(b.data)
			}
			if b.dmaBufFd >= 0 {
				unix.Close(b.dmaBufFd)
			}
		}
	}

	for i := 0; i < 3; i++ {
		req := dmaHeapAllocationData{
			Len:     uint64(size),
			FdFlags: unix.O_RDWR | unix.O_CLOEXEC,
		}
		if err := ioctlPtr(heapFd, dmaHeapIoctlAlloc, unsafe.Pointer(&req)); err != nil {
			rollback()
			return nil, fmt.Errorf("dma_heap alloc buffer %d: %w", i, err)
		}

		data, err := unix.Mmap(int(req.Fd), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			unix.Close(int(req.Fd))
			rollback()
			return nil, fmt.Errorf("mmap dma-buf %d: %w", i, err)
		}

		buf := &cmaBuffer{data: data, dmaBufFd: int(req.Fd)}

		if hasVCSM {
			imp := vcsmCMAImport{Fd: int32(req.Fd), Size: uint32(size)}
			if err := ioctlPtr(vcsmFd, vcsmImportDMABuf, unsafe.Pointer(&imp)); err == nil {
				buf.busAddr = imp.DMAAddr
			}
		}

		buffers[i] = buf
	}

	pool := &Pool{strategy: StrategyCMA}
	for i, b := range buffers {
		pool.buffers[i] = b
	}
	pool.release = func() error {
		rollback()
		return nil
	}
	return pool, nil
}
