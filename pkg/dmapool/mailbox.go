//go:build linux

package dmapool

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	vcioPath = "/dev/vcio"

	// mailboxIoctl is _IOWR(100, 0, char*), the VideoCore property
	// mailbox ioctl. Its payload is a variable-length buffer, not a
	// fixed struct, so the declared size is sizeof(uintptr).
	mailboxIoctl = 0xC0006400 | uint(unsafe.Sizeof(uintptr(0)))<<16

	tagAllocateMemory = 0x3000C
	tagLockMemory     = 0x3000D
	tagUnlockMemory   = 0x3000E
	tagReleaseMemory  = 0x3000F

	mboxFlagDirect   = 1 << 2
	mboxFlagCoherent = 1 << 3
	mboxFlagZero     = 1 << 4

	busAddrMask = 0x3FFFFFFF
)

// mboxFlagCombos are tried in order for the allocate tag: coherent+direct
// with zeroing first, then without zeroing, then coherent alone for
// firmware that rejects the direct flag.
var mboxFlagCombos = []uint32{
	mboxFlagCoherent | mboxFlagDirect | mboxFlagZero,
	mboxFlagCoherent | mboxFlagDirect,
	mboxFlagCoherent,
}

// mailboxBuffer is a GPU-allocated buffer pinned via the VideoCore
// property-mailbox interface and mapped into this process through
// /dev/mem at its bus address (masked to a physical address).
type mailboxBuffer struct {
	data    []byte
	handle  uint32
	busAddr uint32
}

func (b *mailboxBuffer) CPU() []byte    { return b.data }
func (b *mailboxBuffer) BusAddr() uint32 { return b.busAddr }
func (b *mailboxBuffer) Size() int64     { return int64(len(b.data)) }

// mailboxProperty sends a single-tag property message and returns the
// tag's response words.
func mailboxProperty(vcioFd int, tag uint32, req []uint32, respWords int) ([]uint32, error) {
	valueSize := len(req) * 4
	if respWords*4 > valueSize {
		valueSize = respWords * 4
	}

	buf := make([]uint32, 0, 7+len(req))
	buf = append(buf, 0) // overall size, patched below
	buf = append(buf, 0) // request code
	buf = append(buf, tag)
	buf = append(buf, uint32(valueSize))
	buf = append(buf, 0) // request/response indicator
	buf = append(buf, req...)
	for len(buf) < 5+len(req)+respWords {
		buf = append(buf, 0)
	}
	buf = append(buf, 0) // end tag
	buf[0] = uint32(len(buf) * 4)

	if err := ioctlPtr(vcioFd, mailboxIoctl, unsafe.Pointer(&buf[0])); err != nil {
		return nil, fmt.Errorf("mailbox property tag %#x: %w", tag, err)
	}
	if buf[1] != 0x80000000 {
		return nil, fmt.Errorf("mailbox property tag %#x: request failed (status=%#x)", tag, buf[1])
	}

	return buf[5 : 5+respWords], nil
}

// allocateMailboxBuffer allocates and locks one GPU buffer, trying each
// flag combination in mboxFlagCombos until one succeeds.
func allocateMailboxBuffer(vcioFd int, size uint32) (*mailboxBuffer, error) {
	var handle uint32
	var allocated bool
	for _, flags := range mboxFlagCombos {
		resp, err := mailboxProperty(vcioFd, tagAllocateMemory, []uint32{size, 4096, flags}, 1)
		if err == nil && resp[0] != 0 {
			handle = resp[0]
			allocated = true
			break
		}
	}
	if !allocated {
		return nil, fmt.Errorf("mailbox allocate_memory failed for all flag combinations")
	}

	resp, err := mailboxProperty(vcioFd, tagLockMemory, []uint32{handle}, 1)
	if err != nil {
		mailboxProperty(vcioFd, tagReleaseMemory, []uint32{handle}, 0)
		return nil, fmt.Errorf("mailbox lock_memory: %w", err)
	}
	busAddr := resp[0]
	physAddr := int64(busAddr & busAddrMask)

	memFd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		mailboxProperty(vcioFd, tagUnlockMemory, []uint32{handle}, 0)
		mailboxProperty(vcioFd, tagReleaseMemory, []uint32{handle}, 0)
		return nil, fmt.Errorf("open /dev/mem for mailbox buffer: %w", err)
	}
	defer unix.Close(memFd)

	data, err := unix.Mmap(memFd, physAddr, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		mailboxProperty(vcioFd, tagUnlockMemory, []uint32{handle}, 0)
		mailboxProperty(vcioFd, tagReleaseMemory, []uint32{handle}, 0)
		return nil, fmt.Errorf("mmap mailbox buffer at %#x: %w", physAddr, err)
	}

	return &mailboxBuffer{data: data, handle: handle, busAddr: busAddr}, nil
}

// releaseMailboxBuffer unmaps and releases a buffer: unlock, then release,
// the order the VideoCore mailbox protocol requires.
func releaseMailboxBuffer(vcioFd int, b *mailboxBuffer) {
	if b.data != nil {
		unix.Munmap(b.data)
	}
	mailboxProperty(vcioFd, tagUnlockMemory, []uint32{b.handle}, 0)
	mailboxProperty(vcioFd, tagReleaseMemory, []uint32{b.handle}, 0)
}

// allocateMailbox is the fallback strategy for SoCs without a usable
// dma-heap: it allocates GPU memory through the VideoCore property
// mailbox and maps it into this process via /dev/mem.
func allocateMailbox(size int64) (*Pool, error) {
	vcioFd, err := unix.Open(vcioPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", vcioPath, err)
	}

	var buffers [3]*mailboxBuffer
	rollback := func() {
		for i := len(buffers) - 1; i >= 0; i-- {
			if b := buffers[i]; b != nil {
				releaseMailboxBuffer(vcioFd, b)
			}
		}
		unix.Close(vcioFd)
	}

	for i := 0; i < 3; i++ {
		buf, err := allocateMailboxBuffer(vcioFd, uint32(size))
		if err != nil {
			rollback()
			return nil, fmt.Errorf("mailbox allocate buffer %d: %w", i, err)
		}
		buffers[i] = buf
	}

	pool := &Pool{strategy: StrategyMailbox}
	for i, b := range buffers {
		pool.buffers[i] = b
	}
	pool.release = func() error {
		rollback()
		return nil
	}
	return pool, nil
}
