// Package peripheral discovers the SoC peripheral base address and maps the
// MMIO windows the rest of the daemon needs direct register access to: the
// DMA controller (for RotateEngine) and, optionally, SPI0.
package peripheral

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultBase is the peripheral base BCM283x/BCM2711 falls back to when
// /proc/device-tree/soc/ranges can't be read.
const DefaultBase uint32 = 0x20000000

const (
	dmaChannelStride = 0x100
	dmaBase          = 0x7000
	spi0Offset       = 0x204000
	mmioWindowSize   = 4096
	rangesPath       = "/proc/device-tree/soc/ranges"
)

// Map owns an open /dev/mem fd and whatever MMIO windows it has mapped from
// it. Callers must call Close to release every mapping and the fd, in
// reverse acquisition order.
type Map struct {
	mu       sync.Mutex
	memFd    int
	base     uint32
	baseRead bool

	dmaWindow []byte
	dmaChan   int
	spiWindow []byte
}

// Open opens /dev/mem and resolves the peripheral base address. It never
// fails on a missing or unreadable device-tree ranges file; DefaultBase is
// used instead. It does fail if /dev/mem itself cannot be opened, since no
// direct-MMIO feature is available without it.
func Open() (*Map, error) {
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/mem: %w", err)
	}
	return &Map{memFd: fd, dmaChan: -1}, nil
}

// Base returns the discovered (or default) peripheral base address. The
// device-tree read happens at most once per Map; the result is memoized per
// the original implementation's caching of this value in a static.
func (m *Map) Base() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseLocked()
}

func (m *Map) baseLocked() uint32 {
	if m.baseRead {
		return m.base
	}
	m.base = readPeripheralBase()
	m.baseRead = true
	return m.base
}

// readPeripheralBase decodes the second big-endian 32-bit word of the first
// 8 bytes of /proc/device-tree/soc/ranges, falling back to DefaultBase on
// any error.
func readPeripheralBase() uint32 {
	f, err := os.Open(rangesPath)
	if err != nil {
		return DefaultBase
	}
	defer f.Close()

	var buf [8]byte
	if _, err := f.Read(buf[:]); err != nil {
		return DefaultBase
	}
	return binary.BigEndian.Uint32(buf[4:8])
}

// DMAWindow maps the 4 KiB page at base + 0x7000 that holds the DMA
// controller's channel register blocks (mmap offsets must be page aligned)
// and returns the slice of it starting at the given channel's block,
// base + 0x7000 + channel*0x100, for channel 0-15. The mapping is released
// when Close is called, or immediately replaced if DMAWindow is called
// again with a different channel.
func (m *Map) DMAWindow(channel int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chanOff := int64(channel) * dmaChannelStride
	if m.dmaWindow != nil && m.dmaChan == channel {
		return m.dmaWindow[chanOff:], nil
	}
	if m.dmaWindow != nil {
		unix.Munmap(m.dmaWindow)
		m.dmaWindow = nil
	}

	base := m.baseLocked()
	offset := int64(base) + dmaBase

	win, err := unix.Mmap(m.memFd, offset, mmioWindowSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap dma channel %d: %w", channel, err)
	}
	m.dmaWindow = win
	m.dmaChan = channel
	return win[chanOff:], nil
}

// SPIWindow maps the 4 KiB MMIO window for SPI0, computed as
// base + 0x204000. Most SPI access in this daemon goes through spidev
// instead; this window is a reserved seam for future direct-DMA SPI work,
// the register-level counterpart to Transport.TransmitBusAddr.
func (m *Map) SPIWindow() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spiWindow != nil {
		return m.spiWindow, nil
	}

	base := m.baseLocked()
	offset := int64(base) + spi0Offset

	win, err := unix.Mmap(m.memFd, offset, mmioWindowSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap spi0: %w", err)
	}
	m.spiWindow = win
	return win, nil
}

// Close unmaps any open windows and closes /dev/mem.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.dmaWindow != nil {
		if err := unix.Munmap(m.dmaWindow); err != nil && firstErr == nil {
			firstErr = err
		}
		m.dmaWindow = nil
	}
	if m.spiWindow != nil {
		if err := unix.Munmap(m.spiWindow); err != nil && firstErr == nil {
			firstErr = err
		}
		m.spiWindow = nil
	}
	if err := unix.Close(m.memFd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
