//go:build linux

package spidisplay

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hardwareBus implements bus against a real spidev device and a pair of
// gpiochip output lines (D/C and RESET), dispatching spidev and gpiochip
// character-device ioctls directly via unix.Syscall rather than through a
// cgo wrapper.
type hardwareBus struct {
	spiFd  int
	gpioFd int
	lineFd int

	// lineValues mirrors the current output level of every line in the
	// single gpiohandle_request this bus holds (index 0 = D/C, 1 =
	// RESET), since GPIOHANDLE_SET_LINE_VALUES_IOCTL sets all of a
	// handle's lines in one call.
	lineValues [2]uint8
}

// Open acquires the SPI device and the D/C and RESET GPIO lines, resets
// the panel, and runs its DCS initialization sequence, returning a
// Transport ready to receive frames via Transmit.
func Open(opts Options, dcOffset, resetOffset uint32) (*Transport, error) {
	def := DefaultOptions()
	if opts.SpiDevice == "" {
		opts.SpiDevice = def.SpiDevice
	}
	if opts.GpioChip == "" {
		opts.GpioChip = def.GpioChip
	}
	if opts.SpeedHz == 0 {
		opts.SpeedHz = def.SpeedHz
	}
	if opts.InitHz == 0 {
		opts.InitHz = def.InitHz
	}
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = def.ChunkBytes
	}

	spiFd, err := unix.Open(opts.SpiDevice, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.SpiDevice, err)
	}
	if err := configureSPIMode(spiFd); err != nil {
		unix.Close(spiFd)
		return nil, fmt.Errorf("configure spi mode: %w", err)
	}

	gpioFd, err := unix.Open(opts.GpioChip, unix.O_RDWR, 0)
	if err != nil {
		unix.Close(spiFd)
		return nil, fmt.Errorf("open %s: %w", opts.GpioChip, err)
	}

	lineFd, err := requestOutputLines(gpioFd, []uint32{dcOffset, resetOffset}, "fbdaemon")
	if err != nil {
		unix.Close(gpioFd)
		unix.Close(spiFd)
		return nil, fmt.Errorf("request gpio lines: %w", err)
	}

	hb := &hardwareBus{spiFd: spiFd, gpioFd: gpioFd, lineFd: lineFd}
	return newTransport(hb, opts)
}

func configureSPIMode(fd int) error {
	var mode uint8 = 0
	if err := ioctlPtr(fd, spiIOCWRMode, unsafe.Pointer(&mode)); err != nil {
		return err
	}
	var bits uint8 = 8
	return ioctlPtr(fd, spiIOCWRBitsPerWord, unsafe.Pointer(&bits))
}

func requestOutputLines(gpioFd int, offsets []uint32, label string) (int, error) {
	req := gpioHandleRequest{
		Flags: gpioHandleRequestOutput,
		Lines: uint32(len(offsets)),
	}
	copy(req.ConsumerLabel[:], label)
	for i, off := range offsets {
		req.LineOffsets[i] = off
		req.DefaultVals[i] = 0
	}
	if err := ioctlPtr(gpioFd, gpioLineHandleIoctl, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return int(req.Fd), nil
}

func (h *hardwareBus) setLine(index int, value uint8) error {
	h.lineValues[index] = value
	var data gpioHandleData
	data.Values[0] = h.lineValues[0]
	data.Values[1] = h.lineValues[1]
	return ioctlPtr(h.lineFd, gpioHandleSetValuesIoctl, unsafe.Pointer(&data))
}

func (h *hardwareBus) transferAt(speedHz uint32, data []byte) error {
	xfer := spiIOCTransfer{
		TxBuf:       uint64(uintptr(unsafe.Pointer(&data[0]))),
		Len:         uint32(len(data)),
		SpeedHz:     speedHz,
		BitsPerWord: 8,
	}
	return ioctlPtr(h.spiFd, spiIOCMessage(1), unsafe.Pointer(&xfer))
}

func (h *hardwareBus) close() error {
	var firstErr error
	if h.lineFd != 0 {
		if err := unix.Close(h.lineFd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := unix.Close(h.gpioFd); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Close(h.spiFd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
