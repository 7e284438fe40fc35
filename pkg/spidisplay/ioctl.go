//go:build linux

package spidisplay

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// spiIOCMessage computes SPI_IOC_MESSAGE(n): _IOW(SPI_IOC_MAGIC, 0, char[])
// sized for n struct spi_ioc_transfer entries (32 bytes each on 64-bit).
func spiIOCMessage(n int) uint {
	const spiIOCMagic = 'k'
	size := n * 32
	return (1 << 30) | (uint(size) << 16) | (spiIOCMagic << 8) | 0
}

// gpioLineHandleIoctl requests output lines from a gpiochip, mirroring
// GPIO_GET_LINEHANDLE_IOCTL from linux/gpio.h: _IOWR(0xB4, 0x03, struct
// gpiohandle_request), that struct being 364 bytes.
const gpioLineHandleIoctl = 0xC16CB403

// gpioHandleSetValuesIoctl mirrors GPIOHANDLE_SET_LINE_VALUES_IOCTL:
// _IOWR(0xB4, 0x09, struct gpiohandle_data), 64 bytes.
const gpioHandleSetValuesIoctl = 0xC040B409

const gpioHandlesMax = 64

// gpioHandleRequest mirrors struct gpiohandle_request.
type gpioHandleRequest struct {
	LineOffsets  [gpioHandlesMax]uint32
	Flags        uint32
	DefaultVals  [gpioHandlesMax]uint8
	ConsumerLabel [32]byte
	Lines        uint32
	Fd           int32
}

// gpioHandleData mirrors struct gpiohandle_data.
type gpioHandleData struct {
	Values [gpioHandlesMax]uint8
}

const (
	gpioHandleRequestOutput = 1 << 1
)

// spiIOCTransfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
type spiIOCTransfer struct {
	TxBuf       uint64
	RxBuf       uint64
	Len         uint32
	SpeedHz     uint32
	DelayUsecs  uint16
	BitsPerWord uint8
	CSChange    uint8
	TxNBits     uint8
	RxNBits     uint8
	WordDelay   uint8
	Pad         uint8
}

const (
	spiIOCRDMode      = 0x80016B01
	spiIOCWRMode      = 0x40016B01
	spiIOCRDBitsPerWord = 0x80016B03
	spiIOCWRBitsPerWord = 0x40016B03
	spiIOCRDMaxSpeedHz  = 0x80046B04
	spiIOCWRMaxSpeedHz  = 0x40046B04
)
