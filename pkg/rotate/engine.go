// Package rotate implements the pending→back buffer copy with an optional
// 2D rotation: a BCM DMA channel fast path when both buffers are bus
// addressable, and a CPU tiled/linear fallback otherwise.
package rotate

import (
	"errors"
	"fmt"
	"time"
)

var errDMATimeout = errors.New("rotate: dma channel timed out")

// Channel is the DMA channel this engine owns exclusively while the
// daemon runs.
const Channel = 7

// register byte offsets within a DMA channel's 4 KiB MMIO window.
const (
	regCS       = 0x00
	regTI       = 0x08
	regSourceAD = 0x0C
	regDestAD   = 0x10
	regLen      = 0x14
	regStride   = 0x18
)

const (
	csActive = 1 << 0
	csReset  = 1 << 31

	tiSrcInc        = 1 << 8
	tiDestInc       = 1 << 4
	ti2D            = 1 << 1
	tiWaitWriteResp = 1 << 28
)

const (
	pollInterval = time.Millisecond
	dmaDeadline  = time.Second
)

// MMIO is the minimal register-window contract Engine needs from
// pkg/peripheral, kept narrow so tests can supply an in-memory fake.
type MMIO interface {
	DMAWindow(channel int) ([]byte, error)
}

// Engine performs the pending→back copy, preferring the BCM DMA 2D
// transfer and falling back to a CPU routine when hardware is unavailable
// or times out. The hwWindow field is nil in fallback-only mode, so every
// hardware-path check is a single nil check away from the CPU-only case.
type Engine struct {
	hwWindow []byte
}

// New builds an Engine. If mmio is nil, or mapping the DMA channel fails,
// the engine silently operates in CPU-only mode; New itself logs nothing
// about why direct MMIO access was unavailable.
func New(mmio MMIO) *Engine {
	e := &Engine{}
	if mmio == nil {
		return e
	}
	win, err := mmio.DMAWindow(Channel)
	if err != nil {
		return e
	}
	e.hwWindow = win
	return e
}

// HardwareAvailable reports whether the DMA MMIO window was successfully
// mapped. It does not by itself mean a given rotate call will use the
// hardware path; that also requires both buffers to carry a bus address
// and the rotation to not be 180°.
func (e *Engine) HardwareAvailable() bool {
	return e.hwWindow != nil
}

// Rotate copies src (the pending buffer, W×H) into dst (the back buffer),
// rotating by degrees (one of 0, 90, 180, 270). srcBusAddr/dstBusAddr are
// the buffers' bus addresses; when either is zero, or degrees is 180 (the
// DMA stride register is an unsigned line pitch and cannot express the
// reversed read order a 180° rotation needs), Rotate goes straight to the
// CPU fallback without attempting the hardware path. usedHW reports
// whether the hardware path completed the copy; it is false whenever the
// CPU fallback produced dst, including after a failed or timed-out
// hardware attempt. timedOut reports whether the
// hardware path was attempted and specifically missed its 1s deadline
// (distinct from hardware simply being unavailable), so callers can tell
// a DMA timeout apart from an ordinary CPU-fallback rotation.
func (e *Engine) Rotate(dst, src []byte, width, height, degrees int, srcBusAddr, dstBusAddr uint32) (usedHW, timedOut bool, err error) {
	if degrees != 0 && degrees != 90 && degrees != 180 && degrees != 270 {
		return false, false, fmt.Errorf("rotate: invalid degrees %d", degrees)
	}

	if e.HardwareAvailable() && degrees != 180 && srcBusAddr != 0 && dstBusAddr != 0 {
		dmaErr := e.rotateDMA(width, height, degrees, srcBusAddr, dstBusAddr)
		if dmaErr == nil {
			return true, false, nil
		}
		timedOut = errors.Is(dmaErr, errDMATimeout)
		// Hardware path failed or timed out; fall through to CPU.
	}

	e.rotateSoftware(dst, src, width, height, degrees)
	return false, timedOut, nil
}

func (e *Engine) rotateSoftware(dst, src []byte, width, height, degrees int) {
	switch degrees {
	case 0:
		rotateCPU0(dst, src)
	case 90:
		rotateCPU90(dst, src, width, height)
	case 180:
		rotateCPU180(dst, src, width, height)
	case 270:
		rotateCPU270(dst, src, width, height)
	}
}

// rotateDMA programs DMA channel 7's registers directly (not through an
// in-memory control block descriptor), polls CS.ACTIVE, and self-resets
// the channel if it misses its 1 second deadline.
func (e *Engine) rotateDMA(width, height, degrees int, srcBusAddr, dstBusAddr uint32) error {
	xlen, ylen := width*bpp, height
	if degrees == 90 || degrees == 270 {
		xlen, ylen = height*bpp, width
	}

	stride := (uint32(ylen-1) << 16) | (uint32(xlen) & 0xFFFF)
	ti := uint32(tiSrcInc | tiDestInc | ti2D | tiWaitWriteResp)

	writeReg(e.hwWindow, regSourceAD, srcBusAddr)
	writeReg(e.hwWindow, regDestAD, dstBusAddr)
	writeReg(e.hwWindow, regLen, uint32(xlen*ylen))
	writeReg(e.hwWindow, regStride, stride)
	writeReg(e.hwWindow, regTI, ti)
	writeReg(e.hwWindow, regCS, csActive)

	deadline := time.Now().Add(dmaDeadline)
	for {
		cs := readReg(e.hwWindow, regCS)
		if cs&csActive == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			writeReg(e.hwWindow, regCS, csReset)
			return fmt.Errorf("%w: channel %d after %s", errDMATimeout, Channel, dmaDeadline)
		}
		time.Sleep(pollInterval)
	}
}

func writeReg(win []byte, offset int, value uint32) {
	win[offset] = byte(value)
	win[offset+1] = byte(value >> 8)
	win[offset+2] = byte(value >> 16)
	win[offset+3] = byte(value >> 24)
}

func readReg(win []byte, offset int) uint32 {
	return uint32(win[offset]) |
		uint32(win[offset+1])<<8 |
		uint32(win[offset+2])<<16 |
		uint32(win[offset+3])<<24
}

// OutputDims returns the dimensions a rotate by degrees produces for an
// input of (width, height): unchanged for 0/180, swapped for 90/270.
func OutputDims(width, height, degrees int) (int, int) {
	if degrees == 90 || degrees == 270 {
		return height, width
	}
	return width, height
}
