// Package spidisplay drives an ILI9488 panel over spidev: MIPI-DCS
// initialization, D/C-gated command/parameter framing, and chunked
// per-frame pixel transmission.
package spidisplay

import (
	"fmt"
	"time"
)

const (
	// Reset pulse timing the ILI9488 datasheet specifies for a hardware reset.
	resetLowDuration  = 120 * time.Millisecond
	resetHighDuration = 120 * time.Millisecond
	sleepOutDelay     = 120 * time.Millisecond

	defaultSpeedHz      = 65_000_000
	defaultInitSpeedHz  = 4_000_000
	defaultChunkBytes   = 65536
)

// lineDC and lineRESET are the indices bus.setLine uses to address the
// panel's two GPIO output lines.
const (
	lineDC = iota
	lineRESET
)

// bus is the low-level transfer contract Transport drives the DCS command
// and pixel-data framing through: toggle a GPIO line, or clock bytes out
// over SPI at a given speed. The real implementation (hardwareBus, linux-
// only) wraps spidev and gpiochip ioctls; tests supply a fake that records
// calls instead, so the framing logic in this file needs no real hardware
// to exercise.
type bus interface {
	setLine(index int, value uint8) error
	transferAt(speedHz uint32, data []byte) error
	close() error
}

// Options configures Open.
type Options struct {
	SpiDevice  string
	GpioChip   string
	SpeedHz    uint32
	InitHz     uint32
	ChunkBytes int
}

// DefaultOptions returns this driver's documented defaults; Open uses them
// for every field a caller leaves at its zero value.
func DefaultOptions() Options {
	return Options{
		SpiDevice:  "/dev/spidev0.0",
		GpioChip:   "/dev/gpiochip0",
		SpeedHz:    defaultSpeedHz,
		InitHz:     defaultInitSpeedHz,
		ChunkBytes: defaultChunkBytes,
	}
}

// Transport owns the SPI bus and the two GPIO output lines (D/C and
// RESET) this daemon's ILI9488 panel needs.
type Transport struct {
	bus         bus
	speedHz     uint32
	initHz      uint32
	chunk       int
	activeSpeed uint32
}

// newTransport wires a Transport onto an already-open bus and runs the
// panel reset pulse and DCS initialization sequence at initHz before
// reverting to speedHz for steady-state transmission.
func newTransport(b bus, opts Options) (*Transport, error) {
	t := &Transport{
		bus:     b,
		speedHz: opts.SpeedHz,
		initHz:  opts.InitHz,
		chunk:   opts.ChunkBytes,
	}
	t.activeSpeed = t.initHz

	if err := t.resetPanel(); err != nil {
		b.close()
		return nil, err
	}
	if err := t.runInitSequence(); err != nil {
		b.close()
		return nil, err
	}
	t.activeSpeed = t.speedHz

	return t, nil
}

func (t *Transport) resetPanel() error {
	if err := t.bus.setLine(lineRESET, 0); err != nil {
		return fmt.Errorf("reset low: %w", err)
	}
	time.Sleep(resetLowDuration)
	if err := t.bus.setLine(lineRESET, 1); err != nil {
		return fmt.Errorf("reset high: %w", err)
	}
	time.Sleep(resetHighDuration)
	return nil
}

// sendCommand lowers D/C to 0 and sends one command byte at the current
// transfer speed.
func (t *Transport) sendCommand(cmd byte) error {
	if err := t.bus.setLine(lineDC, 0); err != nil {
		return err
	}
	return t.bus.transferAt(t.activeSpeed, []byte{cmd})
}

// sendData raises D/C to 1 and sends the given parameter/pixel bytes,
// split into chunks no larger than t.chunk.
func (t *Transport) sendData(data []byte) error {
	if err := t.bus.setLine(lineDC, 1); err != nil {
		return err
	}
	for off := 0; off < len(data); off += t.chunk {
		end := off + t.chunk
		if end > len(data) {
			end = len(data)
		}
		if err := t.bus.transferAt(t.activeSpeed, data[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying bus (GPIO line handle, gpiochip fd, and
// spidev fd, in reverse acquisition order).
func (t *Transport) Close() error {
	return t.bus.close()
}
