package spidisplay

import "fmt"

// Transmit sends one frame to the panel: column address, page address,
// memory write command, then the pixel data stream. pixels must be
// exactly width*height*3 bytes.
func (t *Transport) Transmit(pixels []byte, width, height uint32) error {
	want := int(width) * int(height) * 3
	if len(pixels) != want {
		return fmt.Errorf("transmit: got %d bytes, want %d", len(pixels), want)
	}

	if err := t.sendCommand(cmdColumnAddress); err != nil {
		return err
	}
	if err := t.sendData(addressWindow(width)); err != nil {
		return err
	}

	if err := t.sendCommand(cmdPageAddress); err != nil {
		return err
	}
	if err := t.sendData(addressWindow(height)); err != nil {
		return err
	}

	if err := t.sendCommand(cmdMemoryWrite); err != nil {
		return err
	}
	return t.sendData(pixels)
}

// addressWindow builds the 4-byte [0,0,hi,lo] address-window parameter
// block for a column or page address command spanning 0..n-1.
func addressWindow(n uint32) []byte {
	end := n - 1
	return []byte{0, 0, byte(end >> 8), byte(end & 0xFF)}
}

// supportsBusAddrTransfer reports whether TransmitBusAddr's direct-DMA
// path is enabled. Always false for now: the spidev path still copies
// through the kernel regardless of which address space the source buffer
// lives in, so there is no zero-copy win without a dedicated SPI-FIFO DMA
// driver this transport does not have; the hook stays in place for that
// future work.
func (t *Transport) supportsBusAddrTransfer() bool {
	return false
}

// TransmitBusAddr is the bus-address entry point for sending a frame. It
// always calls Transmit with the supplied pixels: busAddr is not mapped
// through /dev/mem or read in any other way, whether or not it is zero and
// whatever supportsBusAddrTransfer reports.
func (t *Transport) TransmitBusAddr(pixels []byte, width, height, busAddr uint32) error {
	if !t.supportsBusAddrTransfer() || busAddr == 0 {
		return t.Transmit(pixels, width, height)
	}
	return t.Transmit(pixels, width, height)
}
