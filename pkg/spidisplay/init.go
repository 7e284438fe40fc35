package spidisplay

import "time"

// DCS command bytes used by the ILI9488 initialization sequence and
// per-frame transmission.
const (
	cmdPositiveGamma    = 0xE0
	cmdNegativeGamma    = 0xE1
	cmdPowerControl1    = 0xC0
	cmdPowerControl2    = 0xC1
	cmdVCOM             = 0xC5
	cmdMADCTL           = 0x36
	cmdPixelFormat      = 0x3A
	cmdInterfaceMode    = 0xB0
	cmdFrameRate        = 0xB1
	cmdInversionCtl     = 0xB4
	cmdInversionOff     = 0x20
	cmdDisplayFunction  = 0xB6
	cmdImageFunction    = 0xE9
	cmdAdjust           = 0xF7
	cmdSleepOut         = 0x11
	cmdDisplayOn        = 0x29
	cmdIdleOff          = 0x38
	cmdNormalDisplay    = 0x13
	cmdColumnAddress    = 0x2A
	cmdPageAddress      = 0x2B
	cmdMemoryWrite      = 0x2C
)

// initStep is one command/data pair of the panel initialization sequence.
type initStep struct {
	cmd   byte
	data  []byte
	delay bool // if true, sleep sleepOutDelay after issuing this step
}

// initSequence is the gamma/power/VCOM/MADCTL register table the panel
// needs programmed before it will accept frame data.
var initSequence = []initStep{
	{cmd: cmdPositiveGamma, data: []byte{0x0F, 0x1F, 0x1C, 0x0C, 0x0F, 0x08, 0x48, 0x98, 0x37, 0x0A, 0x13, 0x04, 0x11, 0x0D, 0x00}},
	{cmd: cmdNegativeGamma, data: []byte{0x0F, 0x32, 0x2E, 0x0B, 0x0D, 0x05, 0x47, 0x75, 0x37, 0x06, 0x10, 0x03, 0x24, 0x20, 0x00}},
	{cmd: cmdPowerControl1, data: []byte{0x17, 0x15}},
	{cmd: cmdPowerControl2, data: []byte{0x41}},
	{cmd: cmdVCOM, data: []byte{0x00, 0x12, 0x80}},
	{cmd: cmdMADCTL, data: []byte{0x48}},
	{cmd: cmdPixelFormat, data: []byte{0x66}},
	{cmd: cmdInterfaceMode, data: []byte{0x80}},
	{cmd: cmdFrameRate, data: []byte{0xA0}},
	{cmd: cmdInversionCtl, data: []byte{0x02}},
	{cmd: cmdInversionOff},
	{cmd: cmdDisplayFunction, data: []byte{0x02, 0x02}},
	{cmd: cmdImageFunction, data: []byte{0x00}},
	{cmd: cmdAdjust, data: []byte{0xA9, 0x51, 0x2C, 0x82}},
	{cmd: cmdSleepOut, delay: true},
	{cmd: cmdDisplayOn},
	{cmd: cmdIdleOff},
	{cmd: cmdNormalDisplay},
}

// runInitSequence issues every step of initSequence at t.activeSpeed
// (the low init clock; newTransport sets activeSpeed to initHz before
// calling this and restores speedHz afterward).
func (t *Transport) runInitSequence() error {
	for _, step := range initSequence {
		if err := t.sendCommand(step.cmd); err != nil {
			return err
		}
		if len(step.data) > 0 {
			if err := t.sendData(step.data); err != nil {
				return err
			}
		}
		if step.delay {
			time.Sleep(sleepOutDelay)
		}
	}
	return nil
}
