package rotate

import (
	"bytes"
	"testing"
)

type fakeMMIO struct {
	win []byte
	err error
}

func (f *fakeMMIO) DMAWindow(channel int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.win, nil
}

func TestNewFallsBackToCPUOnlyWithoutMMIO(t *testing.T) {
	e := New(nil)
	if e.HardwareAvailable() {
		t.Error("HardwareAvailable() = true with nil MMIO")
	}
}

func TestNewFallsBackToCPUOnlyOnMapError(t *testing.T) {
	e := New(&fakeMMIO{err: errPermissionDenied})
	if e.HardwareAvailable() {
		t.Error("HardwareAvailable() = true after failed DMAWindow")
	}
}

func TestRotateWithoutHardwareUsesCPU(t *testing.T) {
	e := New(nil)
	src := s1Pixels()
	dst := make([]byte, len(src))

	usedHW, _, err := e.Rotate(dst, src, 4, 2, 0, 0x1000, 0x2000)
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if usedHW {
		t.Error("usedHW = true without a mapped DMA window")
	}
	if !bytes.Equal(dst, src) {
		t.Errorf("dst = %v, want %v (0 degrees is a memcpy)", dst, src)
	}
}

func TestRotateRejectsInvalidDegrees(t *testing.T) {
	e := New(nil)
	src := s1Pixels()
	dst := make([]byte, len(src))

	_, _, err := e.Rotate(dst, src, 4, 2, 45, 0, 0)
	if err == nil {
		t.Fatal("expected error for invalid rotation degrees")
	}
}

func TestRotate180NeverUsesHardwarePath(t *testing.T) {
	win := make([]byte, 4096)
	e := New(&fakeMMIO{win: win})
	if !e.HardwareAvailable() {
		t.Fatal("expected hardware available with a mapped window")
	}

	src := s1Pixels()
	dst := make([]byte, len(src))

	usedHW, _, err := e.Rotate(dst, src, 4, 2, 180, 0x1000, 0x2000)
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if usedHW {
		t.Error("usedHW = true for 180 degrees; spec requires routing 180 through the CPU fallback unconditionally")
	}
}

func TestRotateWithZeroBusAddrFallsBackToCPU(t *testing.T) {
	win := make([]byte, 4096)
	e := New(&fakeMMIO{win: win})

	src := s1Pixels()
	dst := make([]byte, len(src))

	usedHW, _, err := e.Rotate(dst, src, 4, 2, 90, 0, 0x2000)
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if usedHW {
		t.Error("usedHW = true with a zero source bus address")
	}
}

// TestRotateDMATimeoutReportsTimedOut covers the case where a mapped DMA
// window never clears CS.ACTIVE: Rotate must still fall back to the CPU
// path and report timedOut so callers can distinguish a missed 1s deadline
// from an ordinary CPU-fallback rotation.
func TestRotateDMATimeoutReportsTimedOut(t *testing.T) {
	win := make([]byte, 4096)
	writeReg(win, regCS, csActive) // pre-set so the poll loop never sees it clear
	e := New(&fakeMMIO{win: win})

	src := s1Pixels()
	dst := make([]byte, len(src))

	usedHW, timedOut, err := e.Rotate(dst, src, 4, 2, 90, 0x1000, 0x2000)
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if usedHW {
		t.Error("usedHW = true after a timed-out DMA attempt")
	}
	if !timedOut {
		t.Error("timedOut = false, want true after the 1s deadline was missed")
	}
	if !bytes.Equal(dst, rotateCPUExpected(src, 4, 2, 90)) {
		t.Error("dst does not match the CPU fallback's expected output")
	}
}

func rotateCPUExpected(src []byte, width, height, degrees int) []byte {
	dst := make([]byte, len(src))
	rotateCPUNaive(dst, src, width, height, degrees)
	return dst
}

func TestRegisterReadWriteRoundTrip(t *testing.T) {
	win := make([]byte, 4096)
	writeReg(win, regStride, 0xdeadbeef)
	if got := readReg(win, regStride); got != 0xdeadbeef {
		t.Errorf("readReg after writeReg = %#x, want %#x", got, 0xdeadbeef)
	}
}

var errPermissionDenied = &mmioError{"permission denied"}

type mmioError struct{ msg string }

func (e *mmioError) Error() string { return e.msg }
