package frameloop

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ili9488fbd/fbdaemon/internal/events"
	"github.com/ili9488fbd/fbdaemon/pkg/displayfb"
	"github.com/ili9488fbd/fbdaemon/pkg/dmapool"
)

type fakeBuffer struct {
	cpu     []byte
	busAddr uint32
}

func (b *fakeBuffer) CPU() []byte    { return b.cpu }
func (b *fakeBuffer) BusAddr() uint32 { return b.busAddr }
func (b *fakeBuffer) Size() int64    { return int64(len(b.cpu)) }

type fakeArena struct {
	header  *displayfb.Header
	mirror  []byte
	buffers [3]*fakeBuffer
	ready   bool
}

func newFakeArena(width, height uint32) *fakeArena {
	h := &displayfb.Header{}
	h.Init(width, height, 0)
	size := int64(width) * int64(height) * 3
	a := &fakeArena{header: h, mirror: make([]byte, size)}
	for i := range a.buffers {
		a.buffers[i] = &fakeBuffer{cpu: make([]byte, size)}
	}
	return a
}

func (a *fakeArena) Header() *displayfb.Header    { return a.header }
func (a *fakeArena) MirrorPendingSlice() []byte   { return a.mirror }
func (a *fakeArena) FrontBuffer() dmapool.Buffer  { return a.buffers[a.header.FrontIndex] }
func (a *fakeArena) BackBuffer() dmapool.Buffer   { return a.buffers[a.header.BackIndex] }
func (a *fakeArena) PendingBuffer() dmapool.Buffer { return a.buffers[a.header.PendingIndex] }

func (a *fakeArena) Rotate3() {
	front, back, pending := a.header.FrontIndex, a.header.BackIndex, a.header.PendingIndex
	a.header.FrontIndex, a.header.BackIndex, a.header.PendingIndex = pending, front, back
}

func (a *fakeArena) SwapBackFront() {
	a.header.FrontIndex, a.header.BackIndex = a.header.BackIndex, a.header.FrontIndex
}

func (a *fakeArena) SetDaemonReady(ready bool) { a.ready = ready }

type fakeTransmitter struct {
	calls [][]byte
	err   error
}

func (f *fakeTransmitter) Transmit(pixels []byte, width, height uint32) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, append([]byte{}, pixels...))
	return nil
}

type fakeRotator struct {
	calls    int
	usedHW   bool
	timedOut bool
	err      error
}

func (f *fakeRotator) Rotate(dst, src []byte, width, height, degrees int, srcBusAddr, dstBusAddr uint32) (bool, bool, error) {
	f.calls++
	if f.err != nil {
		return false, false, f.err
	}
	copy(dst, src)
	return f.usedHW, f.timedOut, nil
}

// eventWait is how long a test collects events after publishing them: the
// events bus delivers to subscribers asynchronously, off the publishing
// goroutine, so events have to be counted after they arrive.
const eventWait = 200 * time.Millisecond

// drain returns every value delivered on ch within wait.
func drain[T any](ch <-chan T, wait time.Duration) []T {
	var out []T
	deadline := time.After(wait)
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-deadline:
			return out
		}
	}
}

func TestRunIterationSkipsWhenSemLocked(t *testing.T) {
	a := newFakeArena(2, 2)
	displayfb.TrySemAcquire(&a.header.PendingSem) // lock it, don't release

	spi := &fakeTransmitter{}
	l := New(a, spi, &fakeRotator{}, nil, nil, Options{Width: 2, Height: 2})

	transmitted, acquired := l.runIteration(0)
	if acquired || transmitted {
		t.Errorf("runIteration = (transmitted=%v, acquired=%v), want (false, false)", transmitted, acquired)
	}
	if len(spi.calls) != 0 {
		t.Errorf("spi.Transmit called %d times, want 0", len(spi.calls))
	}
}

func TestRunIterationZeroDegreesUsesRotate3(t *testing.T) {
	a := newFakeArena(2, 2)
	pixels := bytes.Repeat([]byte{7}, 12)
	copy(a.mirror, pixels)
	a.header.FrameCounter = 1

	spi := &fakeTransmitter{}
	rotator := &fakeRotator{}
	l := New(a, spi, rotator, nil, nil, Options{Width: 2, Height: 2, RotationDeg: 0})

	transmitted, acquired := l.runIteration(0)
	if !transmitted || !acquired {
		t.Fatalf("runIteration = (%v,%v), want (true,true)", transmitted, acquired)
	}
	if rotator.calls != 0 {
		t.Errorf("rotator called %d times, want 0 for 0-degree path", rotator.calls)
	}
	if len(spi.calls) != 1 || !bytes.Equal(spi.calls[0], pixels) {
		t.Errorf("spi.calls = %v, want one call with %v", spi.calls, pixels)
	}
	if a.header.FrontIndex != 2 || a.header.BackIndex != 0 || a.header.PendingIndex != 1 {
		t.Errorf("indices after rotate3 = (%d,%d,%d), want (2,0,1)", a.header.FrontIndex, a.header.BackIndex, a.header.PendingIndex)
	}
}

func TestRunIterationNonZeroDegreesUsesRotateAndSwap(t *testing.T) {
	a := newFakeArena(2, 2)
	pixels := bytes.Repeat([]byte{9}, 12)
	copy(a.mirror, pixels)
	a.header.FrameCounter = 1

	spi := &fakeTransmitter{}
	rotator := &fakeRotator{usedHW: true}
	l := New(a, spi, rotator, nil, nil, Options{Width: 2, Height: 2, RotationDeg: 90})

	frontBefore := a.header.FrontIndex
	backBefore := a.header.BackIndex

	transmitted, acquired := l.runIteration(0)
	if !transmitted || !acquired {
		t.Fatalf("runIteration = (%v,%v), want (true,true)", transmitted, acquired)
	}
	if rotator.calls != 1 {
		t.Errorf("rotator called %d times, want 1", rotator.calls)
	}
	if a.header.FrontIndex != backBefore || a.header.BackIndex != frontBefore {
		t.Errorf("swap_back_front did not run: front=%d back=%d", a.header.FrontIndex, a.header.BackIndex)
	}
	if len(spi.calls) != 1 {
		t.Fatalf("spi.calls = %d, want 1", len(spi.calls))
	}
}

func TestRunIterationDropsFrameOnTransmitError(t *testing.T) {
	a := newFakeArena(2, 2)
	a.header.FrameCounter = 1

	bus := events.New()
	dropped := make(chan events.FrameDroppedEvent, 8)
	bus.Subscribe(func(e events.FrameDroppedEvent) { dropped <- e })

	spi := &fakeTransmitter{err: errors.New("ioctl failed")}
	l := New(a, spi, &fakeRotator{}, bus, nil, Options{Width: 2, Height: 2, RotationDeg: 0})

	transmitted, acquired := l.runIteration(0)
	if transmitted || !acquired {
		t.Fatalf("runIteration = (%v,%v), want (false,true)", transmitted, acquired)
	}
	got := drain(dropped, eventWait)
	if len(got) != 1 {
		t.Fatalf("FrameDroppedEvent count = %d, want 1", len(got))
	}
}

func TestRunIterationPublishesDMATimeoutEvent(t *testing.T) {
	a := newFakeArena(2, 2)
	a.header.FrameCounter = 1

	bus := events.New()
	timeoutCh := make(chan events.DMATimeoutEvent, 8)
	bus.Subscribe(func(e events.DMATimeoutEvent) { timeoutCh <- e })

	spi := &fakeTransmitter{}
	rotator := &fakeRotator{usedHW: false, timedOut: true}
	l := New(a, spi, rotator, bus, nil, Options{Width: 2, Height: 2, RotationDeg: 90})

	transmitted, acquired := l.runIteration(0)
	if !transmitted || !acquired {
		t.Fatalf("runIteration = (%v,%v), want (true,true)", transmitted, acquired)
	}
	timeouts := drain(timeoutCh, eventWait)
	if len(timeouts) != 1 {
		t.Fatalf("DMATimeoutEvent count = %d, want 1", len(timeouts))
	}
	if timeouts[0].Rotation != 90 {
		t.Errorf("DMATimeoutEvent.Rotation = %d, want 90", timeouts[0].Rotation)
	}
}

func TestRunIterationPublishesProducerConnectAndDisconnect(t *testing.T) {
	a := newFakeArena(2, 2)
	bus := events.New()
	connectedCh := make(chan events.ProducerConnectedEvent, 8)
	disconnectedCh := make(chan events.ProducerDisconnectedEvent, 8)
	bus.Subscribe(func(e events.ProducerConnectedEvent) { connectedCh <- e })
	bus.Subscribe(func(e events.ProducerDisconnectedEvent) { disconnectedCh <- e })

	l := New(a, &fakeTransmitter{}, &fakeRotator{}, bus, nil, Options{Width: 2, Height: 2})

	a.header.AppConnected = 1
	l.runIteration(0)
	a.header.AppConnected = 0
	l.runIteration(0)

	connected := len(drain(connectedCh, eventWait))
	disconnected := len(drain(disconnectedCh, eventWait))
	if connected != 1 {
		t.Errorf("connected events = %d, want 1", connected)
	}
	if disconnected != 1 {
		t.Errorf("disconnected events = %d, want 1", disconnected)
	}
}

func TestPaceSleepsUntilTargetDuration(t *testing.T) {
	a := newFakeArena(2, 2)
	l := New(a, &fakeTransmitter{}, &fakeRotator{}, nil, nil, Options{Width: 2, Height: 2, MaxFPS: 100})

	start := time.Now()
	l.pace(start)
	elapsed := time.Since(start)
	if elapsed < 9*time.Millisecond {
		t.Errorf("pace at 100fps elapsed = %s, want >= 10ms", elapsed)
	}
}

func TestPaceNoopWhenMaxFPSZero(t *testing.T) {
	a := newFakeArena(2, 2)
	l := New(a, &fakeTransmitter{}, &fakeRotator{}, nil, nil, Options{Width: 2, Height: 2, MaxFPS: 0})

	start := time.Now()
	l.pace(start)
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		t.Errorf("pace with MaxFPS=0 slept for %s, want near-zero", elapsed)
	}
}

// TestProducerConsumerNoDeadlock runs a producer goroutine performing 100
// write-counter-post iterations concurrently with Run consuming frames;
// afterward frame_counter must read 100 and the run loop must not have
// deadlocked.
func TestProducerConsumerNoDeadlock(t *testing.T) {
	a := newFakeArena(2, 2)
	spi := &fakeTransmitter{}
	l := New(a, spi, &fakeRotator{}, nil, nil, Options{Width: 2, Height: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	go func() {
		for i := 0; i < 100; i++ {
			for !displayfb.TrySemAcquire(&a.header.PendingSem) {
				time.Sleep(time.Microsecond)
			}
			a.header.FrameCounter++
			displayfb.SemRelease(&a.header.PendingSem)
		}
	}()

	deadline := time.After(time.Second)
	for a.header.FrameCounter != 100 {
		select {
		case <-deadline:
			t.Fatalf("frame_counter = %d after 1s, want 100 (no deadlock expected)", a.header.FrameCounter)
		default:
		}
	}

	l.Stop()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop/cancel within 1s")
	}

	if len(spi.calls) == 0 {
		t.Error("daemon consumed 0 frames, want at least 1")
	}
}
