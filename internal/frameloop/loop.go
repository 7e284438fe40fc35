// Package frameloop implements the daemon's steady-state per-iteration
// orchestration: drain the producer's pending frame into DMA-coherent
// storage, rotate it (directly to front for 0°, through the back buffer
// otherwise), stream it to the panel, and pace to the configured frame
// rate.
package frameloop

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ili9488fbd/fbdaemon/internal/events"
	"github.com/ili9488fbd/fbdaemon/internal/metrics"
	"github.com/ili9488fbd/fbdaemon/pkg/displayfb"
	"github.com/ili9488fbd/fbdaemon/pkg/dmapool"
	"github.com/ili9488fbd/fbdaemon/pkg/rotate"
)

// Arena is the subset of *arena.Arena's behavior FrameLoop drives, kept
// narrow so tests can supply an in-memory fake instead of a real
// shared-memory mapping.
type Arena interface {
	Header() *displayfb.Header
	MirrorPendingSlice() []byte
	FrontBuffer() dmapool.Buffer
	BackBuffer() dmapool.Buffer
	PendingBuffer() dmapool.Buffer
	Rotate3()
	SwapBackFront()
	SetDaemonReady(bool)
}

// Transmitter is the subset of *spidisplay.Transport FrameLoop drives.
type Transmitter interface {
	Transmit(pixels []byte, width, height uint32) error
}

// Rotator is the subset of *rotate.Engine FrameLoop drives.
type Rotator interface {
	Rotate(dst, src []byte, width, height, degrees int, srcBusAddr, dstBusAddr uint32) (usedHW, timedOut bool, err error)
}

// Overlay rasterizes diagnostic text into a pending buffer before
// transmission. Rendering itself is the overlay implementation's concern;
// FrameLoop only supplies the buffer, geometry, and measured frame rate.
type Overlay interface {
	Draw(buf []byte, width, height uint32, stride int, fps float64)
}

// Options configures a Loop.
type Options struct {
	Width, Height uint32
	RotationDeg   int
	MaxFPS        float64
	FPSOverlay    bool
}

// Loop runs the steady-state iteration until Stop is called or its context
// is cancelled.
type Loop struct {
	arena   Arena
	spi     Transmitter
	rotate  Rotator
	overlay Overlay
	bus     *events.Bus
	logger  *slog.Logger

	width, height uint32
	rotationDeg   int
	maxFPS        float64
	fpsOverlay    bool

	lastFrameCounter uint32
	prevAppConnected bool
	running          atomic.Bool
}

// New builds a Loop. bus and logger may be nil; overlay is attached
// separately via SetOverlay since it is only wired up when --fps-overlay
// is requested.
func New(a Arena, spi Transmitter, rotateEngine Rotator, bus *events.Bus, logger *slog.Logger, opts Options) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		arena:       a,
		spi:         spi,
		rotate:      rotateEngine,
		bus:         bus,
		logger:      logger,
		width:       opts.Width,
		height:      opts.Height,
		rotationDeg: opts.RotationDeg,
		maxFPS:      opts.MaxFPS,
		fpsOverlay:  opts.FPSOverlay,
	}
	l.running.Store(true)
	return l
}

// SetOverlay attaches an FPS-overlay renderer. A nil overlay (the default)
// disables rasterization even if FPSOverlay was requested.
func (l *Loop) SetOverlay(o Overlay) { l.overlay = o }

// Stop clears the running flag; the in-flight iteration completes and Run
// returns after it. Safe to call from a signal handler.
func (l *Loop) Stop() { l.running.Store(false) }

// Run executes iterations until Stop is called or ctx is cancelled,
// publishing DaemonReady for the arena's lifetime.
func (l *Loop) Run(ctx context.Context) error {
	l.arena.SetDaemonReady(true)
	defer l.arena.SetDaemonReady(false)

	var framesInWindow int
	windowStart := time.Now()
	currentFPS := 0.0

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		iterStart := time.Now()
		transmitted, acquired := l.runIteration(currentFPS)
		if transmitted {
			framesInWindow++
		}

		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			currentFPS = float64(framesInWindow) / elapsed.Seconds()
			metrics.SetFPS(currentFPS)
			framesInWindow = 0
			windowStart = time.Now()
		}

		if acquired {
			l.pace(iterStart)
		}
	}
	return nil
}

// runIteration performs one pass of the steady-state loop.
// acquired reports whether the pending semaphore was taken (false means
// the iteration only slept 1 ms and did nothing else); transmitted reports
// whether a frame reached spi.Transmit successfully.
func (l *Loop) runIteration(fps float64) (transmitted, acquired bool) {
	header := l.arena.Header()

	l.observeProducerLiveness(header)

	if !displayfb.TrySemAcquire(&header.PendingSem) {
		time.Sleep(time.Millisecond)
		return false, false
	}

	counter := header.FrameCounter
	if counter != l.lastFrameCounter {
		copy(l.arena.PendingBuffer().CPU(), l.arena.MirrorPendingSlice())
		l.lastFrameCounter = counter
		metrics.FrameConsumed()
	}
	displayfb.SemRelease(&header.PendingSem)

	if l.fpsOverlay && l.overlay != nil {
		stride := int(l.width) * int(displayfb.BytesPerPixel)
		l.overlay.Draw(l.arena.PendingBuffer().CPU(), l.width, l.height, stride, fps)
	}

	if l.rotationDeg == 0 {
		l.arena.Rotate3()
		return l.transmitFront(l.width, l.height)
	}

	pending := l.arena.PendingBuffer()
	back := l.arena.BackBuffer()
	usedHW, timedOut, err := l.rotate.Rotate(back.CPU(), pending.CPU(), int(l.width), int(l.height), l.rotationDeg, pending.BusAddr(), back.BusAddr())
	if err != nil {
		l.dropFrame("rotate", err)
		return false, true
	}
	if timedOut {
		metrics.DMATimeout()
		if l.bus != nil {
			l.bus.Publish(events.DMATimeoutEvent{Timestamp: time.Now(), Rotation: l.rotationDeg})
		}
	}
	if !usedHW {
		metrics.RotateFallback(l.rotationDeg)
		if l.bus != nil {
			reason := "hardware path unavailable or rejected"
			if timedOut {
				reason = "dma timeout"
			}
			l.bus.Publish(events.RotateFallbackEvent{Timestamp: time.Now(), Rotation: l.rotationDeg, Reason: reason})
		}
	}

	l.arena.SwapBackFront()
	outW, outH := rotate.OutputDims(int(l.width), int(l.height), l.rotationDeg)
	return l.transmitFront(uint32(outW), uint32(outH))
}

// transmitFront streams the current front buffer to the panel and records
// the SPI byte-count and error-rate metrics the transport itself has no
// visibility into (it only sees one chunk at a time).
func (l *Loop) transmitFront(width, height uint32) (transmitted, acquired bool) {
	// The DMA buffer is page-aligned and may be longer than one frame.
	frameBytes := int(width) * int(height) * int(displayfb.BytesPerPixel)
	front := l.arena.FrontBuffer().CPU()[:frameBytes]
	if err := l.spi.Transmit(front, width, height); err != nil {
		metrics.SPIChunkError()
		l.dropFrame("transmit", err)
		return false, true
	}
	metrics.SPIBytesSent(len(front))
	metrics.FrameTransmitted()
	return true, true
}

func (l *Loop) dropFrame(stage string, err error) {
	l.logger.Warn("dropping frame", "stage", stage, "error", err)
	metrics.FrameDropped()
	if l.bus != nil {
		l.bus.Publish(events.FrameDroppedEvent{Timestamp: time.Now(), Reason: stage + ": " + err.Error()})
	}
}

func (l *Loop) observeProducerLiveness(header *displayfb.Header) {
	connected := header.AppConnected != 0
	metrics.SetProducerConnected(connected)
	if connected == l.prevAppConnected {
		return
	}
	l.prevAppConnected = connected
	if l.bus == nil {
		return
	}
	if connected {
		l.bus.Publish(events.ProducerConnectedEvent{Timestamp: time.Now()})
	} else {
		l.bus.Publish(events.ProducerDisconnectedEvent{Timestamp: time.Now(), LastFrameSeq: l.lastFrameCounter})
	}
}

// pace sleeps so the total iteration time is at least 1e6/MaxFPS
// microseconds. MaxFPS<=0 disables pacing.
func (l *Loop) pace(iterStart time.Time) {
	if l.maxFPS <= 0 {
		return
	}
	target := time.Duration(1e6/l.maxFPS) * time.Microsecond
	if elapsed := time.Since(iterStart); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
