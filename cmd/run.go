package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ili9488fbd/fbdaemon/internal/config"
	"github.com/ili9488fbd/fbdaemon/internal/events"
	"github.com/ili9488fbd/fbdaemon/internal/frameloop"
	"github.com/ili9488fbd/fbdaemon/internal/logging"
	"github.com/ili9488fbd/fbdaemon/pkg/arena"
	"github.com/ili9488fbd/fbdaemon/pkg/displayfb"
	"github.com/ili9488fbd/fbdaemon/pkg/dmapool"
	"github.com/ili9488fbd/fbdaemon/pkg/peripheral"
	"github.com/ili9488fbd/fbdaemon/pkg/rotate"
	"github.com/ili9488fbd/fbdaemon/pkg/spidisplay"
	"github.com/spf13/cobra"
)

// NewRunCmd builds the run subcommand: the daemon's steady-state path,
// wiring the peripheral map, DMA buffer pool, triple-buffer arena, rotate
// engine, and SPI transport into a FrameLoop.
func NewRunCmd(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the display daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts)
		},
	}
}

// stubTransport satisfies frameloop.Transmitter for --dry-run; it discards
// every frame instead of opening spidev/gpiochip, letting the frame loop
// and arena be exercised on a machine with no panel attached.
type stubTransport struct{}

func (stubTransport) Transmit(pixels []byte, width, height uint32) error { return nil }

func runDaemon(opts *config.Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.GetLogger("frameloop")
	width, height := uint32(opts.Width), uint32(opts.Height)

	pool, err := dmapool.Allocate(displayfb.BufferSize(width, height))
	if err != nil {
		return fmt.Errorf("allocate dma buffers: %w", err)
	}
	logger.Info("dma buffer pool allocated", "strategy", pool.Strategy(), "can_dma_rotate", pool.CanDMARotate())

	a, err := arena.Create(opts.ShmName, width, height, uint32(opts.Rotation), pool)
	if err != nil {
		pool.Release()
		return fmt.Errorf("create arena: %w", err)
	}

	var mmio rotate.MMIO
	if pmap, err := peripheral.Open(); err != nil {
		logger.Warn("peripheral map unavailable, rotate falls back to CPU only", "error", err)
	} else {
		defer pmap.Close()
		mmio = pmap
	}
	rotateEngine := rotate.New(mmio)

	var transmitter frameloop.Transmitter
	var transport *spidisplay.Transport
	if opts.DryRun {
		logger.Info("dry-run: using in-memory SPI stub")
		transmitter = stubTransport{}
	} else {
		spiOpts := spidisplay.Options{
			SpiDevice:  opts.SpiDevice,
			GpioChip:   opts.GpioChip,
			SpeedHz:    uint32(opts.SpiSpeedHz),
			InitHz:     uint32(opts.SpiInitHz),
			ChunkBytes: opts.ChunkBytes,
		}
		transport, err = spidisplay.Open(spiOpts, uint32(opts.DCGpio), uint32(opts.ResetGpio))
		if err != nil {
			a.Close()
			return fmt.Errorf("open spi transport: %w", err)
		}
		transmitter = transport
	}

	bus := events.New()
	bus.Subscribe(func(e events.FrameDroppedEvent) {
		logger.Warn("frame dropped", "reason", e.Reason)
	})
	bus.Subscribe(func(e events.DMATimeoutEvent) {
		logger.Warn("dma timeout", "rotation", e.Rotation)
	})
	bus.Subscribe(func(e events.RotateFallbackEvent) {
		logger.Debug("rotate fallback engaged", "rotation", e.Rotation, "reason", e.Reason)
	})
	bus.Subscribe(func(e events.ProducerConnectedEvent) {
		logger.Info("producer connected")
	})
	bus.Subscribe(func(e events.ProducerDisconnectedEvent) {
		logger.Info("producer disconnected", "last_frame_seq", e.LastFrameSeq)
	})

	loop := frameloop.New(a, transmitter, rotateEngine, bus, logger, frameloop.Options{
		Width:       width,
		Height:      height,
		RotationDeg: opts.Rotation,
		MaxFPS:      float64(opts.MaxFPS),
		FPSOverlay:  opts.FPSOverlay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		loop.Stop()
	}()

	runErr := loop.Run(ctx)

	if transport != nil {
		if closeErr := transport.Close(); closeErr != nil {
			logger.Warn("error closing spi transport", "error", closeErr)
		}
	}
	if closeErr := a.Close(); closeErr != nil {
		logger.Warn("error closing arena", "error", closeErr)
	}

	return runErr
}
