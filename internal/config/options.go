package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options holds the fully resolved daemon configuration.
// Fields are tagged with their pflag name (`flag`) and environment
// variable suffix (`env`, prefixed with EnvPrefix) so LoadConfig can apply
// CLI flag > environment variable > struct default precedence.
type Options struct {
	Config string `flag:"config" env:"CONFIG"`

	ShmName  string `flag:"shm" env:"SHM_NAME"`
	Width    int    `flag:"width" env:"WIDTH"`
	Height   int    `flag:"height" env:"HEIGHT"`
	Rotation int    `flag:"rotation" env:"ROTATION"`

	FPSOverlay bool `flag:"fps-overlay" env:"FPS_OVERLAY"`
	MaxFPS     int  `flag:"max-fps" env:"MAX_FPS"`

	SpiDevice  string `flag:"spi-device" env:"SPI_DEVICE"`
	GpioChip   string `flag:"gpio-chip" env:"GPIO_CHIP"`
	DCGpio     int    `flag:"dc-gpio" env:"DC_GPIO"`
	ResetGpio  int    `flag:"reset-gpio" env:"RESET_GPIO"`
	SpiSpeedHz int    `flag:"spi-speed-hz" env:"SPI_SPEED_HZ"`
	SpiInitHz  int    `flag:"spi-init-speed-hz" env:"SPI_INIT_SPEED_HZ"`
	ChunkBytes int    `flag:"transfer-chunk-bytes" env:"TRANSFER_CHUNK_BYTES"`

	DryRun bool `flag:"dry-run" env:"DRY_RUN"`

	LoggingLevel  string `flag:"log-level" env:"LOG_LEVEL"`
	LoggingFormat string `flag:"log-format" env:"LOG_FORMAT"`
}

// Defaults returns an Options populated with the daemon's baked-in
// defaults, the values LoadConfig falls back to once flags, environment
// variables, and an optional TOML file have all been consulted.
func Defaults() *Options {
	return &Options{
		Rotation:      0,
		MaxFPS:        0,
		SpiDevice:     "/dev/spidev0.0",
		GpioChip:      "/dev/gpiochip0",
		DCGpio:        25,
		ResetGpio:     27,
		SpiSpeedHz:    65_000_000,
		SpiInitHz:     4_000_000,
		ChunkBytes:    65536,
		LoggingLevel:  "info",
		LoggingFormat: "text",
	}
}

// Validate checks the geometry and rotation invariants required before any
// device is touched: missing dimensions or an invalid rotation are
// configuration errors, reported to stderr with exit code 1 by the caller.
func (o *Options) Validate() error {
	if o.Width <= 0 {
		return fmt.Errorf("width must be > 0, got %d", o.Width)
	}
	if o.Height <= 0 {
		return fmt.Errorf("height must be > 0, got %d", o.Height)
	}
	switch o.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation must be one of 0, 90, 180, 270, got %d", o.Rotation)
	}
	return nil
}

// RegisterFlags defines every flag LoadConfig reads Changed state from,
// seeded with this Options' current values as their defaults (call after
// Defaults() to get the daemon's documented CLI defaults).
func (o *Options) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Config, "config", o.Config, "path to an optional TOML config file")

	fs.StringVar(&o.ShmName, "shm", o.ShmName, "POSIX shared memory name (leading / added if absent)")
	fs.IntVar(&o.Width, "width", o.Width, "panel width in pixels (required, >0)")
	fs.IntVar(&o.Height, "height", o.Height, "panel height in pixels (required, >0)")
	fs.IntVar(&o.Rotation, "rotation", o.Rotation, "rotation in degrees: one of 0, 90, 180, 270")

	fs.BoolVar(&o.FPSOverlay, "fps-overlay", o.FPSOverlay, "draw an FPS overlay onto each frame")
	fs.IntVar(&o.MaxFPS, "max-fps", o.MaxFPS, "frame pacing cap; 0 means unlimited")

	fs.StringVar(&o.SpiDevice, "spi-device", o.SpiDevice, "spidev device path")
	fs.StringVar(&o.GpioChip, "gpio-chip", o.GpioChip, "gpiochip device path")
	fs.IntVar(&o.DCGpio, "dc-gpio", o.DCGpio, "D/C GPIO line offset")
	fs.IntVar(&o.ResetGpio, "reset-gpio", o.ResetGpio, "RESET GPIO line offset")
	fs.IntVar(&o.SpiSpeedHz, "spi-speed-hz", o.SpiSpeedHz, "steady-state SPI clock speed")
	fs.IntVar(&o.SpiInitHz, "spi-init-speed-hz", o.SpiInitHz, "SPI clock speed during panel initialization")
	fs.IntVar(&o.ChunkBytes, "transfer-chunk-bytes", o.ChunkBytes, "maximum bytes per SPI_IOC_MESSAGE transfer")

	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun, "run the frame loop against an in-memory SPI stub instead of real hardware")

	fs.StringVar(&o.LoggingLevel, "log-level", o.LoggingLevel, "log level: debug, info, warn, error")
	fs.StringVar(&o.LoggingFormat, "log-format", o.LoggingFormat, "log format: text or json")
}
