package cmd

import (
	"fmt"

	"github.com/ili9488fbd/fbdaemon/internal/config"
	"github.com/ili9488fbd/fbdaemon/pkg/displayfb"
	"github.com/spf13/cobra"
)

// NewValidateCmd builds the validate subcommand: a geometry/rotation
// sanity check that runs ahead of touching any device, so a bad
// configuration is caught before spidev or gpiochip is ever opened.
func NewValidateCmd(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check panel geometry and rotation without touching hardware",
		Long: `Confirms width, height, and rotation are sane and that the
resulting frame size fits a page-aligned buffer, before run opens any
device file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts)
		},
	}
	return cmd
}

func runValidate(opts *config.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	width, height := uint32(opts.Width), uint32(opts.Height)
	frameBytes := int64(width) * int64(height) * int64(displayfb.BytesPerPixel)
	bufSize := displayfb.BufferSize(width, height)
	if frameBytes > bufSize {
		return fmt.Errorf("validate: frame size %d exceeds page-aligned buffer size %d", frameBytes, bufSize)
	}

	fmt.Printf("geometry OK: %dx%d, rotation=%d, frame=%d bytes, buffer=%d bytes (page-aligned), arena=%d bytes\n",
		width, height, opts.Rotation, frameBytes, bufSize, displayfb.ArenaSize(width, height))
	return nil
}
