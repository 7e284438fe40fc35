package main

import (
	"fmt"
	"os"

	"github.com/ili9488fbd/fbdaemon/cmd"
	"github.com/ili9488fbd/fbdaemon/internal/config"
	"github.com/ili9488fbd/fbdaemon/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	opts := config.Defaults()

	root := &cobra.Command{
		Use:   "fbd",
		Short: "Copies a shared-memory RGB framebuffer to an ILI9488 SPI panel",
	}
	opts.RegisterFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := config.LoadConfig(opts, c); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"peripheral": opts.LoggingLevel,
				"dmapool":    opts.LoggingLevel,
				"arena":      opts.LoggingLevel,
				"rotate":     opts.LoggingLevel,
				"spi":        opts.LoggingLevel,
				"frameloop":  opts.LoggingLevel,
				"config":     opts.LoggingLevel,
				"metrics":    opts.LoggingLevel,
				"events":     opts.LoggingLevel,
			},
		})
		return nil
	}

	root.AddCommand(cmd.NewRunCmd(opts))
	root.AddCommand(cmd.NewValidateCmd(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
