// Package main implements pjq, a command line runner for query scripts.
//
// Usage:
//
//	pjq run items.yaml --html page.html
//	pjq run items.yaml --url https://example.com --browser --output yaml
//	pjq check scripts/*.yaml
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/config"
	"github.com/juiceqa/puppeteer-jquery/internal/infrastructure/logging"
)

// cli holds the state shared by all commands.
type cli struct {
	cfg     *config.Config
	logger  *logging.Logger
	verbose bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: config.LoadOrDefault()}

	root := &cobra.Command{
		Use:           "pjq",
		Short:         "Run jQuery query scripts against HTML pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.cfg.Logging.Level = "debug"
				c.cfg.Logging.Development = true
			}
			logger, err := logging.FromConfig(c.cfg.Logging, "stderr")
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				c.logger.Close()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", time.Minute, "Operation timeout")
	root.PersistentFlags().StringVar(&c.cfg.Library.Path, "jquery", c.cfg.Library.Path, "Path to a jQuery build to inject")

	root.AddCommand(newRunCmd(c))
	root.AddCommand(newCheckCmd(c))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pjq:", err)
		os.Exit(1)
	}
}
