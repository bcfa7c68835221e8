package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/script"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check <script>...",
		Short: "Validate query scripts and print their chains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.check(cmd, args)
		},
	}
}

func (c *cli) check(cmd *cobra.Command, paths []string) error {
	// chains are only rendered, never evaluated
	bridge := jquery.NewBridge(nil, jquery.Options{Logger: c.logger.Logger})

	var errs []error
	for _, path := range paths {
		s, err := script.ParseFile(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %v\n", err)
			errs = append(errs, err)
			continue
		}
		chain, accessor, err := script.Build(bridge, s)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
			errs = append(errs, err)
			continue
		}
		line := chain.String()
		if accessor != nil {
			line += " -> " + accessor.Method
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s [%s] %s\n", path, s.Mode, line)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d scripts invalid: %w", len(errs), len(paths), errors.Join(errs...))
	}
	return nil
}
