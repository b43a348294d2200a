package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"irislab/ml"
)

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(stdout, "iris %s (commit: %s, built: %s, artifact format: %d)\n", version, commit, date, ml.FormatVersion)
			return nil
		},
	}
}
