package main

import (
	"fmt"

	"designlab/lab"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <design.json>",
		Short: "Check a design document and report print-resolution warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDesign(args[0])
			if err != nil {
				return err
			}

			session := lab.NewSession(d)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok (%s, %d layers)\n", args[0], session.State(), len(d.Layers))
			for _, w := range session.Warnings() {
				fmt.Fprintf(out, "warning: layer %s has %d DPI (%s, print range %d-%d)\n",
					w.LayerID, w.DPI, w.Advice, lab.MinPrintDPI, lab.MaxPrintDPI)
			}
			return nil
		},
	}
}
