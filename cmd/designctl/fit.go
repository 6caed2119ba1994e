package main

import (
	"fmt"
	"strconv"

	"designlab/lab"

	"github.com/spf13/cobra"
)

func newFitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fit <canvasW> <canvasH> <imageW> <imageH>",
		Short: "Show where a background image lands under a contain fit",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dims [4]float64
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("argument %d (%q) is not a number", i+1, arg)
				}
				dims[i] = v
			}

			p, err := lab.Contain(dims[0], dims[1], dims[2], dims[3])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scale=%g width=%g height=%g left=%g top=%g\n",
				p.Scale, p.Width, p.Height, p.Left, p.Top)
			return nil
		},
	}
}
