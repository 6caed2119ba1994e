package main

import (
	"fmt"
	"os"

	"designlab/core"
	"designlab/lab"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "designctl",
		Short:        "Render and check design-lab documents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			logrus.SetLevel(level)
			logrus.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "loglevel", "warn", "The log level (debug, info, warn, error).")

	root.AddCommand(newRenderCmd())
	root.AddCommand(newFitCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// readDesign loads and checks a design document from disk.
func readDesign(path string) (core.Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Design{}, err
	}
	d, err := lab.DecodeDesign(data)
	if err != nil {
		return core.Design{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
