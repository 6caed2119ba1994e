package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"designlab/render"

	"github.com/spf13/cobra"
)

func newRenderCmd() *cobra.Command {
	var (
		out     string
		width   int
		height  int
		format  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render <design.json>",
		Short: "Render a design to an image file",
		Long: `Render a design document the way the lab canvas paints it.

Relative and file:// image sources resolve against the design file's directory;
http(s) sources are downloaded. Images that fail to load are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDesign(args[0])
			if err != nil {
				return err
			}

			if out == "" {
				out = trimExt(args[0]) + ".png"
			}
			imgFormat := render.FormatFor(out)
			if format != "" {
				imgFormat = render.FormatFor("out." + format)
			}

			loader := render.SchemeLoader{
				HTTP: render.NewHTTPLoader(timeout, render.AllowPrivateNetworks()),
				File: render.FileLoader{Root: filepath.Dir(args[0])},
			}
			r := render.NewRenderer(loader, render.Options{Width: width, Height: height}, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout*2)
			defer cancel()
			img := r.Render(ctx, d)

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := render.Encode(f, img, imgFormat); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			w, h := r.Size()
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s (%dx%d) to %s\n", d.Name, w, h, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default: <design>.png)")
	cmd.Flags().IntVar(&width, "width", render.DefaultWidth, "Canvas width in pixels")
	cmd.Flags().IntVar(&height, "height", render.DefaultHeight, "Canvas height in pixels")
	cmd.Flags().StringVar(&format, "format", "", "Image format: png, jpeg, gif, bmp or tiff (default: from the output name)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for each remote image")
	return cmd
}

func trimExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}
