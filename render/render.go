// Package render composites designs into raster previews.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"designlab/core"
	"designlab/metrics"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWidth     = 800
	DefaultHeight    = 600
	DefaultLoadLimit = 4
)

type Options struct {
	Width     int
	Height    int
	LoadLimit int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.LoadLimit <= 0 {
		o.LoadLimit = DefaultLoadLimit
	}
	return o
}

// Renderer produces one-shot previews of stored designs.
type Renderer struct {
	loader Loader
	opts   Options
	cache  Cache
}

func NewRenderer(loader Loader, opts Options, cache Cache) *Renderer {
	return &Renderer{loader: loader, opts: opts.withDefaults(), cache: cache}
}

func (r *Renderer) Size() (int, int) {
	return r.opts.Width, r.opts.Height
}

// NewSurface creates an interactive surface with the renderer's canvas size.
func (r *Renderer) NewSurface() *Surface {
	return NewSurface(r.loader, r.opts.Width, r.opts.Height, r.opts.LoadLimit)
}

// Render waits for every image of d to settle and paints the result.
func (r *Renderer) Render(ctx context.Context, d core.Design) image.Image {
	img, _ := r.render(ctx, d)
	return img
}

// render also reports whether every image made it onto the canvas.
func (r *Renderer) render(ctx context.Context, d core.Design) (image.Image, bool) {
	start := time.Now()
	s := r.NewSurface()
	s.Sync(ctx, d)
	s.Wait()
	img := s.Paint()
	metrics.ObserveRender(time.Since(start))
	return img, s.Complete()
}

// RenderPNG renders d as PNG bytes, going through the cache when one is configured.
// Previews missing an image are returned but not cached, so the next request loads again.
func (r *Renderer) RenderPNG(ctx context.Context, d core.Design) ([]byte, error) {
	key := CacheKey(d, r.opts.Width, r.opts.Height)
	if r.cache != nil {
		if data, ok := r.cache.Get(ctx, key); ok {
			metrics.RecordCacheLookup(true)
			return data, nil
		}
		metrics.RecordCacheLookup(false)
	}

	img, complete := r.render(ctx, d)
	var buf bytes.Buffer
	if err := Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	if r.cache != nil && complete {
		r.cache.Put(ctx, key, data)
	}
	logrus.WithFields(logrus.Fields{
		"design_id": d.ID,
		"bytes":     len(data),
		"complete":  complete,
	}).Debug("Rendered design preview")
	return data, nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format imaging.Format) error {
	if err := imaging.Encode(w, img, format, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}

// FormatFor picks the output format from a file name, defaulting to PNG.
func FormatFor(name string) imaging.Format {
	f, err := imaging.FormatFromFilename(name)
	if err != nil {
		return imaging.PNG
	}
	return f
}
