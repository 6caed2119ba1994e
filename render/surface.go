package render

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"

	"designlab/core"
	"designlab/lab"
	"designlab/metrics"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type loaded struct {
	src string
	img image.Image
}

// Surface is the drawing surface behind one open design. It mirrors the layer model,
// loads images in the background and paints them in z order on demand.
type Surface struct {
	loader Loader
	width  int
	height int
	log    *logrus.Entry
	group  errgroup.Group
	slots  chan struct{}

	mu         sync.Mutex
	design     core.Design
	session    *lab.Session
	background *loaded
	layers     map[string]loaded
	pending    map[string]string
	failed     map[string]string
}

// NewSurface creates a width x height surface. At most loadLimit images load at once.
func NewSurface(loader Loader, width, height, loadLimit int) *Surface {
	s := &Surface{
		loader:  loader,
		width:   width,
		height:  height,
		log:     logrus.WithField("component", "surface"),
		layers:  make(map[string]loaded),
		pending: make(map[string]string),
		failed:  make(map[string]string),
	}
	if loadLimit > 0 {
		s.slots = make(chan struct{}, loadLimit)
	}
	return s
}

// Attach binds the session that receives manipulation results.
func (s *Surface) Attach(session *lab.Session) {
	s.mu.Lock()
	s.session = session
	s.design = session.Design()
	s.mu.Unlock()
}

func (s *Surface) State() lab.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lab.StateOf(s.design)
}

type loadJob struct {
	layerID string // empty for the background
	src     string
}

// Sync makes d the design the surface shows and schedules loads for the background and
// every visible layer that has no image yet. It returns once the loads are scheduled;
// use Wait to block until they settle.
func (s *Surface) Sync(ctx context.Context, d core.Design) {
	s.mu.Lock()
	s.design = d.Clone()

	stale := func(id, src string) bool {
		idx := d.LayerIndex(id)
		return idx < 0 || d.Layers[idx].Src != src
	}
	for id, l := range s.layers {
		if stale(id, l.src) {
			delete(s.layers, id)
		}
	}
	for id, src := range s.failed {
		if stale(id, src) {
			delete(s.failed, id)
		}
	}

	var jobs []loadJob
	if d.Product == nil {
		s.background = nil
	} else if src := d.Product.ImageURL; src != "" && (s.background == nil || s.background.src != src) {
		s.background = &loaded{src: src}
		jobs = append(jobs, loadJob{src: src})
	}

	for _, l := range d.Layers {
		if !l.Visible {
			continue
		}
		if _, ok := s.layers[l.ID]; ok {
			continue
		}
		if src, ok := s.pending[l.ID]; ok && src == l.Src {
			continue
		}
		if src, ok := s.failed[l.ID]; ok && src == l.Src {
			continue
		}
		s.pending[l.ID] = l.Src
		jobs = append(jobs, loadJob{layerID: l.ID, src: l.Src})
	}
	s.mu.Unlock()

	for _, job := range jobs {
		job := job
		s.group.Go(func() error {
			if s.slots != nil {
				select {
				case s.slots <- struct{}{}:
					defer func() { <-s.slots }()
				case <-ctx.Done():
					s.resolve(job, nil, ctx.Err())
					return nil
				}
			}
			img, err := s.loader.Load(ctx, job.src)
			s.resolve(job, img, err)
			return nil
		})
	}
}

func (s *Surface) resolve(job loadJob, img image.Image, err error) {
	if job.layerID == "" {
		s.resolveBackground(job.src, img, err)
	} else {
		s.resolveLayer(job.layerID, job.src, img, err)
	}
}

// Wait blocks until every scheduled load has resolved.
func (s *Surface) Wait() {
	_ = s.group.Wait()
}

func (s *Surface) resolveBackground(src string, img image.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.background == nil || s.background.src != src {
		s.log.WithField("src", src).Debug("Background changed while loading, dropped")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("src", src).Warn("Failed to load product image")
		metrics.RecordImageFailure("background")
		return
	}
	s.background.img = img
}

func (s *Surface) resolveLayer(layerID, src string, img image.Image, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[layerID] == src {
		delete(s.pending, layerID)
	}
	log := s.log.WithFields(logrus.Fields{"layer_id": layerID, "src": src})

	idx := s.design.LayerIndex(layerID)
	if idx < 0 || s.design.Layers[idx].Src != src {
		log.Debug("Layer removed while loading, dropped")
		return
	}
	if err != nil {
		log.WithError(err).Warn("Failed to load layer image")
		metrics.RecordImageFailure("layer")
		s.failed[layerID] = src
		return
	}
	s.layers[layerID] = loaded{src: src, img: img}
}

// Complete reports whether every image the current design shows is on the surface.
// It is false while loads are in flight and after any of them failed.
func (s *Surface) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.design.Product; p != nil && p.ImageURL != "" && (s.background == nil || s.background.img == nil) {
		return false
	}
	for _, l := range s.design.Layers {
		if !l.Visible {
			continue
		}
		if _, ok := s.layers[l.ID]; !ok {
			return false
		}
	}
	return true
}

// Loaded reports whether the image for a layer is on the surface.
func (s *Surface) Loaded(layerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.layers[layerID]
	return ok
}

// Manipulate forwards the geometry of a finished drag, resize or rotate to the attached
// session. Objects that no longer match a layer are dropped by the session.
func (s *Surface) Manipulate(layerID string, g core.Geometry) error {
	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		return nil
	}

	if err := session.ApplyManipulation(layerID, g); err != nil {
		return err
	}

	s.mu.Lock()
	s.design = session.Design()
	s.mu.Unlock()
	return nil
}

// Paint composites the current design: white canvas, product background contained and
// centered, then visible layers from the lowest z-index up. Images that are still
// loading or failed to load are left out.
func (s *Surface) Paint() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	canvas := imaging.New(s.width, s.height, color.White)
	if s.design.Product == nil {
		drawPlaceholder(canvas, placeholderText)
		return canvas
	}

	if s.background != nil && s.background.img != nil {
		canvas = s.paintBackground(canvas, s.background.img)
	}

	for _, l := range lab.PaintOrder(s.design) {
		ld, ok := s.layers[l.ID]
		if !ok {
			continue
		}
		canvas = paintLayer(canvas, ld.img, l.Geometry)
	}
	return canvas
}

func (s *Surface) paintBackground(canvas *image.NRGBA, img image.Image) *image.NRGBA {
	b := img.Bounds()
	p, err := lab.Contain(float64(s.width), float64(s.height), float64(b.Dx()), float64(b.Dy()))
	if err != nil {
		s.log.WithError(err).Warn("Skipping product image")
		return canvas
	}
	w, h := round(p.Width), round(p.Height)
	if w < 1 || h < 1 {
		return canvas
	}
	scaled := imaging.Resize(img, w, h, imaging.Lanczos)
	return imaging.Overlay(canvas, scaled, image.Pt(round(p.Left), round(p.Top)), 1.0)
}

// paintLayer scales the image to the layer box, rotates it clockwise around the box's
// top-left corner and overlays it.
func paintLayer(canvas *image.NRGBA, img image.Image, g core.Geometry) *image.NRGBA {
	w, h := round(g.Width), round(g.Height)
	if w < 1 || h < 1 {
		return canvas
	}
	var out image.Image = imaging.Resize(img, w, h, imaging.Lanczos)

	offX, offY := 0.0, 0.0
	if angle := math.Mod(g.Rotation, 360); angle != 0 {
		out = imaging.Rotate(out, -angle, color.Transparent)
		offX, offY = rotatedOrigin(float64(w), float64(h), angle)
	}
	return imaging.Overlay(canvas, out, image.Pt(round(g.X+offX), round(g.Y+offY)), 1.0)
}

// rotatedOrigin returns the top-left of the bounding box of a w x h box rotated
// clockwise by deg degrees around its own top-left corner.
func rotatedOrigin(w, h, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	minX, minY := 0.0, 0.0
	for _, c := range [][2]float64{{w, 0}, {0, h}, {w, h}} {
		x := c[0]*cos - c[1]*sin
		y := c[0]*sin + c[1]*cos
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
	}
	return minX, minY
}

func round(f float64) int {
	return int(math.Round(f))
}
