package lab

import (
	"errors"
	"fmt"

	"designlab/core"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoProduct is returned when media is selected before any product is bound:
	// there is no design yet to add a layer to.
	ErrNoProduct = errors.New("select a product before adding artwork")

	// ErrMutationFailed reports an unexpected failure inside a command. The session keeps
	// the design it had before the command ran.
	ErrMutationFailed = errors.New("design update failed")
)

// State is the phase of the canvas, derived from the product binding and the layer count.
type State int

const (
	StateEmpty State = iota
	StateProductBound
	StateComposing
)

func (s State) String() string {
	switch s {
	case StateProductBound:
		return "product-bound"
	case StateComposing:
		return "composing"
	default:
		return "empty"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateOf reports the canvas phase for d. Hiding every layer does not move a composing
// design back to product-bound.
func StateOf(d core.Design) State {
	switch {
	case d.Product == nil:
		return StateEmpty
	case len(d.Layers) == 0:
		return StateProductBound
	default:
		return StateComposing
	}
}

// Command derives a new design from the current one. The boolean is false when the
// command did not apply, typically because the target layer no longer exists.
type Command func(core.Design) (core.Design, bool)

// Session holds the design being edited on one screen and applies commands to it.
// A Session is not safe for concurrent use; callers serialize access per design.
type Session struct {
	design   core.Design
	onChange func(core.Design) error
	observe  func(op, result string)
	sources  *Sources
	log      *logrus.Entry
}

type Option func(*Session)

// WithOnChange registers the hook invoked with the new design after every mutation that
// changed something. Hosts use it to persist or re-render.
func WithOnChange(fn func(core.Design) error) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// WithObserver is told the outcome of every command: "ok", "ignored" or "error".
func WithObserver(fn func(op, result string)) Option {
	return func(s *Session) {
		s.observe = fn
	}
}

// WithSources limits selected media to the given locations. Without it any URL is accepted,
// which only suits tools rendering local files.
func WithSources(src Sources) Option {
	return func(s *Session) {
		s.sources = &src
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Session) {
		s.log = log
	}
}

func NewSession(d core.Design, opts ...Option) *Session {
	s := &Session{
		design:  d.Clone(),
		observe: func(string, string) {},
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("design_id", d.ID)
	return s
}

// Design returns a copy of the current design.
func (s *Session) Design() core.Design {
	return s.design.Clone()
}

func (s *Session) State() State {
	return StateOf(s.design)
}

// Warnings lists layers whose DPI is outside the print range.
func (s *Session) Warnings() []DPIWarning {
	var warnings []DPIWarning
	for _, l := range s.design.Layers {
		if advice := CheckDPI(l.DPI); advice != DPIOK {
			warnings = append(warnings, DPIWarning{LayerID: l.ID, DPI: l.DPI, Advice: advice})
		}
	}
	return warnings
}

// Apply runs cmd against the current design. A command that does not apply leaves the
// session untouched and is not an error.
func (s *Session) Apply(op string, cmd Command) error {
	next, changed, err := s.run(op, cmd)
	if err != nil {
		s.observe(op, "error")
		return err
	}
	if !changed {
		s.observe(op, "ignored")
		s.log.WithField("op", op).Debug("Command did not apply, ignored")
		return nil
	}

	s.design = next
	s.observe(op, "ok")
	if s.onChange == nil {
		return nil
	}
	if err := s.onChange(next.Clone()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Session) run(op string, cmd Command) (next core.Design, changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"op": op, "panic": r}).Error("Command panicked")
			err = fmt.Errorf("%s: %w", op, ErrMutationFailed)
		}
	}()
	next, changed = cmd(s.design.Clone())
	return next, changed, nil
}

// AddLayer appends a layer for src on top of the stack.
func (s *Session) AddLayer(src string) (core.Layer, error) {
	var added core.Layer
	err := s.Apply("add_layer", func(d core.Design) (core.Design, bool) {
		var next core.Design
		next, added = AddLayer(d, src)
		return next, true
	})
	return added, err
}

// OnSelectMedia is the entry point used by the media picker. Non-image media is rejected
// without touching the design.
func (s *Session) OnSelectMedia(m core.MediaFile) (core.Layer, error) {
	if err := ValidateMedia(m); err != nil {
		return core.Layer{}, err
	}
	if err := s.CheckSource(m.URL); err != nil {
		return core.Layer{}, err
	}
	if s.design.Product == nil {
		return core.Layer{}, ErrNoProduct
	}
	return s.AddLayer(m.URL)
}

// CheckSource applies the session's source restrictions, if any.
func (s *Session) CheckSource(src string) error {
	if s.sources == nil {
		return nil
	}
	return s.sources.Check(src)
}

func (s *Session) ToggleVisibility(layerID string) error {
	return s.Apply("toggle_visibility", func(d core.Design) (core.Design, bool) {
		return ToggleVisibility(d, layerID)
	})
}

func (s *Session) SetDPI(layerID string, dpi int) error {
	return s.Apply("set_dpi", func(d core.Design) (core.Design, bool) {
		return SetDPI(d, layerID, dpi)
	})
}

func (s *Session) Reorder(layerID string, newIndex int) error {
	return s.Apply("reorder", func(d core.Design) (core.Design, bool) {
		return Reorder(d, layerID, newIndex)
	})
}

func (s *Session) RemoveLayer(layerID string) error {
	return s.Apply("remove_layer", func(d core.Design) (core.Design, bool) {
		return RemoveLayer(d, layerID)
	})
}

// ApplyManipulation syncs the geometry reported by the render surface when a drag,
// resize or rotate ends. Geometry for an id that has no layer is dropped.
func (s *Session) ApplyManipulation(layerID string, g core.Geometry) error {
	return s.Apply("manipulate", func(d core.Design) (core.Design, bool) {
		return UpdateGeometry(d, layerID, g)
	})
}

func (s *Session) BindProduct(p core.ProductRef) error {
	return s.Apply("bind_product", func(d core.Design) (core.Design, bool) {
		return BindProduct(d, p), true
	})
}

func (s *Session) Rename(name string) error {
	return s.Apply("rename", func(d core.Design) (core.Design, bool) {
		if d.Name == name {
			return d, false
		}
		d.Name = name
		return d, true
	})
}
