package designs

import (
	"context"
	"errors"
	"io"
	"net/http"

	"designlab/core"
	"designlab/handlers/auth"
	"designlab/lab"
	"designlab/metrics"
	"designlab/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Notifier is told about every persisted design change.
type Notifier interface {
	DesignChanged(d core.Design)
}

type nopNotifier struct{}

func (nopNotifier) DesignChanged(core.Design) {}

// Previewer renders a design to PNG bytes.
type Previewer interface {
	RenderPNG(ctx context.Context, d core.Design) ([]byte, error)
}

// Service holds what the design handlers share. Mutations on one design are serialized.
type Service struct {
	store    core.DesignStore
	catalog  core.ProductCatalog
	preview  Previewer
	notifier Notifier
	sources  *lab.Sources
	locks    *keyedMutex
}

type Option func(*Service)

// WithSources restricts layer images to our media URLs and the configured hosts.
func WithSources(src lab.Sources) Option {
	return func(s *Service) {
		s.sources = &src
	}
}

func NewService(store core.DesignStore, catalog core.ProductCatalog, preview Previewer, notifier Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &Service{
		store:    store,
		catalog:  catalog,
		preview:  preview,
		notifier: notifier,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the design endpoints. The caller applies authentication.
func (s *Service) Routes(r chi.Router) {
	r.Get("/", s.HandleList())
	r.Post("/", s.HandleCreate())
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.HandleGet())
		r.Put("/", s.HandleReplace())
		r.Delete("/", s.HandleDelete())
		r.Put("/product", s.HandleBindProduct())
		r.Get("/render.png", s.HandleRender())
		r.Post("/layers", s.HandleAddLayer())
		r.Route("/layers/{layerId}", func(r chi.Router) {
			r.Delete("/", s.HandleRemoveLayer())
			r.Post("/visibility", s.HandleToggleVisibility())
			r.Put("/dpi", s.HandleSetDPI())
			r.Put("/position", s.HandleReorder())
			r.Put("/geometry", s.HandleGeometry())
		})
	})
}

// designView is the response shape of a single design.
type designView struct {
	*core.Design
	State    lab.State        `json:"state"`
	Warnings []lab.DPIWarning `json:"warnings,omitempty"`
}

func viewOf(d core.Design) designView {
	session := lab.NewSession(d)
	return designView{Design: &d, State: session.State(), Warnings: session.Warnings()}
}

func errorJSON(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func claimsFrom(w http.ResponseWriter, r *http.Request) (*auth.AppClaims, bool) {
	claims, ok := middleware.CurrentUser(r.Context())
	if !ok {
		errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
	}
	return claims, ok
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		errorJSON(w, r, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	return body, true
}

// isValidation reports errors caused by the request payload rather than by the server.
func isValidation(err error) bool {
	for _, target := range []error{
		lab.ErrNotImage,
		lab.ErrInvalidMedia,
		lab.ErrNoProduct,
		lab.ErrInvalidPayload,
		lab.ErrUnsupportedLayer,
		lab.ErrDuplicateLayerID,
		lab.ErrNonPositiveGeometry,
		lab.ErrUntrustedSource,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) loadDesign(w http.ResponseWriter, r *http.Request, claims *auth.AppClaims, id string) (*core.Design, bool) {
	d, err := s.store.Get(r.Context(), claims.Subject, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			errorJSON(w, r, http.StatusNotFound, "Design not found")
			return nil, false
		}
		logrus.WithFields(logrus.Fields{
			"error":     err,
			"userID":    claims.Subject,
			"design_id": id,
		}).Error("Failed to get design")
		errorJSON(w, r, http.StatusInternalServerError, "Failed to get design")
		return nil, false
	}
	return d, true
}

// mutate loads the design named in the URL, runs fn against a session bound to it and
// answers with the resulting design, passed through shape when one is given. Every change
// fn makes is saved and broadcast.
func (s *Service) mutate(w http.ResponseWriter, r *http.Request, op string, status int, fn func(*lab.Session) error, shape func(designView) any) {
	claims, ok := claimsFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	unlock := s.locks.Lock(claims.Subject + "/" + id)
	defer unlock()

	d, ok := s.loadDesign(w, r, claims, id)
	if !ok {
		return
	}

	log := logrus.WithFields(logrus.Fields{"user_id": claims.Subject, "design_id": id, "op": op})
	current := *d
	opts := []lab.Option{
		lab.WithLogger(log),
		lab.WithObserver(metrics.RecordMutation),
		lab.WithOnChange(func(next core.Design) error {
			if err := s.store.Save(r.Context(), &next); err != nil {
				return err
			}
			current = next
			s.notifier.DesignChanged(next.Clone())
			return nil
		}),
	}
	if s.sources != nil {
		opts = append(opts, lab.WithSources(*s.sources))
	}
	session := lab.NewSession(*d, opts...)

	if err := fn(session); err != nil {
		switch {
		case isValidation(err):
			errorJSON(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, lab.ErrMutationFailed):
			errorJSON(w, r, http.StatusInternalServerError, "Failed to update design")
		default:
			log.WithError(err).Error("Failed to save design")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to save design")
		}
		return
	}

	render.Status(r, status)
	if shape != nil {
		render.JSON(w, r, shape(viewOf(current)))
		return
	}
	render.JSON(w, r, viewOf(current))
}

func (s *Service) HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}

		designs, err := s.store.List(r.Context(), claims.Subject)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": claims.Subject,
			}).Error("Failed to list designs")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to list designs")
			return
		}

		// Return an empty array rather than null when the user has no designs.
		if designs == nil {
			designs = []*core.Design{}
		}
		render.JSON(w, r, designs)
	}
}

type createRequest struct {
	Name      string `json:"name"`
	ProductID string `json:"productId"`
}

func (s *Service) HandleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}

		var req createRequest
		if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil && !errors.Is(err, io.EOF) {
			errorJSON(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		d := core.Design{
			UserID:   claims.Subject,
			TenantID: claims.TenantID,
			Name:     req.Name,
			Layers:   []core.Layer{},
		}
		if d.Name == "" {
			d.Name = "Untitled design"
		}
		if req.ProductID != "" {
			p, ok := s.lookupProduct(w, r, claims, req.ProductID)
			if !ok {
				return
			}
			d = lab.BindProduct(d, *p.Ref())
		}

		if err := s.store.Save(r.Context(), &d); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"userID": claims.Subject,
			}).Error("Failed to create design")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to create design")
			return
		}

		s.notifier.DesignChanged(d.Clone())
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, viewOf(d))
	}
}

func (s *Service) HandleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}
		d, ok := s.loadDesign(w, r, claims, chi.URLParam(r, "id"))
		if !ok {
			return
		}
		render.JSON(w, r, viewOf(*d))
	}
}

// lookupProduct resolves a product of the caller's tenant and answers 404 or 500 itself
// when that fails.
func (s *Service) lookupProduct(w http.ResponseWriter, r *http.Request, claims *auth.AppClaims, id string) (*core.Product, bool) {
	p, err := s.catalog.Get(r.Context(), claims.TenantID, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			errorJSON(w, r, http.StatusNotFound, "Product not found")
			return nil, false
		}
		logrus.WithError(err).WithField("product_id", id).Error("Failed to load product")
		errorJSON(w, r, http.StatusInternalServerError, "Failed to load product")
		return nil, false
	}
	return p, true
}

// HandleReplace overwrites name, product and layers with a full design document. The
// product is looked up again in the catalog; only its id is taken from the body.
func (s *Service) HandleReplace() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		incoming, err := lab.DecodeDesign(body)
		if err != nil {
			errorJSON(w, r, http.StatusBadRequest, err.Error())
			return
		}

		var product *core.ProductRef
		if incoming.Product != nil {
			if incoming.Product.ID == "" {
				errorJSON(w, r, http.StatusBadRequest, "product id is required")
				return
			}
			p, ok := s.lookupProduct(w, r, claims, incoming.Product.ID)
			if !ok {
				return
			}
			product = p.Ref()
		}

		s.mutate(w, r, "replace", http.StatusOK, func(session *lab.Session) error {
			for _, l := range incoming.Layers {
				if err := session.CheckSource(l.Src); err != nil {
					return err
				}
			}
			return session.Apply("replace", func(d core.Design) (core.Design, bool) {
				d.Name = incoming.Name
				d.Product = product
				d.Layers = incoming.Layers
				return d, true
			})
		}, nil)
	}
}

func (s *Service) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		unlock := s.locks.Lock(claims.Subject + "/" + id)
		defer unlock()

		if err := s.store.Delete(r.Context(), claims.Subject, id); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				errorJSON(w, r, http.StatusNotFound, "Design not found")
				return
			}
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"userID":    claims.Subject,
				"design_id": id,
			}).Error("Failed to delete design")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to delete design")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Service) HandleBindProduct() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}
		var req struct {
			ProductID string `json:"productId"`
		}
		if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil || req.ProductID == "" {
			errorJSON(w, r, http.StatusBadRequest, "productId is required")
			return
		}

		p, ok := s.lookupProduct(w, r, claims, req.ProductID)
		if !ok {
			return
		}

		s.mutate(w, r, "bind_product", http.StatusOK, func(session *lab.Session) error {
			return session.BindProduct(*p.Ref())
		}, nil)
	}
}

type layerResponse struct {
	Layer  core.Layer `json:"layer"`
	Design designView `json:"design"`
}

// HandleAddLayer turns a media picker selection into a new top layer.
func (s *Service) HandleAddLayer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m core.MediaFile
		if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &m); err != nil {
			errorJSON(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		var added core.Layer
		s.mutate(w, r, "add_layer", http.StatusCreated, func(session *lab.Session) error {
			var err error
			added, err = session.OnSelectMedia(m)
			return err
		}, func(v designView) any {
			return layerResponse{Layer: added, Design: v}
		})
	}
}

func (s *Service) HandleRemoveLayer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layerID := chi.URLParam(r, "layerId")
		s.mutate(w, r, "remove_layer", http.StatusOK, func(session *lab.Session) error {
			return session.RemoveLayer(layerID)
		}, nil)
	}
}

func (s *Service) HandleToggleVisibility() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layerID := chi.URLParam(r, "layerId")
		s.mutate(w, r, "toggle_visibility", http.StatusOK, func(session *lab.Session) error {
			return session.ToggleVisibility(layerID)
		}, nil)
	}
}

func (s *Service) HandleSetDPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DPI *int `json:"dpi"`
		}
		if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil || req.DPI == nil {
			errorJSON(w, r, http.StatusBadRequest, "dpi is required")
			return
		}

		layerID := chi.URLParam(r, "layerId")
		s.mutate(w, r, "set_dpi", http.StatusOK, func(session *lab.Session) error {
			return session.SetDPI(layerID, *req.DPI)
		}, nil)
	}
}

func (s *Service) HandleReorder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Index *int `json:"index"`
		}
		if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil || req.Index == nil {
			errorJSON(w, r, http.StatusBadRequest, "index is required")
			return
		}

		layerID := chi.URLParam(r, "layerId")
		s.mutate(w, r, "reorder", http.StatusOK, func(session *lab.Session) error {
			return session.Reorder(layerID, *req.Index)
		}, nil)
	}
}

// HandleGeometry receives the transform reported when a drag, resize or rotate ends.
func (s *Service) HandleGeometry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		g, err := lab.DecodeGeometry(body)
		if err != nil {
			errorJSON(w, r, http.StatusBadRequest, err.Error())
			return
		}

		layerID := chi.URLParam(r, "layerId")
		s.mutate(w, r, "manipulate", http.StatusOK, func(session *lab.Session) error {
			return session.ApplyManipulation(layerID, g)
		}, nil)
	}
}

func (s *Service) HandleRender() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(w, r)
		if !ok {
			return
		}
		d, ok := s.loadDesign(w, r, claims, chi.URLParam(r, "id"))
		if !ok {
			return
		}

		data, err := s.preview.RenderPNG(r.Context(), *d)
		if err != nil {
			logrus.WithError(err).WithField("design_id", d.ID).Error("Failed to render design")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to render design")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
