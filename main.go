package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"designlab/config"
	"designlab/core"
	"designlab/handlers/api/designs"
	"designlab/handlers/api/media"
	"designlab/handlers/api/products"
	"designlab/handlers/auth"
	"designlab/handlers/websocket"
	"designlab/lab"
	"designlab/metrics"
	authMiddleware "designlab/middleware"
	"designlab/render"
	"designlab/stores"
	"designlab/stores/catalog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg      *config.Config
	store    core.DesignStore
	media    core.MediaStore
	catalog  core.ProductCatalog
	renderer *render.Renderer
	auth     *auth.Authenticator
	hub      *websocket.Hub
	closers  []io.Closer
}

func setupRouter(a *app) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware.Metrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Handle("/metrics", metrics.Handler())

	// Local media is public so product and artwork URLs work in <img> tags.
	if local, ok := a.media.(interface{ Root() string }); ok {
		fileServer := http.StripPrefix("/media/", http.FileServer(http.Dir(local.Root())))
		r.Get("/media/*", fileServer.ServeHTTP)
	}

	r.Route("/api/v2", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT(a.auth))

		sources := designs.WithSources(lab.Sources{
			Prefixes: []string{a.media.PublicURL("")},
			Hosts:    a.cfg.ImageHosts,
		})
		r.Route("/designs", designs.NewService(a.store, a.catalog, a.renderer, a.hub, sources).Routes)
		r.Route("/products", products.Routes(a.catalog))

		limiter := authMiddleware.NewRateLimiter(a.cfg.UploadRatePerMinute, a.cfg.UploadRateBurst)
		mediaHandler := media.New(a.media, a.cfg.MaxUploadBytes)
		r.Route("/media", func(r chi.Router) {
			mediaHandler.Routes(r, limiter.Handler)
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", a.auth.HandleLogin)
		r.Get("/callback", a.auth.HandleCallback)
	})

	r.Mount("/socket.io/", a.hub.ServeHandler())
	return r
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	store, err := stores.GetStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	if a.media, err = stores.GetMediaStore(ctx, cfg); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.CatalogPath, cfg.MediaPublicURL)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logrus.WithField("path", cfg.CatalogPath).Warn("No product catalog found, starting with an empty one")
		a.catalog = catalog.New(nil)
	case err != nil:
		return nil, err
	default:
		a.catalog = cat
	}

	var cache render.Cache
	switch cfg.RenderCache {
	case "memory":
		cache = render.NewMemoryCache(256)
	case "redis":
		rc, err := render.NewRedisCache(cfg.RedisURL, cfg.RenderCacheTTL)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			logrus.WithError(err).Warn("Redis render cache is unreachable, previews will be rendered on every request")
		}
		cache = rc
		a.closers = append(a.closers, rc)
	}
	loader := render.MediaLoader{Store: a.media, Next: render.NewHTTPLoader(cfg.ImageTimeout)}
	a.renderer = render.NewRenderer(loader, render.Options{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight}, cache)

	a.auth = auth.New(ctx, cfg)
	a.hub = websocket.NewHub(a.auth)
	return a, nil
}

func (a *app) close() {
	a.hub.Close()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}

func waitForShutdown(srv *http.Server, a *app) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signalC

	logrus.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	a.close()
}

func main() {
	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		logrus.WithField("event", "init").Fatal(err)
	}

	srv := &http.Server{
		Addr:              *listenAddress,
		Handler:           setupRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, a)
}
