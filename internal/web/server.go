// Package web serves rendered chapters, the preference API, the pre-paint
// bootstrap script and the preference sync socket.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/FocuswithJustin/JuniperReader/core/render"
	"github.com/FocuswithJustin/JuniperReader/core/scripture"
	"github.com/FocuswithJustin/JuniperReader/core/versification"
	"github.com/FocuswithJustin/JuniperReader/internal/cache"
	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// Config holds server configuration.
type Config struct {
	Addr string
	// AllowedOrigins applies to CORS and to the sync socket's origin check.
	AllowedOrigins []string
	// WriteLimit budgets preference writes per browsing context.
	WriteLimit LimitConfig
	// PageCacheSize bounds the rendered chapter cache; 0 disables it.
	PageCacheSize int
}

// Server is the reader's HTTP front end. Every client shares one preference
// store, the way every tab of a site shares its storage origin.
type Server struct {
	cfg        Config
	store      kvstore.Store
	library    *scripture.Library
	resolver   *versification.Resolver
	hub        *Hub
	limiter    *WriteLimiter
	pages      *cache.LRU[pageKey, render.Page]
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. resolver may be nil, which disables alternate verse
// numbers.
func New(cfg Config, store kvstore.Store, library *scripture.Library, resolver *versification.Resolver) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	limiter := NewWriteLimiter(cfg.WriteLimit)
	s := &Server{
		cfg:      cfg,
		store:    store,
		library:  library,
		resolver: resolver,
		hub:      NewHub(store, cfg.AllowedOrigins, limiter),
		limiter:  limiter,
		pages:    cache.NewLRU[pageKey, render.Page](cfg.PageCacheSize),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(logging.CombinedMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match", logging.BrowsingContextHeader},
		ExposedHeaders: []string{"ETag", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleShell)
	r.Get("/healthz", s.handleHealth)
	r.Get("/bootstrap.js", s.handleBootstrapScript)
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/books", s.handleBooks)
		r.Get("/books/{book}/chapters/{chapter}", s.handleChapter)
		r.Get("/resolve", s.handleResolve)
		r.Get("/prefs", s.handlePrefs)
		r.Get("/prefs/{key}", s.handlePrefGet)
		r.With(s.limiter.Middleware).Put("/prefs/{key}", s.handlePrefSet)
	})

	return r
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Hub returns the sync socket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and listens until Shutdown.
func (s *Server) Start() error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.ServerStartup("reader", "http", portOf(s.cfg.Addr),
		"addr", s.cfg.Addr,
		"store", s.store.Backend(),
		"writes_per_minute", s.cfg.WriteLimit.PerMinute,
		"books_dir", s.library.Dir())

	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and disconnects every sync client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	s.limiter.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
