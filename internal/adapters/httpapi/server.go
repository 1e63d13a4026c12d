// Package httpapi exposes the inventory service over HTTP with a chi router.
package httpapi

import (
	"arboria/docs/schema/openapi"
	"arboria/internal/adapters/archive"
	"arboria/internal/config"
	"arboria/internal/core"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIVersion is reported by the root banner.
const APIVersion = "2.0.0"

// Server holds the handler dependencies.
type Server struct {
	svc       *core.Service
	archives  *archive.Exporter
	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	metrics   *httpMetrics
	startedAt time.Time
	maxBody   int64
}

// Option customises a Server.
type Option func(*Server)

// WithArchives enables the /api/archives routes.
func WithArchives(exp *archive.Exporter) Option {
	return func(s *Server) { s.archives = exp }
}

// WithLogger sets the access and error logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBodyBytes caps request bodies. Photos travel inline as base64, so
// the default is generous.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New builds a server whose HTTP metrics are registered on reg and served
// from gatherer at /metrics.
func New(svc *core.Service, reg prometheus.Registerer, gatherer prometheus.Gatherer, opts ...Option) (*Server, error) {
	s := &Server{
		svc:       svc,
		logger:    zap.NewNop(),
		gatherer:  gatherer,
		startedAt: time.Now(),
		maxBody:   config.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if reg != nil {
		m, err := newHTTPMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		s.metrics = m
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withUser)
	r.Use(s.accessLog)
	if s.metrics != nil {
		r.Use(s.metrics.middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", UserHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestSize(s.maxBody))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/openapi.yaml", s.handleOpenAPI)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/farms", func(r chi.Router) {
			r.Get("/", s.listFarms)
			r.Post("/", s.createFarm)
			r.Get("/{id}", s.getFarm)
			r.Put("/{id}", s.updateFarm)
			r.Delete("/{id}", s.deleteFarm)
			r.Get("/{id}/grid", s.farmGrid)
			r.Get("/{id}/trees.geojson", s.farmGeoJSON)
		})
		r.Route("/trees", func(r chi.Router) {
			r.Get("/", s.listTrees)
			r.Post("/", s.placeTree)
			r.Post("/duplicate", s.duplicateTree)
			r.Post("/sync", s.syncTrees)
			r.Get("/{id}", s.getTree)
			r.Put("/{id}", s.updateTree)
			r.Delete("/{id}", s.removeTree)
			r.Post("/{id}/photos", s.addPhoto)
			r.Delete("/{id}/photos/{index}", s.removePhoto)
		})
		r.Route("/interventions", func(r chi.Router) {
			r.Get("/", s.listInterventions)
			r.Post("/", s.appendIntervention)
			r.Get("/{id}", s.getIntervention)
			r.Delete("/{id}", s.removeIntervention)
		})
		r.Get("/search", s.searchTrees)
		r.Get("/statistics/{farmID}", s.statistics)
		r.Get("/export", s.exportState)
		r.Post("/import", s.importState)
		r.Post("/import/validate", s.validateDocument)
		if s.archives != nil {
			r.Route("/archives", func(r chi.Router) {
				r.Get("/", s.listArchives)
				r.Post("/", s.createArchive)
				r.Get("/{id}", s.getArchive)
				r.Post("/{id}/restore", s.restoreArchive)
			})
		}
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found", Kind: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Kind: "invalid_input"})
	})
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "ArborIA API - orchard inventory",
		"version": APIVersion,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
