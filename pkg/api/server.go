// Package api is the freyjadoc REST API.
//
// Documents live under /api/v1/documents/{type}/{id}, where type names a
// configured struct type and id is a KSUID. Request and response bodies
// are JSON objects of field name to value.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssargent/freyjadoc/pkg/docstore"
	"github.com/ssargent/freyjadoc/pkg/logging"
	"github.com/ssargent/freyjadoc/pkg/metrics"
)

// NewRouter builds the HTTP handler for store. Metrics are registered with
// reg and served from /metrics.
func NewRouter(store *docstore.Store, config ServerConfig, reg *prometheus.Registry) (http.Handler, error) {
	m := NewMetrics(reg)
	if c := store.Cache(); c != nil {
		if err := reg.Register(metrics.NewCacheCollector("freyjadoc", c.Name(), c)); err != nil {
			return nil, errors.Wrap(err, "registering cache collector")
		}
	}
	server := NewServer(store, config, m)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: requestLogger{}, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(config.APIKey)))

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))
		r.Get("/types", m.InstrumentHandler("GET", "/api/v1/types", server.handleTypes))
		r.Get("/stats", m.InstrumentHandler("GET", "/api/v1/stats", server.handleStats))
		r.Post("/stats/snapshot", m.InstrumentHandler("POST", "/api/v1/stats/snapshot", server.handleStatsSnapshot))
		r.Get("/blobs/{id}", m.InstrumentHandler("GET", "/api/v1/blobs/{id}", server.handleInspect))

		r.Route("/documents/{type}", func(r chi.Router) {
			const doc = "/api/v1/documents/{type}/{id}"
			r.Post("/", m.InstrumentHandler("POST", "/api/v1/documents/{type}", server.handleCreate))
			r.Put("/{id}", m.InstrumentHandler("PUT", doc, server.handlePut))
			r.Patch("/{id}", m.InstrumentHandler("PATCH", doc, server.handlePatch))
			r.Get("/{id}", m.InstrumentHandler("GET", doc, server.handleGet))
			r.Delete("/{id}", m.InstrumentHandler("DELETE", doc, server.handleDelete))
		})
	})

	return r, nil
}

// StartServer serves the API until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, store *docstore.Store, config ServerConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	handler, err := NewRouter(store, config, reg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", config.Bind, config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logging.Infof("starting freyjadoc REST API server on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logging.Infof("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
