// Package api exposes the metadata engine over HTTP. Routing and encoding
// stay thin: handlers decode the request, call the engine and translate
// domain errors to status codes. Authentication is expected to sit in front
// of the service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/openfed/manage/pkg/engine"
	"github.com/openfed/manage/pkg/httputil"
	"github.com/openfed/manage/pkg/importer"
	"github.com/openfed/manage/pkg/observability"
)

// Server represents our API server
type Server struct {
	engine   *engine.Service
	importer *importer.Client
	router   *mux.Router
	log      *logrus.Logger
}

// NewServer creates a new API server
func NewServer(service *engine.Service, metadataImporter *importer.Client, log *logrus.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		engine:   service,
		importer: metadataImporter,
		router:   mux.NewRouter(),
		log:      log,
	}

	s.setupRoutes()

	s.router.Use(httputil.RecoveryMiddleware(log))
	s.router.Use(httputil.LoggingMiddleware(log))
	if metrics != nil {
		s.router.Use(httputil.MetricsMiddleware(metrics, routeName))
	}
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	internal := s.router.PathPrefix("/manage/api/internal").Subrouter()

	// Metadata lifecycle
	internal.HandleFunc("/metadata", s.createMetaData).Methods("POST")
	internal.HandleFunc("/metadata", s.updateMetaData).Methods("PUT")
	internal.HandleFunc("/metadata/{type}/{id}", s.getMetaData).Methods("GET")
	internal.HandleFunc("/metadata/{type}/{id}", s.deleteMetaData).Methods("DELETE")
	internal.HandleFunc("/merge", s.mergeMetaData).Methods("PUT")
	internal.HandleFunc("/validate", s.validateMetaData).Methods("POST")
	internal.HandleFunc("/template/{type}", s.getTemplate).Methods("GET")

	// Revision history
	internal.HandleFunc("/revisions/{type}/{parentId}", s.listRevisions).Methods("GET")
	internal.HandleFunc("/restoreDeleted", s.restoreDeleted).Methods("PUT")
	internal.HandleFunc("/restoreRevision", s.restoreRevision).Methods("PUT")

	// Queries
	internal.HandleFunc("/uniqueEntityId/{type}", s.uniqueEntityID).Methods("GET")
	internal.HandleFunc("/search/{type}", s.search).Methods("POST")
	internal.HandleFunc("/rawSearch/{type}", s.rawSearch).Methods("POST")

	// Legacy flat export
	internal.HandleFunc("/export/{type}/{id}", s.exportMetaData).Methods("GET")

	// XML import
	internal.HandleFunc("/import/xml", s.importXML).Methods("POST")
	internal.HandleFunc("/import/url", s.importURL).Methods("POST")
	internal.HandleFunc("/import/feed", s.importFeed).Methods("POST")

	// Dashboard connections
	internal.HandleFunc("/connectWithoutInteraction", s.connectWithoutInteraction).Methods("PUT")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routeName returns the mux route template for metric labels.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unknown"
}

// actor returns the acting user for audit fields, taken from the X-User
// header the fronting proxy sets.
func actor(r *http.Request) string {
	if user := r.Header.Get("X-User"); user != "" {
		return user
	}
	return "system"
}
