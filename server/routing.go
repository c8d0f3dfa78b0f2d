package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/dataloader/logger"
)

// Request headers understood by the API
const (
	HeaderRequestID = "X-Request-ID"
	HeaderActor     = "X-Actor"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))

	// Job configurations
	s.mux.HandleFunc("/api/jobs", s.corsMiddleware(s.HandleJobs))                    // List lineage references (GET ?itemId=)
	s.mux.HandleFunc("/api/jobs/drafts", s.corsMiddleware(s.HandleDrafts))           // Save draft (POST)
	s.mux.HandleFunc("/api/jobs/publish", s.corsMiddleware(s.HandlePublish))         // Publish (POST)
	s.mux.HandleFunc("/api/jobs/{id}", s.corsMiddleware(s.HandleJob))                // Get (GET), update (PATCH)
	s.mux.HandleFunc("/api/jobs/{id}/{action}", s.corsMiddleware(s.HandleJobAction)) // deploy, resubmit, active, bundle, activity

	// Lineages
	s.mux.HandleFunc("/api/lineages/{parentId}", s.corsMiddleware(s.HandleLineage))              // Records (GET), delete (DELETE)
	s.mux.HandleFunc("/api/lineages/{parentId}/deploy", s.corsMiddleware(s.HandleLineageDeploy)) // Deploy published record (POST)

	// Local scheduler queue
	s.mux.HandleFunc("/api/deployments", s.corsMiddleware(s.HandleDeployments))     // List (GET ?state=)
	s.mux.HandleFunc("/api/deployments/{id}", s.corsMiddleware(s.HandleDeployment)) // Get (GET), change state (PATCH)

	// Catalog
	s.mux.HandleFunc("/api/resources", s.corsMiddleware(s.HandleResources))     // List/create (GET/POST)
	s.mux.HandleFunc("/api/resources/{id}", s.corsMiddleware(s.HandleResource)) // Get/delete (GET/DELETE)
	s.mux.HandleFunc("/api/mappings", s.corsMiddleware(s.HandleMappings))       // List/create (GET/POST)
	s.mux.HandleFunc("/api/mappings/{id}", s.corsMiddleware(s.HandleMapping))   // Get/delete (GET/DELETE)
}

// corsMiddleware adds CORS headers for configured origins and answers preflights
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.checkOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderRequestID+", "+HeaderActor)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// checkOrigin prefix-matches origin against the configured allow list, so
// any port on an allowed host passes
func (s *Server) checkOrigin(origin string) bool {
	for _, allowed := range s.config().Server.AllowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// statusRecorder captures the status written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestMiddleware tags the request context with a request id and the
// acting user, then logs the outcome
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := logger.WithRequestID(r.Context(), requestID)
		if actor := strings.TrimSpace(r.Header.Get(HeaderActor)); actor != "" {
			ctx = logger.WithActor(ctx, actor)
		}

		if s.getState() != ServerStateRunning && r.URL.Path != "/health" {
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.FromContext(ctx, s.logger).Debugw("Request handled",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}
