// Package api exposes the reservation engine over HTTP JSON. It is a thin
// presentation edge: every rule lives in the engine, the handlers only decode
// requests and translate engine errors to status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"labreserve/internal/engine"
)

// HTTPServer serves the reservation API.
type HTTPServer struct {
	engine *engine.Engine
	logger zerolog.Logger
	srv    *http.Server
}

// NewHTTPServer creates the API server on the given port.
func NewHTTPServer(eng *engine.Engine, port int, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		engine: eng,
		logger: logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/reservations", s.handleReservations)
	mux.HandleFunc("/api/reservations/edit", s.handleEditReservation)
	mux.HandleFunc("/api/reservations/delete", s.handleDeleteReservation)
	mux.HandleFunc("/api/reservations/upcoming", s.handleUpcoming)
	mux.HandleFunc("/api/registry", s.handleRegistry)
	mux.HandleFunc("/api/registry/rename", s.handleRename)
	mux.HandleFunc("/api/registry/add", s.handleRegistryAdd)
	mux.HandleFunc("/api/registry/remove", s.handleRegistryRemove)
	mux.HandleFunc("/api/water", s.handleWater)
	mux.HandleFunc("/api/stats/equipment", s.handleEquipmentStats)
	mux.HandleFunc("/api/stats/water", s.handleWaterStats)
	mux.HandleFunc("/api/logs", s.handleLogs)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.withRequestID(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled.
func (s *HTTPServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("api server started")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("api server error")
	}
}

// withRequestID tags every request with an id for log correlation.
func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		s.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		verr *engine.ValidationError
		cerr *engine.ConflictError
		uerr *engine.UnauthorizedError
		derr *engine.DuplicateNameError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Reason)
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":      cerr.Error(),
			"blocked_by": cerr.BlockedBy,
		})
	case errors.As(err, &uerr):
		writeError(w, http.StatusForbidden, uerr.Reason)
	case errors.As(err, &derr):
		writeError(w, http.StatusConflict, derr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requireAdmin checks the admin password header. Admin-only endpoints carry
// the credential on every call; there is no session.
func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !s.engine.VerifyAdmin(r.Header.Get("X-Admin-Password")) {
		writeError(w, http.StatusForbidden, "admin password required")
		return false
	}
	return true
}
