// Package api exposes the booking service over HTTP.
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
	"golang.org/x/time/rate"

	"clinicbook/internal/booking"
	"clinicbook/internal/db"
	"clinicbook/internal/model"
	"clinicbook/internal/settings"
)

// PartnerScheduleStore is the persistence surface for partner schedule
// administration.
type PartnerScheduleStore interface {
	ListAvailability(ctx context.Context, partnerID int64) ([]model.PartnerAvailability, error)
	CreateAvailability(ctx context.Context, w *model.PartnerAvailability) error
	DeactivateAvailability(ctx context.Context, id int64) error
	ListBlockedDates(ctx context.Context, partnerID int64, date string) ([]model.PartnerBlockedDate, error)
	CreateBlockedDate(ctx context.Context, b *model.PartnerBlockedDate) error
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	svc      *booking.Service
	partners PartnerScheduleStore
	settings *settings.Provider
	log      *zerolog.Logger
	server   *http.Server
	limiter  *rate.Limiter
}

// ServerOptions tunes the HTTP server.
type ServerOptions struct {
	Port            int
	RateLimitPerSec int
	RateLimitBurst  int
}

// NewHTTPServer wires the API routes.
func NewHTTPServer(svc *booking.Service, partners PartnerScheduleStore, provider *settings.Provider, log *zerolog.Logger, opts ServerOptions) *HTTPServer {
	s := &HTTPServer{
		svc:      svc,
		partners: partners,
		settings: provider,
		log:      log,
	}

	if opts.RateLimitPerSec > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = opts.RateLimitPerSec
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSec), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability-check", s.handleAvailabilityCheck)
	mux.HandleFunc("/api/appointments", s.handleAppointments)
	mux.HandleFunc("/api/appointments/", s.handleAppointmentByID)
	mux.HandleFunc("/api/clinic-settings", s.handleClinicSettings)
	mux.HandleFunc("/api/partners/", s.handlePartnerSchedule)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.middleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the wired handler, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// middleware tags every request with an id and applies the global rate limit.
func (s *HTTPServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeServiceError maps the booking error taxonomy to HTTP statuses. The
// conflict payload keeps its full list so clients can render every reason.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation *booking.ValidationError
	var policy *booking.PolicyViolation
	var conflict *booking.ConflictError
	var state *booking.StateError
	var notFound *booking.NotFoundError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.As(err, &policy):
		writeError(w, http.StatusUnprocessableEntity, policy.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     conflict.Error(),
			"conflicts": conflict.Conflicts,
		})
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, state.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, db.ErrStaleVersion):
		writeError(w, http.StatusConflict, "appointment was modified concurrently; reload and retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
