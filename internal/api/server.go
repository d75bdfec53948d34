package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"karabook/internal/config"
	"karabook/internal/metrics"
	"karabook/internal/service"
	"karabook/internal/worker"

	"github.com/rs/zerolog"
)

// Server exposes the reservation lifecycle over HTTP. Routing follows
// the plain net/http mux; path parameters are parsed by hand from the
// trailing segment.
type Server struct {
	cfg          config.Config
	reservations *service.ReservationService
	payments     *service.PaymentEventService
	waitlist     *service.WaitlistService
	redelivery   *worker.RedeliveryWorker
	logger       *zerolog.Logger
	server       *http.Server
	auth         *Auth
	now          func() time.Time
}

func NewServer(
	cfg config.Config,
	reservations *service.ReservationService,
	payments *service.PaymentEventService,
	waitlist *service.WaitlistService,
	redelivery *worker.RedeliveryWorker,
	logger *zerolog.Logger,
) *Server {
	srv := &Server{
		cfg:          cfg,
		reservations: reservations,
		payments:     payments,
		waitlist:     waitlist,
		redelivery:   redelivery,
		logger:       logger,
		now:          time.Now,
	}
	srv.auth = NewAuth(cfg.API)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/reservations", srv.handleReservations)
	mux.HandleFunc("/api/v1/reservations/", srv.handleReservationByID)
	mux.HandleFunc("/api/v1/rooms", srv.handleRooms)
	mux.HandleFunc("/api/v1/availability/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/waitlist", srv.handleWaitlist)
	mux.HandleFunc("/api/v1/waitlist/", srv.handleWaitlistByID)
	mux.HandleFunc("/api/v1/payment-events/unapplied", srv.handleUnappliedEvents)
	mux.HandleFunc("/api/v1/reports/schedule.xlsx", srv.handleScheduleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	// Webhooks authenticate by signature, not API key, so they sit
	// outside the auth wrapper.
	outer := http.NewServeMux()
	outer.Handle("/api/v1/", srv.auth.Wrap(mux))
	outer.HandleFunc("/webhooks/payment", srv.handlePaymentWebhook)
	outer.Handle("/healthz", mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           srv.loggingMiddleware(outer),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
