// Package api exposes the store status over HTTP and WebSocket.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pizzeria/internal/events"
	"pizzeria/internal/service"
	"pizzeria/internal/storehours"
)

// StoreService is the configuration store used by the handlers.
type StoreService interface {
	Current(ctx context.Context) (storehours.View, storehours.WeeklySchedule, error)
	SetStatus(ctx context.Context, actor string, u service.StatusUpdate) error
	SetDay(ctx context.Context, actor string, day time.Weekday, h storehours.DayHours) error
	SetSchedule(ctx context.Context, actor string, s storehours.WeeklySchedule) error
}

// Exporter writes the journal as a spreadsheet.
type Exporter interface {
	Export(ctx context.Context, from, to time.Time, w io.Writer) (int, error)
}

// Config holds HTTP server settings.
type Config struct {
	Port        int
	AdminAPIKey string
	Location    *time.Location
	// AllowedOrigins are host patterns accepted for cross-origin websocket
	// upgrades, e.g. "app.example.com" or "*.example.com". Same-origin and
	// non-browser clients are always accepted.
	AllowedOrigins []string
}

// HTTPServer serves the public and admin API.
type HTTPServer struct {
	config   Config
	store    StoreService
	exporter Exporter
	bus      *events.Bus
	logger   zerolog.Logger
	server   *http.Server
}

// NewHTTPServer builds the router. exporter may be nil.
func NewHTTPServer(config Config, store StoreService, exporter Exporter, bus *events.Bus, logger zerolog.Logger) *HTTPServer {
	if config.Location == nil {
		config.Location = time.Local
	}
	s := &HTTPServer{
		config:   config,
		store:    store,
		exporter: exporter,
		bus:      bus,
		logger:   logger.With().Str("component", "http").Logger(),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/store/status", s.handleCustomerStatus)
	r.Get("/ws/store", s.handleStoreSocket)

	r.Route("/api/admin/store", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/", s.handleAdminStore)
		r.Put("/status", s.handleSetStatus)
		r.Get("/hours", s.handleGetHours)
		r.Put("/hours", s.handleSetHours)
		r.Put("/hours/{day}", s.handleSetDay)
		r.Get("/journal.xlsx", s.handleJournalExport)
	})

	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) isAdmin(r *http.Request) bool {
	if s.config.AdminAPIKey == "" {
		return false
	}
	key := r.Header.Get("X-Api-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.config.AdminAPIKey)) == 1
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "admin"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
