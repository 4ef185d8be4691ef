// Package api serves read-only diagnostics for a running robot: the pose
// tree, object positions, stored calibrations and a deck map.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/deck.control/internal/calibration"
	"github.com/banshee-data/deck.control/internal/db"
	"github.com/banshee-data/deck.control/internal/monitoring"
	"github.com/banshee-data/deck.control/internal/robot"
	"github.com/banshee-data/deck.control/internal/serialmux"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	robot     *robot.Robot
	store     calibration.Store
	db        *db.DB
	serial    serialmux.SerialMuxInterface
	sessionID string
	started   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStore serves /api/calibrations from store.
func WithStore(store calibration.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithDB serves the calibration log and the database admin routes.
func WithDB(d *db.DB) Option {
	return func(s *Server) { s.db = d }
}

// WithSerial attaches the serial console admin routes.
func WithSerial(m serialmux.SerialMuxInterface) Option {
	return func(s *Server) { s.serial = m }
}

// WithSessionID tags /api/status with the daemon's session.
func WithSessionID(id string) Option {
	return func(s *Server) { s.sessionID = id }
}

func NewServer(r *robot.Robot, opts ...Option) *Server {
	s := &Server{robot: r, started: time.Now()}
	for _, o := range opts {
		o(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the diagnostics routes, plus the serial and database
// admin routes when those backends were supplied.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.getOnly(s.showStatus))
	mux.HandleFunc("/api/pose/tree", s.getOnly(s.showTree))
	mux.HandleFunc("/api/pose/position", s.getOnly(s.showPosition))
	mux.HandleFunc("/api/deck/max-z", s.getOnly(s.showMaxZ))
	mux.HandleFunc("/api/containers", s.getOnly(s.listContainers))
	mux.HandleFunc("/api/labware", s.getOnly(s.listLabware))
	mux.HandleFunc("/api/calibrations", s.getOnly(s.listCalibrations))
	mux.HandleFunc("/api/calibrations/log", s.getOnly(s.listCalibrationLog))
	mux.HandleFunc("/debug/deck-map", s.getOnly(s.showDeckMap))
	mux.HandleFunc("/debug/deck-map.png", s.getOnly(s.showDeckMapPNG))
	mux.Handle("/metrics", promhttp.Handler())

	if s.serial != nil {
		s.serial.AttachAdminRoutes(mux)
	}
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}
