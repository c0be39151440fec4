// Package api serves live capture state over HTTP as JSON.
package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/speedcam/internal/httputil"
	"github.com/banshee-data/speedcam/internal/monitoring"
	"github.com/banshee-data/speedcam/internal/pipeline"
	"github.com/banshee-data/speedcam/internal/storage"
	"github.com/banshee-data/speedcam/internal/units"
	"github.com/banshee-data/speedcam/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the running pipeline and the session store.
type Server struct {
	pipeline   *pipeline.Pipeline
	db         *storage.DB
	rateWindow time.Duration
}

// NewServer creates a Server. db may be nil when persistence is
// disabled; the stored-session endpoint then reports 404.
func NewServer(p *pipeline.Pipeline, db *storage.DB, rateWindow time.Duration) *Server {
	return &Server{
		pipeline:   p,
		db:         db,
		rateWindow: rateWindow,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
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

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

type statsResponse struct {
	SessionID         string  `json:"session_id"`
	Count             int64   `json:"count"`
	RatePerMinute     float64 `json:"rate_per_minute"`
	WindowRatePerMin  float64 `json:"window_rate_per_minute"`
	ActiveTracks      int     `json:"active_tracks"`
	RateWindowSeconds float64 `json:"rate_window_seconds"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	counter := s.pipeline.Counter()
	httputil.WriteJSONOK(w, statsResponse{
		SessionID:         s.pipeline.SessionID(),
		Count:             counter.Count(),
		RatePerMinute:     counter.Rate(),
		WindowRatePerMin:  counter.RateWindow(s.rateWindow),
		ActiveTracks:      len(s.pipeline.LiveTracks()),
		RateWindowSeconds: s.rateWindow.Seconds(),
	})
}

type tracksResponse struct {
	Units  string                   `json:"units"`
	Tracks []pipeline.TrackSnapshot `json:"tracks"`
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.KPH
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, "invalid units, must be one of: "+units.GetValidUnitsString())
		return
	}

	tracks := s.pipeline.LiveTracks()
	if tracks == nil {
		tracks = []pipeline.TrackSnapshot{}
	}
	// Snapshots carry km/h; convert at the edge.
	for i := range tracks {
		if tracks[i].SpeedKMH == nil {
			continue
		}
		v := units.ConvertSpeed(*tracks[i].SpeedKMH/3.6, unit)
		tracks[i].SpeedKMH = &v
	}
	httputil.WriteJSONOK(w, tracksResponse{Units: unit, Tracks: tracks})
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "persistence disabled")
		return
	}

	session, err := s.db.GetSession(s.pipeline.SessionID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(w, "session not found")
			return
		}
		httputil.InternalServerError(w, "failed to load session")
		return
	}
	httputil.WriteJSONOK(w, session)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":     "ok",
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
