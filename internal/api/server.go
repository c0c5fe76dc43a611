// Package api serves the event viewer: the logged events as JSON, the
// recorded GPS track, a status summary and a scatter map of the events.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pothole.report/internal/db"
	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/pipeline"
	"github.com/banshee-data/pothole.report/internal/timeutil"
	"github.com/banshee-data/pothole.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultAssetsHost is where the map page loads its chart scripts from. The
// viewer probes it before rendering.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// FixSource returns the most recent position snapshot.
type FixSource interface {
	Latest() gps.Fix
}

// StatsSource reports live pipeline counters.
type StatsSource interface {
	Stats() pipeline.Stats
}

// Config wires a Server. Only EventsPath is required.
type Config struct {
	EventsPath string
	// DB, when set, serves the track and the event summary.
	DB       *db.DB
	Fixes    FixSource
	Pipeline StatsSource
	// Client probes AssetsHost before the map is rendered.
	Client     httputil.HTTPClient
	AssetsHost string
	// Units and Timezone are the display defaults; requests may override.
	Units    string
	Timezone string
	Clock    timeutil.Clock
}

type Server struct {
	cfg Config
}

func NewServer(cfg Config) *Server {
	if cfg.Client == nil {
		cfg.Client = httputil.NewStandardClient(nil)
	}
	if cfg.AssetsHost == "" {
		cfg.AssetsHost = DefaultAssetsHost
	}
	if !units.IsValid(cfg.Units) {
		cfg.Units = units.SquareMeters
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Server{cfg: cfg}
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

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/track", s.showTrack)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/map", s.showMap)
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/map", http.StatusFound)
	})
	return mux
}

// online reports whether the chart assets can be fetched.
func (s *Server) online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := httputil.Probe(ctx, s.cfg.Client, s.cfg.AssetsHost+"echarts.min.js"); err != nil {
		monitoring.Logf("viewer offline: %v", err)
		return false
	}
	return true
}

// displayOptions reads the units, tz and days query parameters.
type displayOptions struct {
	units    string
	timezone string
	since    time.Time
}

func (s *Server) parseDisplayOptions(r *http.Request) (displayOptions, string) {
	q := r.URL.Query()
	o := displayOptions{units: s.cfg.Units, timezone: s.cfg.Timezone}
	if u := q.Get("units"); u != "" {
		if !units.IsValid(u) {
			return o, "Invalid 'units' parameter, must be one of: " + units.GetValidUnitsString()
		}
		o.units = u
	}
	if tz := q.Get("tz"); tz != "" {
		if !units.IsTimezoneValid(tz) {
			return o, "Invalid 'tz' parameter"
		}
		o.timezone = tz
	}
	if d := q.Get("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days < 1 {
			return o, "Invalid 'days' parameter"
		}
		o.since = s.cfg.Clock.Now().AddDate(0, 0, -days)
	}
	return o, ""
}

func (s *Server) displayTime(t time.Time, tz string) time.Time {
	local, err := units.ConvertTime(t.UTC(), tz)
	if err != nil {
		return t.UTC()
	}
	return local
}
