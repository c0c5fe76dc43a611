package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pothole.report/internal/db"
	"github.com/banshee-data/pothole.report/internal/eventlog"
	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/pipeline"
	"github.com/banshee-data/pothole.report/internal/units"
	"github.com/banshee-data/pothole.report/internal/version"
)

// EventAPI is one logged event as served to the viewer.
type EventAPI struct {
	Timestamp   time.Time `json:"timestamp"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Altitude    string    `json:"altitude,omitempty"`
	Area        float64   `json:"area"`
	Confidence  float64   `json:"confidence"`
	Frame       int64     `json:"frame"`
	ImageBase64 string    `json:"image_base64,omitempty"`
}

// EventsResponse is the body of /api/events.
type EventsResponse struct {
	Units    string     `json:"units"`
	Timezone string     `json:"timezone"`
	Events   []EventAPI `json:"events"`
	// Skipped counts log rows without numeric coordinates or area.
	Skipped int `json:"skipped"`
}

func (s *Server) readEvents(o displayOptions) ([]eventlog.Event, int, error) {
	res, err := eventlog.ReadFile(s.cfg.EventsPath)
	if err != nil {
		return nil, 0, err
	}
	if o.since.IsZero() {
		return res.Events, res.Skipped, nil
	}
	kept := res.Events[:0]
	for _, e := range res.Events {
		if !e.Time.Before(o.since) {
			kept = append(kept, e)
		}
	}
	return kept, res.Skipped, nil
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	o, msg := s.parseDisplayOptions(r)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}
	withImages := true
	if v := r.URL.Query().Get("images"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "Invalid 'images' parameter")
			return
		}
		withImages = b
	}

	events, skipped, err := s.readEvents(o)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to read event log: %v", err))
		return
	}

	resp := EventsResponse{Units: o.units, Timezone: o.timezone, Events: make([]EventAPI, len(events)), Skipped: skipped}
	for i, e := range events {
		resp.Events[i] = EventAPI{
			Timestamp:  s.displayTime(e.Time, o.timezone),
			Latitude:   e.Latitude,
			Longitude:  e.Longitude,
			Altitude:   e.Altitude,
			Area:       units.ConvertArea(e.AreaM2, o.units),
			Confidence: e.Confidence,
			Frame:      e.Frame,
		}
		if withImages {
			resp.Events[i].ImageBase64 = e.ImageBase64
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.DB == nil {
		httputil.NotFound(w, "track store not configured")
		return
	}
	o, msg := s.parseDisplayOptions(r)
	if msg != "" {
		httputil.BadRequest(w, msg)
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	track, err := s.cfg.DB.Track(o.since, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve track: %v", err))
		return
	}
	for i := range track {
		track[i].Time = s.displayTime(track[i].Time, o.timezone)
	}
	httputil.WriteJSONOK(w, track)
}

// StatusResponse is the body of /api/status. Absent sources are omitted.
type StatusResponse struct {
	Version  string           `json:"version"`
	GitSHA   string           `json:"git_sha"`
	Fix      *gps.Fix         `json:"fix,omitempty"`
	Pipeline *pipeline.Stats  `json:"pipeline,omitempty"`
	Summary  *db.EventSummary `json:"summary,omitempty"`
	Online   bool             `json:"online"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := StatusResponse{
		Version: version.Version,
		GitSHA:  version.GitSHA,
		Online:  s.online(r.Context()),
	}
	if s.cfg.Fixes != nil {
		fix := s.cfg.Fixes.Latest()
		resp.Fix = &fix
	}
	if s.cfg.Pipeline != nil {
		stats := s.cfg.Pipeline.Stats()
		resp.Pipeline = &stats
	}
	if s.cfg.DB != nil {
		sum, err := s.cfg.DB.Summary()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to summarise events: %v", err))
			return
		}
		resp.Summary = &sum
	}
	httputil.WriteJSONOK(w, resp)
}
