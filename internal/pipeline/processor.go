// Package pipeline turns per-frame detections into logged pothole events:
// measure, read the latest fix, deduplicate by distance, then append.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pothole.report/internal/dedup"
	"github.com/banshee-data/pothole.report/internal/eventlog"
	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/measure"
	"github.com/banshee-data/pothole.report/internal/publish"
	"github.com/banshee-data/pothole.report/internal/timeutil"
	"github.com/banshee-data/pothole.report/internal/vision"
)

// FixSource returns the most recent position snapshot without blocking.
type FixSource interface {
	Latest() gps.Fix
}

// EventLog is the durable record of events.
type EventLog interface {
	Append(e eventlog.Event) error
}

// EventIndex mirrors logged events into a queryable store.
type EventIndex interface {
	RecordEvent(id string, e eventlog.Event) error
}

// Config wires a Processor. Engine, Fixes, Gate and Log are required.
type Config struct {
	Engine    *measure.Engine
	Fixes     FixSource
	Gate      *dedup.Gate
	Log       EventLog
	Index     EventIndex
	Publisher publish.Publisher
	// Undistorter, when set, is applied once per frame before cropping.
	Undistorter *vision.Undistorter
	Clock       timeutil.Clock
	JPEGQuality int
	// NewID returns event ids. Defaults to random UUIDs.
	NewID func() string
}

// Stats counts what happened to each detection.
type Stats struct {
	Frames          uint64 `json:"frames"`
	Detections      uint64 `json:"detections"`
	Rejected        uint64 `json:"rejected"`
	NoFix           uint64 `json:"no_fix"`
	Duplicates      uint64 `json:"duplicates"`
	Logged          uint64 `json:"logged"`
	CropFailures    uint64 `json:"crop_failures"`
	IndexFailures   uint64 `json:"index_failures"`
	PublishFailures uint64 `json:"publish_failures"`
	MalformedFrames uint64 `json:"malformed_frames"`
}

// Processor handles one frame at a time. ProcessFrame is not reentrant; the
// mutex enforces that when frames arrive from more than one goroutine.
type Processor struct {
	cfg Config
	mu  sync.Mutex

	frames, detections, rejected, noFix, duplicates atomic.Uint64
	logged, cropFailures, indexFailures, pubFailures atomic.Uint64
	malformed                                        atomic.Uint64

	last atomic.Pointer[eventlog.Event]
}

// NewProcessor validates cfg and fills defaults.
func NewProcessor(cfg Config) (*Processor, error) {
	switch {
	case cfg.Engine == nil:
		return nil, errors.New("pipeline: measurement engine required")
	case cfg.Fixes == nil:
		return nil, errors.New("pipeline: fix source required")
	case cfg.Gate == nil:
		return nil, errors.New("pipeline: dedup gate required")
	case cfg.Log == nil:
		return nil, errors.New("pipeline: event log required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = publish.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = vision.DefaultJPEGQuality
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &Processor{cfg: cfg}, nil
}

// ProcessFrame measures, deduplicates and logs every detection in f. It
// returns the events that were logged. A failure to append to the log is
// returned immediately and the remaining detections are dropped; every other
// per-detection failure is counted and skipped.
func (p *Processor) ProcessFrame(ctx context.Context, f Frame) ([]eventlog.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frames.Add(1)
	var (
		logged    []eventlog.Event
		corrected image.Image
	)
	for _, d := range f.Detections {
		p.detections.Add(1)
		d.Frame = f.Index

		res, err := p.cfg.Engine.Measure(d)
		if err != nil {
			p.rejected.Add(1)
			diagf("frame %d: %v", f.Index, err)
			continue
		}

		fix := p.cfg.Fixes.Latest()
		lat, lon, ok := fix.LatLon()
		if !ok {
			p.noFix.Add(1)
			tracef("frame %d: no fix, area %.6f m2 not logged", f.Index, res.AreaSquareMeters)
			continue
		}
		if !p.cfg.Gate.ShouldLog(fix) {
			p.duplicates.Add(1)
			tracef("frame %d: within %.1f m of last event", f.Index, p.cfg.Gate.Threshold())
			continue
		}

		ev := eventlog.Event{
			Time:       p.cfg.Clock.Now(),
			Latitude:   lat,
			Longitude:  lon,
			Altitude:   fix.Altitude,
			AreaM2:     res.AreaSquareMeters,
			Confidence: d.Confidence,
			Frame:      f.Index,
		}
		if f.Image != nil {
			if corrected == nil {
				corrected = f.Image
				if p.cfg.Undistorter != nil {
					corrected = p.cfg.Undistorter.Apply(f.Image)
				}
			}
			box := vision.Box(d.XMin, d.YMin, d.Width, d.Height, corrected.Bounds())
			if enc, err := vision.CropJPEGBase64(corrected, box, p.cfg.JPEGQuality); err != nil {
				p.cropFailures.Add(1)
				diagf("frame %d: crop: %v", f.Index, err)
			} else {
				ev.ImageBase64 = enc
			}
		}

		if err := p.cfg.Log.Append(ev); err != nil {
			opsf("frame %d: event log append failed: %v", f.Index, err)
			return logged, err
		}
		p.logged.Add(1)
		p.last.Store(&ev)
		logged = append(logged, ev)
		tracef("frame %d: logged %.6f m2 at %.6f,%.6f", f.Index, ev.AreaM2, lat, lon)

		id := p.cfg.NewID()
		if p.cfg.Index != nil {
			if err := p.cfg.Index.RecordEvent(id, ev); err != nil {
				p.indexFailures.Add(1)
				diagf("index event %s: %v", id, err)
			}
		}
		msg := publish.NewMessage(id, ev)
		msg.DynamicScale = res.DynamicScale
		if err := p.cfg.Publisher.Publish(ctx, msg); err != nil {
			p.pubFailures.Add(1)
			diagf("publish event %s: %v", id, err)
		}
	}
	return logged, nil
}

// Run processes frames from src until it is exhausted, ctx is cancelled or
// the event log fails. Exhaustion returns nil. Malformed records are counted
// and skipped; any other read error stops the run.
func (p *Processor) Run(ctx context.Context, src Source) error {
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, ErrMalformedFrame) {
			p.malformed.Add(1)
			opsf("frame %d skipped: %v", f.Index, err)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if _, err := p.ProcessFrame(ctx, f); err != nil {
			return err
		}
	}
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Frames:          p.frames.Load(),
		Detections:      p.detections.Load(),
		Rejected:        p.rejected.Load(),
		NoFix:           p.noFix.Load(),
		Duplicates:      p.duplicates.Load(),
		Logged:          p.logged.Load(),
		CropFailures:    p.cropFailures.Load(),
		IndexFailures:   p.indexFailures.Load(),
		PublishFailures: p.pubFailures.Load(),
		MalformedFrames: p.malformed.Load(),
	}
}

// LastEvent returns the most recently logged event.
func (p *Processor) LastEvent() (eventlog.Event, bool) {
	if e := p.last.Load(); e != nil {
		return *e, true
	}
	return eventlog.Event{}, false
}

// AttachAdminRoutes exposes the counters and the last event under /debug/.
func (p *Processor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("pipeline", "detection pipeline counters", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			Stats Stats           `json:"stats"`
			Last  *eventlog.Event `json:"last,omitempty"`
		}{Stats: p.Stats()}
		if e, ok := p.LastEvent(); ok {
			e.ImageBase64 = ""
			resp.Last = &e
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
