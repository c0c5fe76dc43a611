package gps

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// DefaultPollInterval is the cadence at which the poller queries the modem and
// therefore the staleness bound on the fix a detection reads.
const DefaultPollInterval = 2 * time.Second

// Querier returns the current fix from a positioning device.
type Querier interface {
	Query(ctx context.Context) (Fix, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
	Clock    timeutil.Clock
	// OnFix, when set, is called from the polling goroutine after every
	// poll with the fix that was just published.
	OnFix func(Fix)
}

// PollerStats are counters exposed for diagnostics.
type PollerStats struct {
	Polls    uint64 `json:"polls"`
	Fixes    uint64 `json:"fixes"`
	NoFix    uint64 `json:"no_fix"`
	Failures uint64 `json:"failures"`
}

// Poller owns a positioning device and publishes the latest fix into a
// single-slot cell. Readers never touch the device.
type Poller struct {
	querier  Querier
	interval time.Duration
	clock    timeutil.Clock
	onFix    func(Fix)

	latest atomic.Pointer[Fix]

	polls    atomic.Uint64
	fixes    atomic.Uint64
	noFix    atomic.Uint64
	failures atomic.Uint64
}

// NewPoller creates a Poller around q.
func NewPoller(q Querier, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Poller{
		querier:  q,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		onFix:    cfg.OnFix,
	}
}

// Latest returns the most recently published fix. Before the first poll it
// returns a Fix with no coordinates.
func (p *Poller) Latest() Fix {
	if f := p.latest.Load(); f != nil {
		return *f
	}
	return Fix{}
}

// PollOnce queries the device and publishes the result. Query failures are
// logged and published as an absent fix.
func (p *Poller) PollOnce(ctx context.Context) Fix {
	p.polls.Add(1)
	fix, err := p.querier.Query(ctx)
	if err != nil {
		p.failures.Add(1)
		if ctx.Err() == nil {
			opsf("position query failed: %v", err)
		}
		fix = Fix{Time: p.clock.Now()}
	} else if fix.Valid() {
		p.fixes.Add(1)
	} else {
		p.noFix.Add(1)
	}

	prev := p.latest.Swap(&fix)
	if prev == nil || prev.Valid() != fix.Valid() {
		diagf("fix state: %s", fix)
	}
	tracef("published %s", fix)

	if p.onFix != nil {
		p.onFix(fix)
	}
	return fix
}

// Run polls immediately and then once per interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			p.PollOnce(ctx)
		}
	}
}

// Stats returns a snapshot of the poll counters.
func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Polls:    p.polls.Load(),
		Fixes:    p.fixes.Load(),
		NoFix:    p.noFix.Load(),
		Failures: p.failures.Load(),
	}
}

// AttachAdminRoutes exposes the latest fix and poll counters under /debug/.
func (p *Poller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("gps", "latest GPS fix and poll counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Fix   Fix         `json:"fix"`
			Stats PollerStats `json:"stats"`
		}{p.Latest(), p.Stats()})
	})
}
