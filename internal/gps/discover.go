package gps

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// DefaultGlob matches USB serial adapters, where positioning modems usually
// enumerate.
const DefaultGlob = "/dev/ttyUSB*"

// ErrPortNotFound is returned when no candidate device answers the probe.
var ErrPortNotFound = errors.New("gps: no positioning device found")

// Discoverer finds the serial device a positioning modem is attached to.
type Discoverer struct {
	// Candidates are probed first, in order.
	Candidates []string
	// Glob adds matching device paths after Candidates. Empty disables it.
	Glob string
	// Enumerate lists ports reported by the operating system; probed last.
	Enumerate func() ([]string, error)
	// Open opens a candidate for probing. Defaults to serialmux.OpenRealPort.
	Open serialmux.SerialPortOpener
	// Reopen opens the selected port for OpenDevice. Nil opens it with
	// blocking reads.
	Reopen  serialmux.SerialPortOpener
	Options serialmux.PortOptions
	Settle  time.Duration
	Clock   timeutil.Clock
}

// NewDiscoverer returns a Discoverer that probes candidates, then DefaultGlob,
// then the ports the operating system enumerates.
func NewDiscoverer(candidates []string, opts serialmux.PortOptions, settle time.Duration) *Discoverer {
	return &Discoverer{
		Candidates: candidates,
		Glob:       DefaultGlob,
		Enumerate:  serialmux.ListPorts,
		Open:       serialmux.OpenRealPort,
		Options:    opts,
		Settle:     settle,
		Clock:      timeutil.RealClock{},
	}
}

// paths returns the de-duplicated probe order.
func (d *Discoverer) paths() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range d.Candidates {
		add(p)
	}
	if d.Glob != "" {
		matches, err := filepath.Glob(d.Glob)
		if err != nil {
			diagf("bad glob %q: %v", d.Glob, err)
		}
		for _, p := range matches {
			add(p)
		}
	}
	if d.Enumerate != nil {
		ports, err := d.Enumerate()
		if err != nil {
			diagf("port enumeration failed: %v", err)
		}
		for _, p := range ports {
			add(p)
		}
	}
	return out
}

// Discover probes each candidate path and returns the first that answers like
// a positioning modem. Every probed port is closed again before returning; the
// caller reopens the selected path for long-lived use.
func (d *Discoverer) Discover(ctx context.Context) (string, error) {
	open := d.Open
	if open == nil {
		open = serialmux.OpenRealPort
	}
	opts, err := d.Options.Normalise()
	if err != nil {
		return "", err
	}

	for _, path := range d.paths() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ok, err := d.probe(ctx, open, path, opts)
		if err != nil {
			diagf("port %s not ready: %v", path, err)
			continue
		}
		if ok {
			opsf("found positioning modem on %s", path)
			return path, nil
		}
		diagf("port %s did not answer as a modem", path)
	}
	return "", ErrPortNotFound
}

func (d *Discoverer) probe(ctx context.Context, open serialmux.SerialPortOpener, path string, opts serialmux.PortOptions) (bool, error) {
	port, err := open(path, opts)
	if err != nil {
		return false, err
	}
	mux := serialmux.NewSerialMux(port)

	probeCtx, cancel := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		mux.Monitor(probeCtx)
	}()

	ok, err := NewModem(mux, d.Settle, d.Clock).Probe(probeCtx)

	cancel()
	mux.Close()
	<-monitorDone
	return ok, err
}
