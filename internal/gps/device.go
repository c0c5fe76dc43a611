package gps

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// Device is a positioning modem held open for the life of the process.
// Callers run Mux.Monitor in a goroutine so Modem receives replies.
type Device struct {
	Path  string
	Mux   serialmux.SerialMuxInterface
	Modem *Modem
}

// OpenDevice discovers the modem with d and reopens the selected port for
// long-lived use.
func OpenDevice(ctx context.Context, d *Discoverer) (*Device, error) {
	path, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := d.Options.Normalise()
	if err != nil {
		return nil, err
	}

	// the probe opener bounds reads for discovery; the long-lived mux needs
	// blocking reads so a quiet modem does not end Monitor
	var mux serialmux.SerialMuxInterface
	if d.Reopen != nil {
		port, err := d.Reopen(path, opts)
		if err != nil {
			return nil, fmt.Errorf("reopen %s: %w", path, err)
		}
		mux = serialmux.NewSerialMux(port)
	} else {
		if mux, err = serialmux.NewRealSerialMux(path, opts); err != nil {
			return nil, fmt.Errorf("reopen %s: %w", path, err)
		}
	}
	return &Device{Path: path, Mux: mux, Modem: NewModem(mux, d.Settle, d.Clock)}, nil
}

// SimulatedDevice returns a Device backed by an in-process modem that reports
// info for every position query. Used by -dev runs.
func SimulatedDevice(info string, settle time.Duration, clock timeutil.Clock) *Device {
	mux := serialmux.NewMockSerialMux(info)
	return &Device{Path: "simulated", Mux: mux, Modem: NewModem(mux, settle, clock)}
}

// Close releases the serial port.
func (d *Device) Close() error { return d.Mux.Close() }
