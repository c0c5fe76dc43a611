package gps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// Modem commands.
const (
	CommandAlive     = "AT"
	CommandEnableGPS = "AT+CGPS=1,1"
	CommandInfo      = "AT+CGPSINFO"
)

// DefaultSettle is how long the modem is given to answer a command batch.
const DefaultSettle = time.Second

// ErrMuxClosed is returned when the serial mux closes the subscription while
// a command exchange is in flight.
var ErrMuxClosed = errors.New("gps: serial mux closed")

// Modem drives a SIMCom-style positioning modem through a SerialMux. The mux
// must be monitored by the caller (mux.Monitor) for replies to arrive.
type Modem struct {
	mux    serialmux.SerialMuxInterface
	settle time.Duration
	clock  timeutil.Clock
}

// NewModem returns a Modem. A zero settle uses DefaultSettle and a nil clock
// uses the real clock.
func NewModem(mux serialmux.SerialMuxInterface, settle time.Duration, clock timeutil.Clock) *Modem {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Modem{mux: mux, settle: settle, clock: clock}
}

// exchange sends cmds back to back, then collects every line the modem emits
// until the settle interval elapses.
func (m *Modem) exchange(ctx context.Context, cmds ...string) ([]string, error) {
	id, ch := m.mux.Subscribe()
	defer m.mux.Unsubscribe(id)

	for _, cmd := range cmds {
		tracef("-> %s", cmd)
		if err := m.mux.SendCommand(cmd); err != nil {
			return nil, fmt.Errorf("send %s: %w", cmd, err)
		}
	}

	settled := m.clock.After(m.settle)
	var lines []string
	for {
		select {
		case <-ctx.Done():
			return lines, ctx.Err()
		case <-settled:
			// take whatever was already buffered when the interval ran out
			for {
				select {
				case line, ok := <-ch:
					if !ok {
						return lines, nil
					}
					tracef("<- %s", line)
					lines = append(lines, line)
				default:
					return lines, nil
				}
			}
		case line, ok := <-ch:
			if !ok {
				return lines, ErrMuxClosed
			}
			tracef("<- %s", line)
			lines = append(lines, line)
		}
	}
}

// Probe performs the discovery handshake: an alive check, then a position
// query. It reports whether the reply to the query looks like a modem.
func (m *Modem) Probe(ctx context.Context) (bool, error) {
	if _, err := m.exchange(ctx, CommandAlive); err != nil {
		return false, err
	}
	lines, err := m.exchange(ctx, CommandInfo)
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if strings.Contains(line, serialmux.GPSInfoToken) || strings.Contains(line, "OK") {
			return true, nil
		}
	}
	return false, nil
}

// Query enables the GPS engine, requests position info and decodes the reply.
// A modem without a fix yields a Fix with no coordinates and a nil error.
func (m *Modem) Query(ctx context.Context) (Fix, error) {
	lines, err := m.exchange(ctx, CommandEnableGPS, CommandInfo)
	now := m.clock.Now()
	if err != nil {
		return Fix{Time: now}, err
	}
	return FixFromLines(lines, now), nil
}
