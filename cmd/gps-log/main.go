// Command gps-log records the vehicle track: it polls the modem on a fixed
// interval, prints every fix, and stores valid fixes in the gps_fixes table
// and optionally a CSV file.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pothole.report/internal/config"
	"github.com/banshee-data/pothole.report/internal/db"
	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
	"github.com/banshee-data/pothole.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	dbPath      = flag.String("db", "", "SQLite store (overrides config)")
	csvPath     = flag.String("csv", "", "Also append fixes to this CSV file")
	interval    = flag.Duration("interval", 3*time.Second, "Poll interval")
	devMode     = flag.Bool("dev", false, "Use a simulated GPS modem")
	devFix      = flag.String("dev-fix", "3113.343286,N,12121.234064,E,250311,072809.3,44.1,0.0,0", "CGPSINFO payload the simulated modem reports")
	logDir      = flag.String("log-dir", "", "Directory for rotated log files (default: stderr only)")
	diag        = flag.Bool("diag", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

var csvHeader = []string{"timestamp", "latitude", "longitude", "altitude_m"}

type fixStore interface {
	RecordFix(gps.Fix) error
}

// trackLogger receives every polled fix.
type trackLogger struct {
	out   io.Writer
	store fixStore
	csv   *csv.Writer
	clock timeutil.Clock
}

func newCSV(w io.Writer, empty bool) (*csv.Writer, error) {
	cw := csv.NewWriter(w)
	if empty {
		if err := cw.Write(csvHeader); err != nil {
			return nil, err
		}
		cw.Flush()
	}
	return cw, cw.Error()
}

func (l *trackLogger) record(fix gps.Fix) {
	lat, lon, ok := fix.LatLon()
	if !ok {
		fmt.Fprintln(l.out, "No fix.")
		return
	}
	local := l.clock.Now().Local().Format("2006-01-02 15:04:05")
	fmt.Fprintf(l.out, "[%s] Latitude: %.6f, Longitude: %.6f, Altitude: %s m\n", local, lat, lon, fix.Altitude)

	if l.store != nil {
		if err := l.store.RecordFix(fix); err != nil {
			log.Printf("failed to store fix: %v", err)
		}
	}
	if l.csv != nil {
		row := []string{
			fix.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(lat, 'f', -1, 64),
			strconv.FormatFloat(lon, 'f', -1, 64),
			fix.Altitude,
		}
		if err := l.csv.Write(row); err == nil {
			l.csv.Flush()
		}
		if err := l.csv.Error(); err != nil {
			log.Printf("failed to write track CSV: %v", err)
		}
	}
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("gps-log", version.String())
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	streams, err := monitoring.OpenStreams("gps-log", monitoring.LogOptions{Dir: *logDir, Diag: *diag, Trace: *trace}, os.Stderr)
	if err != nil {
		log.Fatalf("failed to open logs: %v", err)
	}
	defer streams.Close()
	log.SetOutput(streams.Ops)
	streams.Install()
	gps.SetLogWriters(streams.Ops, streams.Diag, streams.Trace)

	path := cfg.GetDBPath()
	if *dbPath != "" {
		path = *dbPath
	}
	store, err := db.NewDB(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	tl := &trackLogger{out: os.Stdout, store: store, clock: timeutil.RealClock{}}
	if *csvPath != "" {
		f, err := os.OpenFile(*csvPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open track CSV: %v", err)
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			log.Fatalf("failed to stat track CSV: %v", err)
		}
		if tl.csv, err = newCSV(f, st.Size() == 0); err != nil {
			log.Fatalf("failed to write track CSV header: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var device *gps.Device
	if *devMode {
		device = gps.SimulatedDevice(*devFix, cfg.GetGPSSettle(), timeutil.RealClock{})
	} else {
		d := gps.NewDiscoverer(cfg.GetGPSPorts(), serialmux.PortOptions{BaudRate: cfg.GetGPSBaudRate()}, cfg.GetGPSSettle())
		if device, err = gps.OpenDevice(ctx, d); err != nil {
			log.Fatalf("failed to open positioning device: %v", err)
		}
	}
	defer device.Close()
	log.Printf("Found GPS on port %s", device.Path)

	poller := gps.NewPoller(device.Modem, gps.PollerConfig{Interval: *interval, OnFix: tl.record})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := device.Mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
	}()

	fmt.Println("Reading GPS coordinates... (Ctrl+C to stop)")
	pollUntilDone(ctx, poller.Run)
	stop()
	wg.Wait()

	s := poller.Stats()
	log.Printf("Stopped. polls=%d fixes=%d", s.Polls, s.Fixes)
}

// pollUntilDone runs poll and logs any exit other than cancellation.
func pollUntilDone(ctx context.Context, poll func(context.Context) error) {
	if err := poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("poller stopped: %v", err)
	}
}
