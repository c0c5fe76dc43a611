// Command pothole measures detected potholes, geotags them from the GPS modem
// and appends deduplicated events to the CSV log, while serving the viewer.
//
// Detections arrive as JSON lines on -input (stdin by default), one object
// per frame:
//
//	{"frame":7,"image_path":"frames/000007.jpg","detections":[{"x":412,"y":300,"w":96,"h":40,"confidence":0.91}]}
//
// Usage:
//
//	pothole [flags]
//	pothole migrate up|down|status|force N
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pothole.report/internal/api"
	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/config"
	"github.com/banshee-data/pothole.report/internal/db"
	"github.com/banshee-data/pothole.report/internal/dedup"
	"github.com/banshee-data/pothole.report/internal/eventlog"
	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/measure"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/pipeline"
	"github.com/banshee-data/pothole.report/internal/publish"
	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
	"github.com/banshee-data/pothole.report/internal/version"
	"github.com/banshee-data/pothole.report/internal/vision"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	calibPath   = flag.String("calibration", "", "Calibration record (overrides config)")
	eventsPath  = flag.String("events", "", "Event log CSV (overrides config)")
	dbPath      = flag.String("db", "", "SQLite index (overrides config)")
	noDB        = flag.Bool("no-db", false, "Do not mirror events or the track into SQLite")
	listen      = flag.String("listen", "", "Viewer listen address (overrides config); \"off\" disables the viewer")
	input       = flag.String("input", "-", "Detection stream, JSON lines; - reads stdin")
	imageDir    = flag.String("images", "", "Directory relative image paths are resolved against (default: input's directory)")
	undistort   = flag.Bool("undistort", true, "Undistort frames with the stored intrinsics before cropping")
	devMode     = flag.Bool("dev", false, "Use a simulated GPS modem")
	devFix      = flag.String("dev-fix", "3113.343286,N,12121.234064,E,250311,072809.3,44.1,0.0,0", "CGPSINFO payload the simulated modem reports")
	logDir      = flag.String("log-dir", "", "Directory for rotated log files (default: stderr only)")
	diag        = flag.Bool("diag", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable trace logging (every detection and modem line)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// paths resolves the file locations from flags, falling back to cfg.
type paths struct {
	calibration, events, db, listen string
}

func resolvePaths(cfg *config.Config) paths {
	p := paths{
		calibration: cfg.GetCalibrationPath(),
		events:      cfg.GetEventLogPath(),
		db:          cfg.GetDBPath(),
		listen:      cfg.GetListenAddr(),
	}
	if *calibPath != "" {
		p.calibration = *calibPath
	}
	if *eventsPath != "" {
		p.events = *eventsPath
	}
	if *dbPath != "" {
		p.db = *dbPath
	}
	if *listen != "" {
		p.listen = *listen
	}
	if p.listen == "off" {
		p.listen = ""
	}
	return p
}

// loadEngine refuses to build a measurement engine from an incomplete
// calibration record.
func loadEngine(store *calibration.Store, minWidth float64) (*calibration.Record, *measure.Engine, error) {
	rec, err := store.LoadComplete()
	if err != nil {
		return nil, nil, fmt.Errorf("%w; run `calibrate all` before detection", err)
	}
	engine, err := measure.NewEngine(rec, minWidth)
	if err != nil {
		return nil, nil, err
	}
	return rec, engine, nil
}

// openSource opens the detection stream. The returned closer is a no-op for
// stdin.
func openSource(path, dir string, stdin io.Reader) (*pipeline.JSONSource, io.Closer, error) {
	if path == "-" || path == "" {
		return pipeline.NewJSONSource(stdin, dir), io.NopCloser(nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open detection stream: %w", err)
	}
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return pipeline.NewJSONSource(f, dir), f, nil
}

func openDevice(ctx context.Context, cfg *config.Config) (*gps.Device, error) {
	if *devMode {
		return gps.SimulatedDevice(*devFix, cfg.GetGPSSettle(), timeutil.RealClock{}), nil
	}
	d := gps.NewDiscoverer(cfg.GetGPSPorts(), serialmux.PortOptions{BaudRate: cfg.GetGPSBaudRate()}, cfg.GetGPSSettle())
	return gps.OpenDevice(ctx, d)
}

func openPublisher(cfg *config.Config) publish.Publisher {
	broker := cfg.GetMQTTBroker()
	if broker == "" {
		return publish.Noop{}
	}
	p, err := publish.NewMQTTPublisher(publish.MQTTConfig{
		Broker:   broker,
		ClientID: "pothole-" + version.GitSHA,
		Topic:    cfg.GetMQTTTopic(),
	})
	if err != nil {
		// the broker is optional; the CSV log is the system of record
		log.Printf("MQTT publishing disabled: %v", err)
		return publish.Noop{}
	}
	log.Printf("publishing events to %s topic %s", broker, p.Topic())
	return p
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("pothole", version.String())
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	p := resolvePaths(cfg)

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], p.db, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	streams, err := monitoring.OpenStreams("pothole", monitoring.LogOptions{Dir: *logDir, Diag: *diag, Trace: *trace}, os.Stderr)
	if err != nil {
		log.Fatalf("failed to open logs: %v", err)
	}
	defer streams.Close()
	log.SetOutput(streams.Ops)
	streams.Install()
	gps.SetLogWriters(streams.Ops, streams.Diag, streams.Trace)
	calibration.SetLogWriters(streams.Ops, streams.Diag, streams.Trace)
	pipeline.SetLogWriters(streams.Ops, streams.Diag, streams.Trace)

	rec, engine, err := loadEngine(calibration.NewStore(p.calibration), cfg.GetMinBoxWidthPixels())
	if err != nil {
		log.Fatalf("refusing to start: %v", err)
	}
	log.Printf("calibration %s: %.4f mm/px at reference width %.1f px", p.calibration, rec.MMPerPixel, rec.ReferencePixelWidth)

	events, err := eventlog.Open(p.events)
	if err != nil {
		log.Fatalf("failed to open event log: %v", err)
	}
	defer events.Close()

	var store *db.DB
	if !*noDB {
		store, err = db.NewDB(p.db)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
	}

	publisher := openPublisher(cfg)
	defer publisher.Close()

	src, srcCloser, err := openSource(*input, *imageDir, os.Stdin)
	if err != nil {
		log.Fatal(err)
	}
	defer srcCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device, err := openDevice(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open positioning device: %v", err)
	}
	defer device.Close()
	log.Printf("positioning device on %s", device.Path)

	poller := gps.NewPoller(device.Modem, gps.PollerConfig{
		Interval: cfg.GetGPSPollInterval(),
		OnFix: func(fix gps.Fix) {
			if store == nil || !fix.Valid() {
				return
			}
			if err := store.RecordFix(fix); err != nil {
				log.Printf("failed to record fix: %v", err)
			}
		},
	})

	procCfg := pipeline.Config{
		Engine:      engine,
		Fixes:       poller,
		Gate:        dedup.NewGate(cfg.GetDedupThresholdMeters()),
		Log:         events,
		Publisher:   publisher,
		JPEGQuality: cfg.GetJPEGQuality(),
	}
	if store != nil {
		procCfg.Index = store
	}
	if *undistort {
		procCfg.Undistorter = vision.NewUndistorter(rec.Intrinsics())
	}
	proc, err := pipeline.NewProcessor(procCfg)
	if err != nil {
		log.Fatal(err)
	}

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := device.Mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("poller stopped: %v", err)
		}
		log.Print("poller routine terminated")
	}()

	if p.listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveViewer(ctx, p, store, poller, proc, device)
		}()
	}

	// the detection loop owns the process lifetime: end of stream, a signal
	// or a log failure stops everything else
	runErr := proc.Run(ctx, src)
	stop()
	wg.Wait()

	s := proc.Stats()
	log.Printf("frames=%d detections=%d logged=%d duplicates=%d no_fix=%d rejected=%d",
		s.Frames, s.Detections, s.Logged, s.Duplicates, s.NoFix, s.Rejected)

	var perr *eventlog.PersistenceError
	switch {
	case errors.As(runErr, &perr):
		log.Fatalf("event log unwritable, stopping: %v", runErr)
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		log.Fatalf("detection stopped: %v", runErr)
	}
	log.Printf("Graceful shutdown complete")
}

func serveViewer(ctx context.Context, p paths, store *db.DB, poller *gps.Poller, proc *pipeline.Processor, device *gps.Device) {
	mux := api.NewServer(api.Config{
		EventsPath: p.events,
		DB:         store,
		Fixes:      poller,
		Pipeline:   proc,
	}).ServeMux()

	device.Mux.AttachAdminRoutes(mux)
	poller.AttachAdminRoutes(mux)
	proc.AttachAdminRoutes(mux)
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}
	}

	server := &http.Server{
		Addr:    p.listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()
	log.Printf("viewer listening on %s", p.listen)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
