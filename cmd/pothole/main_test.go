package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/config"
	"github.com/banshee-data/pothole.report/internal/publish"
)

func TestFlagDefaults(t *testing.T) {
	if *configPath != config.DefaultConfigPath {
		t.Errorf("-config default = %q", *configPath)
	}
	if *input != "-" {
		t.Errorf("-input default = %q, want stdin", *input)
	}
	if !*undistort {
		t.Error("-undistort should default to true")
	}
	if *devMode || *noDB {
		t.Error("-dev and -no-db should default to false")
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := &config.Config{}
	p := resolvePaths(cfg)
	if p.calibration != calibration.DefaultPath || p.events != "pothole_log.csv" || p.db != "pothole.db" || p.listen != ":8080" {
		t.Errorf("defaults = %+v", p)
	}

	*eventsPath, *listen = "/tmp/log.csv", "off"
	defer func() { *eventsPath, *listen = "", "" }()
	p = resolvePaths(cfg)
	if p.events != "/tmp/log.csv" {
		t.Errorf("events = %q, want flag override", p.events)
	}
	if p.listen != "" {
		t.Errorf("listen = %q, want viewer disabled", p.listen)
	}
}

func completeRecord() *calibration.Record {
	return &calibration.Record{
		IntrinsicMatrix:        &calibration.Matrix3{{800, 0, 320}, {0, 800, 240}, {0, 0, 1}},
		DistortionCoefficients: []float64{0, 0, 0, 0, 0},
		MMPerPixel:             0.5,
		ReferencePixelWidth:    100,
	}
}

func TestLoadEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera_calibration.json")
	store := calibration.NewStore(path)

	if _, _, err := loadEngine(store, 0); err == nil || !strings.Contains(err.Error(), "calibrate all") {
		t.Fatalf("loadEngine() error = %v, want operator hint", err)
	}

	if err := store.Save(&calibration.Record{MMPerPixel: 0.5, ReferencePixelWidth: 100}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadEngine(store, 0); !errors.Is(err, calibration.ErrIncompleteRecord) {
		t.Fatalf("loadEngine() error = %v, want ErrIncompleteRecord", err)
	}

	if err := store.Save(completeRecord()); err != nil {
		t.Fatal(err)
	}
	rec, engine, err := loadEngine(store, 0)
	if err != nil {
		t.Fatalf("loadEngine() error = %v", err)
	}
	if rec.MMPerPixel != 0.5 || engine == nil {
		t.Errorf("loadEngine() = %+v, %v", rec, engine)
	}
}

func TestOpenSource(t *testing.T) {
	src, closer, err := openSource("-", "", strings.NewReader(`{"frame":3,"detections":[{"x":1,"y":2,"w":3,"h":4}]}`+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	f, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Index != 3 || len(f.Detections) != 1 {
		t.Errorf("Next() = %+v", f)
	}
	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Errorf("Next() error = %v, want EOF", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "detections.jsonl")
	if err := os.WriteFile(path, []byte(`{"frame":1,"detections":[]}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, closer, err = openSource(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	if f, err := src.Next(context.Background()); err != nil || f.Index != 1 {
		t.Errorf("Next() = %+v, %v", f, err)
	}

	if _, _, err := openSource(filepath.Join(dir, "missing.jsonl"), "", nil); err == nil {
		t.Error("expected error for missing stream")
	}
}

func TestOpenPublisher_NoBroker(t *testing.T) {
	if _, ok := openPublisher(&config.Config{}).(publish.Noop); !ok {
		t.Error("expected Noop publisher without a broker")
	}
}
