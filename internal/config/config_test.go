package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pothole.report/internal/calibration"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	if got := cfg.GetGPSBaudRate(); got != 115200 {
		t.Errorf("GetGPSBaudRate() = %d, want 115200", got)
	}
	if got := cfg.GetGPSSettle(); got != time.Second {
		t.Errorf("GetGPSSettle() = %v, want 1s", got)
	}
	if got := cfg.GetGPSPollInterval(); got != 2*time.Second {
		t.Errorf("GetGPSPollInterval() = %v, want 2s", got)
	}
	if got := cfg.GetDedupThresholdMeters(); got != 5 {
		t.Errorf("GetDedupThresholdMeters() = %v, want 5", got)
	}
	if got := cfg.GetMinBoxWidthPixels(); got != 1 {
		t.Errorf("GetMinBoxWidthPixels() = %v, want 1", got)
	}
	if got := cfg.GetBoard(); got != calibration.DefaultBoard {
		t.Errorf("GetBoard() = %+v, want %+v", got, calibration.DefaultBoard)
	}
	if got := cfg.GetCalibrationPath(); got != calibration.DefaultPath {
		t.Errorf("GetCalibrationPath() = %q", got)
	}
	if got := cfg.GetEventLogPath(); got != "pothole_log.csv" {
		t.Errorf("GetEventLogPath() = %q", got)
	}
	if got := cfg.GetMQTTBroker(); got != "" {
		t.Errorf("GetMQTTBroker() = %q, want empty", got)
	}
	if got := cfg.GetMQTTTopic(); got != "pothole/events" {
		t.Errorf("GetMQTTTopic() = %q", got)
	}
	if got := cfg.GetPreviewMaxSize(); got != 800 {
		t.Errorf("GetPreviewMaxSize() = %d, want 800", got)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "pothole.json", `{
  "gps_ports": ["/dev/ttyUSB2"],
  "gps_baud_rate": 9600,
  "gps_settle": "1500ms",
  "gps_poll_interval": "3s",
  "dedup_threshold_meters": 10,
  "board_cols": 7,
  "board_rows": 5,
  "square_size_mm": 25,
  "event_log_path": "/var/lib/pothole/log.csv",
  "mqtt_broker": "tcp://localhost:1883"
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ports := cfg.GetGPSPorts(); len(ports) != 1 || ports[0] != "/dev/ttyUSB2" {
		t.Errorf("GetGPSPorts() = %v", ports)
	}
	if cfg.GetGPSBaudRate() != 9600 {
		t.Errorf("GetGPSBaudRate() = %d", cfg.GetGPSBaudRate())
	}
	if cfg.GetGPSSettle() != 1500*time.Millisecond {
		t.Errorf("GetGPSSettle() = %v", cfg.GetGPSSettle())
	}
	if cfg.GetGPSPollInterval() != 3*time.Second {
		t.Errorf("GetGPSPollInterval() = %v", cfg.GetGPSPollInterval())
	}
	if cfg.GetDedupThresholdMeters() != 10 {
		t.Errorf("GetDedupThresholdMeters() = %v", cfg.GetDedupThresholdMeters())
	}
	if b := cfg.GetBoard(); b != (calibration.Board{Cols: 7, Rows: 5, SquareMM: 25}) {
		t.Errorf("GetBoard() = %+v", b)
	}
	if cfg.GetEventLogPath() != "/var/lib/pothole/log.csv" {
		t.Errorf("GetEventLogPath() = %q", cfg.GetEventLogPath())
	}
	if cfg.GetMQTTBroker() != "tcp://localhost:1883" {
		t.Errorf("GetMQTTBroker() = %q", cfg.GetMQTTBroker())
	}
	// untouched fields keep defaults
	if cfg.GetListenAddr() != ":8080" {
		t.Errorf("GetListenAddr() = %q", cfg.GetListenAddr())
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "pothole.yaml", `{}`, ".json extension"},
		{"syntax", "pothole.json", `{"gps_baud_rate": }`, "parse"},
		{"baud", "pothole.json", `{"gps_baud_rate": 12345}`, "baud"},
		{"settle", "pothole.json", `{"gps_settle": "soon"}`, "gps_settle"},
		{"poll", "pothole.json", `{"gps_poll_interval": "-1s"}`, "gps_poll_interval"},
		{"threshold", "pothole.json", `{"dedup_threshold_meters": -1}`, "dedup_threshold_meters"},
		{"min width", "pothole.json", `{"min_box_width_pixels": 0}`, "min_box_width_pixels"},
		{"jpeg", "pothole.json", `{"jpeg_quality": 101}`, "jpeg_quality"},
		{"board", "pothole.json", `{"board_cols": 1}`, "inner corners"},
		{"square", "pothole.json", `{"square_size_mm": 0}`, "square size"},
		{"target", "pothole.json", `{"capture_target": 0}`, "capture_target"},
		{"reference", "pothole.json", `{"reference_width_mm": -5}`, "reference_width_mm"},
		{"preview", "pothole.json", `{"preview_max_size": 10}`, "preview_max_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"mqtt_topic": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", body)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Load() error = %v, want too large", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := LoadOrDefault(DefaultConfigPath)
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.GetListenAddr() != ":8080" {
		t.Errorf("GetListenAddr() = %q", cfg.GetListenAddr())
	}

	// an explicit path must exist
	if _, err := LoadOrDefault("other.json"); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "pothole.example.json"))
	if err != nil {
		t.Fatalf("Load(example) error = %v", err)
	}
	if cfg.GetBoard() != calibration.DefaultBoard {
		t.Errorf("example board = %+v, want defaults", cfg.GetBoard())
	}
}
