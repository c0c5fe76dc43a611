// Package config loads the device configuration shared by the pothole
// binaries. Every field is optional; the Get* accessors supply defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/dedup"
	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/measure"
	"github.com/banshee-data/pothole.report/internal/publish"
	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/vision"
)

// DefaultConfigPath is where the binaries look for a config file when no
// -config flag is given. A missing file at this path is not an error.
const DefaultConfigPath = "config/pothole.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the on-disk device configuration.
type Config struct {
	// Positioning modem
	GPSPorts        []string `json:"gps_ports,omitempty"`
	GPSBaudRate     *int     `json:"gps_baud_rate,omitempty"`
	GPSSettle       *string  `json:"gps_settle,omitempty"`        // duration string like "1s"
	GPSPollInterval *string  `json:"gps_poll_interval,omitempty"` // duration string like "2s"

	// Detection
	DedupThresholdMeters *float64 `json:"dedup_threshold_meters,omitempty"`
	MinBoxWidthPixels    *float64 `json:"min_box_width_pixels,omitempty"`
	JPEGQuality          *int     `json:"jpeg_quality,omitempty"`

	// Files
	CalibrationPath *string `json:"calibration_path,omitempty"`
	EventLogPath    *string `json:"event_log_path,omitempty"`
	DBPath          *string `json:"db_path,omitempty"`

	// Viewer and fan-out
	ListenAddr *string `json:"listen_addr,omitempty"`
	MQTTBroker *string `json:"mqtt_broker,omitempty"`
	MQTTTopic  *string `json:"mqtt_topic,omitempty"`

	// Calibration
	BoardCols        *int     `json:"board_cols,omitempty"`
	BoardRows        *int     `json:"board_rows,omitempty"`
	SquareSizeMM     *float64 `json:"square_size_mm,omitempty"`
	CaptureTarget    *int     `json:"capture_target,omitempty"`
	ReferenceWidthMM *float64 `json:"reference_width_mm,omitempty"`
	PreviewMaxSize   *int     `json:"preview_max_size,omitempty"`
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and be under 1MB. Fields omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns an empty Config when path is the
// default location and nothing is there.
func LoadOrDefault(path string) (*Config, error) {
	if path == DefaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return &Config{}, nil
		}
	}
	return Load(path)
}

func validDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.GPSBaudRate != nil {
		if _, err := (serialmux.PortOptions{BaudRate: *c.GPSBaudRate}).Normalise(); err != nil {
			return err
		}
	}
	if err := validDuration("gps_settle", c.GPSSettle); err != nil {
		return err
	}
	if err := validDuration("gps_poll_interval", c.GPSPollInterval); err != nil {
		return err
	}
	if c.DedupThresholdMeters != nil && *c.DedupThresholdMeters < 0 {
		return fmt.Errorf("dedup_threshold_meters must be non-negative, got %f", *c.DedupThresholdMeters)
	}
	if c.MinBoxWidthPixels != nil && *c.MinBoxWidthPixels <= 0 {
		return fmt.Errorf("min_box_width_pixels must be positive, got %f", *c.MinBoxWidthPixels)
	}
	if c.JPEGQuality != nil && (*c.JPEGQuality < 1 || *c.JPEGQuality > 100) {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", *c.JPEGQuality)
	}
	if err := c.GetBoard().Validate(); err != nil {
		return err
	}
	if c.CaptureTarget != nil && *c.CaptureTarget < 1 {
		return fmt.Errorf("capture_target must be at least 1, got %d", *c.CaptureTarget)
	}
	if c.ReferenceWidthMM != nil && *c.ReferenceWidthMM <= 0 {
		return fmt.Errorf("reference_width_mm must be positive, got %f", *c.ReferenceWidthMM)
	}
	if c.PreviewMaxSize != nil && *c.PreviewMaxSize < 100 {
		return fmt.Errorf("preview_max_size must be at least 100, got %d", *c.PreviewMaxSize)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetGPSPorts returns the candidate modem paths. Empty means discover.
func (c *Config) GetGPSPorts() []string { return c.GPSPorts }

// GetGPSBaudRate returns the gps_baud_rate value or the default.
func (c *Config) GetGPSBaudRate() int {
	if c.GPSBaudRate == nil {
		return 115200
	}
	return *c.GPSBaudRate
}

// GetGPSSettle returns the modem settle interval.
func (c *Config) GetGPSSettle() time.Duration { return durationOr(c.GPSSettle, gps.DefaultSettle) }

// GetGPSPollInterval returns the fix poll cadence.
func (c *Config) GetGPSPollInterval() time.Duration {
	return durationOr(c.GPSPollInterval, gps.DefaultPollInterval)
}

// GetDedupThresholdMeters returns the dedup distance or the default.
func (c *Config) GetDedupThresholdMeters() float64 {
	if c.DedupThresholdMeters == nil || *c.DedupThresholdMeters == 0 {
		return dedup.DefaultThresholdMeters
	}
	return *c.DedupThresholdMeters
}

// GetMinBoxWidthPixels returns the narrowest measurable box.
func (c *Config) GetMinBoxWidthPixels() float64 {
	if c.MinBoxWidthPixels == nil {
		return measure.DefaultMinWidth
	}
	return *c.MinBoxWidthPixels
}

// GetJPEGQuality returns the crop encoding quality.
func (c *Config) GetJPEGQuality() int {
	if c.JPEGQuality == nil {
		return vision.DefaultJPEGQuality
	}
	return *c.JPEGQuality
}

func (c *Config) GetCalibrationPath() string {
	return stringOr(c.CalibrationPath, calibration.DefaultPath)
}

func (c *Config) GetEventLogPath() string { return stringOr(c.EventLogPath, "pothole_log.csv") }

func (c *Config) GetDBPath() string { return stringOr(c.DBPath, "pothole.db") }

func (c *Config) GetListenAddr() string { return stringOr(c.ListenAddr, ":8080") }

// GetMQTTBroker returns the broker URL. Empty disables publishing.
func (c *Config) GetMQTTBroker() string { return stringOr(c.MQTTBroker, "") }

func (c *Config) GetMQTTTopic() string { return stringOr(c.MQTTTopic, publish.DefaultTopic) }

// GetBoard returns the calibration board, filling unset dimensions from
// calibration.DefaultBoard.
func (c *Config) GetBoard() calibration.Board {
	b := calibration.DefaultBoard
	if c.BoardCols != nil {
		b.Cols = *c.BoardCols
	}
	if c.BoardRows != nil {
		b.Rows = *c.BoardRows
	}
	if c.SquareSizeMM != nil {
		b.SquareMM = *c.SquareSizeMM
	}
	return b
}

// GetCaptureTarget returns how many board images intrinsic capture collects.
func (c *Config) GetCaptureTarget() int {
	if c.CaptureTarget == nil {
		return 15
	}
	return *c.CaptureTarget
}

// GetReferenceWidthMM returns the real width of the reference object. Zero
// means the operator is asked.
func (c *Config) GetReferenceWidthMM() float64 {
	if c.ReferenceWidthMM == nil {
		return 0
	}
	return *c.ReferenceWidthMM
}

// GetPreviewMaxSize returns the longest preview edge for reference marking.
func (c *Config) GetPreviewMaxSize() int {
	if c.PreviewMaxSize == nil {
		return calibration.MaxDisplayWidth
	}
	return *c.PreviewMaxSize
}
