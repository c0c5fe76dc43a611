// Package measure converts detection boxes into real-world area estimates
// using the calibrated scale and a width-ratio depth compensation.
package measure

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/pothole.report/internal/calibration"
)

// DefaultMinWidth is the narrowest box, in pixels, that is measured. Narrower
// boxes would blow up the depth ratio.
const DefaultMinWidth = 1.0

// ErrMeasurementRejected is returned for boxes that cannot be measured. It is
// not fatal: the detection is skipped.
var ErrMeasurementRejected = errors.New("measurement rejected")

// Detection is one object reported by the inference pipeline for a frame.
type Detection struct {
	XMin       float64 `json:"x"`
	YMin       float64 `json:"y"`
	Width      float64 `json:"w"`
	Height     float64 `json:"h"`
	Confidence float64 `json:"confidence"`
	TrackID    int     `json:"track_id,omitempty"`
	Frame      int64   `json:"-"`
}

// Result is the measured size of a detection.
type Result struct {
	AreaSquareMeters float64
	// DynamicScale is the depth-compensated millimetres per pixel.
	DynamicScale float64
	WidthMeters  float64
	HeightMeters float64
}

// Engine measures detections against a fixed calibration.
type Engine struct {
	mmPerPixel          float64
	referencePixelWidth float64
	minWidth            float64
}

// NewEngine returns an Engine for rec, which must be complete. minWidth <= 0
// uses DefaultMinWidth.
func NewEngine(rec *calibration.Record, minWidth float64) (*Engine, error) {
	if err := rec.Complete(); err != nil {
		return nil, err
	}
	if !(minWidth > 0) {
		minWidth = DefaultMinWidth
	}
	return &Engine{
		mmPerPixel:          rec.MMPerPixel,
		referencePixelWidth: rec.ReferencePixelWidth,
		minWidth:            minWidth,
	}, nil
}

// Measure estimates the area of d. The ratio of the reference object's pixel
// width at calibration to the box width stands in for relative depth.
func (e *Engine) Measure(d Detection) (Result, error) {
	w, h := d.Width, d.Height
	switch {
	case math.IsNaN(w) || math.IsNaN(h) || math.IsInf(w, 0) || math.IsInf(h, 0):
		return Result{}, fmt.Errorf("%w: non-finite box %vx%v", ErrMeasurementRejected, w, h)
	case w <= 0 || h <= 0:
		return Result{}, fmt.Errorf("%w: empty box %vx%v", ErrMeasurementRejected, w, h)
	case w < e.minWidth:
		return Result{}, fmt.Errorf("%w: box width %v px below %v px", ErrMeasurementRejected, w, e.minWidth)
	}

	zRatio := e.referencePixelWidth / w
	scale := e.mmPerPixel * zRatio
	rw := w * scale / 1000
	rh := h * scale / 1000
	return Result{
		AreaSquareMeters: rw * rh,
		DynamicScale:     scale,
		WidthMeters:      rw,
		HeightMeters:     rh,
	}, nil
}
