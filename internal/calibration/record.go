package calibration

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrIncompleteRecord is returned by Record.Complete when the record cannot
// be used for measurement.
var ErrIncompleteRecord = errors.New("calibration record incomplete")

// Record is the persisted output of both calibrators. The intrinsic fields are
// written by intrinsic calibration; the scale pair is merged in afterwards by
// reference calibration. Measurement requires all four.
type Record struct {
	IntrinsicMatrix        *Matrix3  `json:"intrinsic_matrix,omitempty"`
	DistortionCoefficients []float64 `json:"distortion_coefficients,omitempty"`
	MMPerPixel             float64   `json:"mm_per_pixel,omitempty"`
	ReferencePixelWidth    float64   `json:"reference_pixel_width,omitempty"`

	ImageWidth            int       `json:"image_width,omitempty"`
	ImageHeight           int       `json:"image_height,omitempty"`
	Views                 int       `json:"views,omitempty"`
	RMSError              float64   `json:"rms_error,omitempty"`
	MeanReprojectionError float64   `json:"mean_reprojection_error,omitempty"`
	ReferenceWidthMM      float64   `json:"reference_width_mm,omitempty"`
	IntrinsicsUpdated     time.Time `json:"intrinsics_updated,omitzero"`
	ScaleUpdated          time.Time `json:"scale_updated,omitzero"`
}

// HasIntrinsics reports whether the intrinsic pair is present and usable.
func (r *Record) HasIntrinsics() bool {
	if r == nil || r.IntrinsicMatrix == nil || len(r.DistortionCoefficients) == 0 {
		return false
	}
	return r.IntrinsicMatrix[0][0] > 0 && r.IntrinsicMatrix[1][1] > 0
}

// HasScale reports whether the scale pair is present and usable.
func (r *Record) HasScale() bool {
	return r != nil && positive(r.MMPerPixel) && positive(r.ReferencePixelWidth)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Complete returns nil when every field measurement depends on is present.
func (r *Record) Complete() error {
	var missing []string
	if !r.HasIntrinsics() {
		missing = append(missing, "intrinsics")
	}
	if !r.HasScale() {
		missing = append(missing, "scale")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteRecord, strings.Join(missing, " and "))
	}
	return nil
}

// Intrinsics returns the stored camera model. The zero value is returned when
// HasIntrinsics is false.
func (r *Record) Intrinsics() Intrinsics {
	if !r.HasIntrinsics() {
		return Intrinsics{}
	}
	return Intrinsics{
		Matrix:     *r.IntrinsicMatrix,
		Distortion: append([]float64(nil), r.DistortionCoefficients...),
	}
}

// SetIntrinsics replaces the intrinsic fields from a solve.
func (r *Record) SetIntrinsics(res *IntrinsicResult, at time.Time) {
	m := res.Intrinsics.Matrix
	r.IntrinsicMatrix = &m
	r.DistortionCoefficients = append([]float64(nil), res.Intrinsics.Distortion...)
	r.ImageWidth = res.ImageWidth
	r.ImageHeight = res.ImageHeight
	r.Views = len(res.Samples)
	r.RMSError = res.RMS
	r.MeanReprojectionError = res.MeanError
	r.IntrinsicsUpdated = at
}

// SetScale replaces the scale pair from a reference calibration.
func (r *Record) SetScale(s ScaleResult, at time.Time) {
	r.MMPerPixel = s.MMPerPixel
	r.ReferencePixelWidth = s.ReferencePixelWidth
	r.ReferenceWidthMM = s.ReferenceWidthMM
	r.ScaleUpdated = at
}
