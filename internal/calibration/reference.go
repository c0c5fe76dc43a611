package calibration

import (
	"fmt"
	"math"
)

// Preview limits used when showing a still for reference marking.
const (
	MaxDisplayWidth  = 800
	MaxDisplayHeight = 800
)

// ScaleResult is the output of reference calibration.
type ScaleResult struct {
	MMPerPixel          float64
	ReferencePixelWidth float64
	ReferenceWidthMM    float64
	TopWidth            float64
	BottomWidth         float64
}

// ComputeScale derives millimetres per pixel from the four corners of a
// reference object, ordered top-left, top-right, bottom-right, bottom-left, in
// native image pixels. The top and bottom edge lengths are averaged to even out
// foreshortening when the object is slightly tilted.
func ComputeScale(corners [4]Point, widthMM float64) (ScaleResult, error) {
	if !(widthMM > 0) || math.IsInf(widthMM, 0) {
		return ScaleResult{}, fmt.Errorf("reference width must be a positive number of millimetres, got %v", widthMM)
	}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if corners[i] == corners[j] {
				return ScaleResult{}, newError(DegenerateGeometry, "corners %d and %d coincide at (%.0f, %.0f)", i, j, corners[i].X, corners[i].Y)
			}
		}
	}

	tl, tr, br, bl := corners[0], corners[1], corners[2], corners[3]
	top := tl.Dist(tr)
	bottom := bl.Dist(br)
	avg := (top + bottom) / 2
	if !(avg > 0) {
		return ScaleResult{}, newError(DegenerateGeometry, "reference width is zero pixels")
	}
	diagf("top edge %.2f px, bottom edge %.2f px", top, bottom)

	return ScaleResult{
		MMPerPixel:          widthMM / avg,
		ReferencePixelWidth: avg,
		ReferenceWidthMM:    widthMM,
		TopWidth:            top,
		BottomWidth:         bottom,
	}, nil
}

// DisplayScale returns the factor an image of width×height is shrunk by to
// fit within maxW×maxH. Images that already fit are not enlarged.
func DisplayScale(width, height, maxW, maxH int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	return math.Min(1, math.Min(float64(maxW)/float64(width), float64(maxH)/float64(height)))
}

// ReferenceMarker collects the four reference corners as they are marked on a
// downscaled preview and maps each back to native pixel coordinates.
type ReferenceMarker struct {
	scale  float64
	points []Point
}

// NewReferenceMarker returns a marker for a preview drawn at displayScale.
func NewReferenceMarker(displayScale float64) *ReferenceMarker {
	if !(displayScale > 0) {
		displayScale = 1
	}
	return &ReferenceMarker{scale: displayScale}
}

// Mark records a preview click. Native coordinates are truncated to whole
// pixels. It reports true once all four corners are marked; further clicks are
// ignored.
func (m *ReferenceMarker) Mark(displayX, displayY float64) bool {
	if len(m.points) < 4 {
		m.points = append(m.points, Point{
			X: math.Floor(displayX / m.scale),
			Y: math.Floor(displayY / m.scale),
		})
	}
	return len(m.points) == 4
}

// Corners returns the marked corners in native pixels. ok is false until four
// corners have been marked.
func (m *ReferenceMarker) Corners() (corners [4]Point, ok bool) {
	if len(m.points) < 4 {
		return corners, false
	}
	copy(corners[:], m.points)
	return corners, true
}

// Reset discards the marked corners.
func (m *ReferenceMarker) Reset() { m.points = m.points[:0] }
