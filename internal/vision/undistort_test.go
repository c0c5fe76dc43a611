package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/pothole.report/internal/calibration"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(4 * x), G: uint8(4 * y), A: 255})
		}
	}
	return img
}

func TestUndistorter_IdentityWithoutDistortion(t *testing.T) {
	in := calibration.Intrinsics{Matrix: calibration.CameraMatrix(50, 50, 32, 24), Distortion: make([]float64, 5)}
	src := gradient(64, 48)

	out := NewUndistorter(in).Apply(src)
	assert.Equal(t, src.Bounds(), out.Bounds())
	for _, p := range []image.Point{{0, 0}, {32, 24}, {63, 47}, {10, 40}} {
		assert.Equal(t, src.At(p.X, p.Y), out.At(p.X, p.Y), "pixel %v", p)
	}
}

func TestUndistorter_BarrelPullsCornersInward(t *testing.T) {
	in := calibration.Intrinsics{Matrix: calibration.CameraMatrix(50, 50, 32, 24), Distortion: []float64{-0.2}}
	u := NewUndistorter(in)
	src := gradient(64, 48)

	out := u.Apply(src).(*image.NRGBA)
	// principal point maps to itself
	assert.Equal(t, src.At(32, 24), out.At(32, 24))
	// a corner samples from closer to the centre in the source
	c := out.NRGBAAt(60, 44)
	assert.Less(t, c.R, uint8(4*60))
	assert.Less(t, c.G, uint8(4*44))

	// the lookup table is reused for frames of the same size
	first := &u.table(image.Pt(64, 48))[0]
	assert.Same(t, first, &u.table(image.Pt(64, 48))[0])
}

func TestUndistorter_NoModel(t *testing.T) {
	src := gradient(8, 8)
	assert.Same(t, image.Image(src), NewUndistorter(calibration.Intrinsics{}).Apply(src))
}
