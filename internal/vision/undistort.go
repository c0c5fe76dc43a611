package vision

import (
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pothole.report/internal/calibration"
)

// Undistorter removes lens distortion from frames using a stored camera
// model. The output keeps the same camera matrix, so pixel measurements taken
// on it stay consistent with the calibration scale. The source lookup table
// is built on first use for each frame size.
type Undistorter struct {
	in calibration.Intrinsics

	mu     sync.Mutex
	size   image.Point
	lookup []float64 // x, y source coordinate per destination pixel
}

// NewUndistorter returns an Undistorter for in.
func NewUndistorter(in calibration.Intrinsics) *Undistorter {
	return &Undistorter{in: in}
}

func (u *Undistorter) table(size image.Point) []float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.lookup != nil && u.size == size {
		return u.lookup
	}

	fx, fy, cx, cy := u.in.Fx(), u.in.Fy(), u.in.Cx(), u.in.Cy()
	lookup := make([]float64, 2*size.X*size.Y)
	for v := 0; v < size.Y; v++ {
		for x := 0; x < size.X; x++ {
			xn := (float64(x) - cx) / fx
			yn := (float64(v) - cy) / fy
			xd, yd := u.in.Distort(xn, yn)
			i := 2 * (v*size.X + x)
			lookup[i] = fx*xd + cx
			lookup[i+1] = fy*yd + cy
		}
	}
	u.size, u.lookup = size, lookup
	return lookup
}

// Apply returns an undistorted copy of img. A frame is returned unchanged
// when the model has no usable focal length.
func (u *Undistorter) Apply(img image.Image) image.Image {
	if !(u.in.Fx() > 0 && u.in.Fy() > 0) {
		return img
	}
	src := imaging.Clone(img)
	size := src.Bounds().Size()
	lookup := u.table(size)

	dst := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for i := 0; i < size.X*size.Y; i++ {
		bilinear(src, lookup[2*i], lookup[2*i+1], dst.Pix[4*i:4*i+4])
	}
	return dst
}

// bilinear samples src at (x, y) into px. Samples outside the image are left
// transparent black.
func bilinear(src *image.NRGBA, x, y float64, px []uint8) {
	const edge = 1e-6
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if x < -edge || y < -edge || x > float64(w-1)+edge || y > float64(h-1)+edge {
		return
	}
	x = math.Min(math.Max(x, 0), float64(w-1))
	y = math.Min(math.Max(y, 0), float64(h-1))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	ax, ay := x-float64(x0), y-float64(y0)

	at := func(xx, yy int) []uint8 {
		o := yy*src.Stride + 4*xx
		return src.Pix[o : o+4]
	}
	p00, p10, p01, p11 := at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1)
	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-ax) + float64(p10[c])*ax
		bottom := float64(p01[c])*(1-ax) + float64(p11[c])*ax
		px[c] = uint8(math.Round(top*(1-ay) + bottom*ay))
	}
}
