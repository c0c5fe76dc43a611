package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Board describes a checkerboard by its inner-corner grid and square size.
type Board struct {
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
	SquareMM float64 `json:"square_mm"`
}

// DefaultBoard is a 5×5-square board (4×4 inner corners) with 19 mm squares.
var DefaultBoard = Board{Cols: 4, Rows: 4, SquareMM: 19}

// Validate checks the board geometry.
func (b Board) Validate() error {
	if b.Cols < 2 || b.Rows < 2 {
		return fmt.Errorf("board needs at least 2×2 inner corners, got %d×%d", b.Cols, b.Rows)
	}
	if !(b.SquareMM > 0) || math.IsInf(b.SquareMM, 0) {
		return fmt.Errorf("square size must be positive, got %v", b.SquareMM)
	}
	return nil
}

// Corners returns the number of inner corners.
func (b Board) Corners() int { return b.Cols * b.Rows }

// ObjectPoints returns the canonical corner grid on the z = 0 plane, row by
// row with columns varying fastest, matching detector corner order.
func (b Board) ObjectPoints() []Point3 {
	pts := make([]Point3, 0, b.Corners())
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			pts = append(pts, Point3{X: float64(c) * b.SquareMM, Y: float64(r) * b.SquareMM})
		}
	}
	return pts
}

// Detection is the sub-pixel refined corner set found in one image.
type Detection struct {
	Corners []Point
	Width   int
	Height  int
}

// CornerFinder locates board corners in a stored image. found is false when
// the pattern is not visible; err reports an unreadable image. Both cases skip
// the image.
type CornerFinder interface {
	FindCorners(path string, board Board) (det Detection, found bool, err error)
}

// Sample pairs the board grid with the corners detected in one image.
type Sample struct {
	Path   string
	Object []Point3
	Image  []Point
}

// IntrinsicResult is the outcome of an intrinsic calibration.
type IntrinsicResult struct {
	Intrinsics Intrinsics
	// RMS is the solver's residual: sqrt of the mean squared per-point error.
	RMS float64
	// MeanError is the per-point Euclidean error averaged per image, then
	// over images.
	MeanError   float64
	PerImage    []float64
	Poses       []Pose
	Samples     []Sample
	Skipped     []string
	ImageWidth  int
	ImageHeight int
}

// IntrinsicCalibrator runs corner detection over stored images and solves
// the camera model.
type IntrinsicCalibrator struct {
	Board         Board
	Finder        CornerFinder
	MaxIterations int
}

// Collect detects the board in every image. Images without a detection, with
// the wrong corner count, or whose size differs from the first accepted image
// are skipped with a warning.
func (c *IntrinsicCalibrator) Collect(paths []string) (samples []Sample, width, height int, skipped []string) {
	object := c.Board.ObjectPoints()
	for _, path := range paths {
		det, found, err := c.Finder.FindCorners(path, c.Board)
		switch {
		case err != nil:
			opsf("warning: failed to load %s: %v", path, err)
		case !found:
			opsf("warning: chessboard not found in %s", path)
		case len(det.Corners) != len(object):
			opsf("warning: %s: expected %d corners, got %d", path, len(object), len(det.Corners))
		case len(samples) > 0 && (det.Width != width || det.Height != height):
			opsf("warning: %s is %dx%d, expected %dx%d", path, det.Width, det.Height, width, height)
		default:
			if len(samples) == 0 {
				width, height = det.Width, det.Height
			}
			diagf("accepted %s", path)
			samples = append(samples, Sample{Path: path, Object: object, Image: det.Corners})
			continue
		}
		skipped = append(skipped, path)
	}
	return samples, width, height, skipped
}

// Calibrate detects the board in paths and solves the camera model. It fails
// with NoValidSamples, without solving, when no image yields a detection.
func (c *IntrinsicCalibrator) Calibrate(paths []string) (*IntrinsicResult, error) {
	if err := c.Board.Validate(); err != nil {
		return nil, err
	}
	samples, w, h, skipped := c.Collect(paths)
	diagf("valid detections: %d of %d images", len(samples), len(paths))
	if len(samples) == 0 {
		return nil, newError(NoValidSamples, "no chessboard detected in %d images", len(paths))
	}
	res, err := Solve(samples, w, h, c.MaxIterations)
	if err != nil {
		return nil, err
	}
	res.Skipped = skipped
	return res, nil
}

// Solve runs the closed-form initialisation and non-linear refinement over
// samples taken at width×height.
func Solve(samples []Sample, width, height, maxIter int) (*IntrinsicResult, error) {
	if len(samples) == 0 {
		return nil, newError(NoValidSamples, "no samples")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}

	views := make([]view, len(samples))
	homs := make([]*mat.Dense, 0, len(samples))
	for i, s := range samples {
		if len(s.Object) != len(s.Image) {
			return nil, fmt.Errorf("sample %d: %d object points but %d image points", i, len(s.Object), len(s.Image))
		}
		planar := make([]Point, len(s.Object))
		for j, p := range s.Object {
			planar[j] = Point{X: p.X, Y: p.Y}
		}
		H, err := findHomography(planar, s.Image)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s.Path, err)
		}
		homs = append(homs, H)
		views[i] = view{object: s.Object, image: s.Image}
	}

	K, err := initialCameraMatrix(homs, width, height)
	if err != nil {
		return nil, err
	}
	initial := model{
		intr:  Intrinsics{Matrix: K, Distortion: make([]float64, 5)},
		poses: make([]Pose, len(samples)),
	}
	for i, H := range homs {
		pose, err := poseFromHomography(H, K)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", samples[i].Path, err)
		}
		initial.poses[i] = pose
	}
	diagf("closed-form fx=%.2f fy=%.2f cx=%.2f cy=%.2f rms=%.4f px",
		K[0][0], K[1][1], K[0][2], K[1][2], rms(initial, views))

	refined, residual := refine(initial, views, maxIter)

	mean, perImage := MeanReprojectionError(samples, refined.poses, refined.intr)
	return &IntrinsicResult{
		Intrinsics:  refined.intr,
		RMS:         residual,
		MeanError:   mean,
		PerImage:    perImage,
		Poses:       refined.poses,
		Samples:     samples,
		ImageWidth:  width,
		ImageHeight: height,
	}, nil
}

// MeanReprojectionError reprojects each sample's board through its pose and
// the camera model and returns the mean per-point Euclidean error, averaged
// per image and then over images, along with the per-image values.
func MeanReprojectionError(samples []Sample, poses []Pose, in Intrinsics) (float64, []float64) {
	if len(samples) == 0 {
		return 0, nil
	}
	perImage := make([]float64, len(samples))
	var total float64
	for i, s := range samples {
		proj := ProjectAll(s.Object, poses[i], in)
		var sum float64
		for j := range proj {
			sum += proj[j].Dist(s.Image[j])
		}
		if len(proj) > 0 {
			perImage[i] = sum / float64(len(proj))
		}
		total += perImage[i]
	}
	return total / float64(len(samples)), perImage
}
