package calibration

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodrigues_RoundTrip(t *testing.T) {
	vectors := [][3]float64{
		{0, 0, 0},
		{1e-14, 0, 0},
		{0.3, 0, 0},
		{-0.25, 0.2, 0.1},
		{0, 0, math.Pi / 2},
		{0, math.Pi - 1e-8, 0},
		{math.Pi / math.Sqrt2, math.Pi / math.Sqrt2, 0},
	}
	approx := cmpopts.EquateApprox(0, 1e-6)
	for _, r := range vectors {
		R := rodriguesToMatrix(r)
		back := matrixToRodrigues(R)
		// a half turn about k equals a half turn about -k; compare matrices
		if diff := cmp.Diff(R, rodriguesToMatrix(back), approx); diff != "" {
			t.Errorf("rotation %v round trip mismatch (-want +got):\n%s", r, diff)
		}
	}
}

func TestRodrigues_Orthonormal(t *testing.T) {
	R := rodriguesToMatrix([3]float64{0.1, -0.7, 0.35})
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var dot float64
			for k := 0; k < 3; k++ {
				dot += R[k][i] * R[k][j]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, dot, 1e-12)
		}
	}
}

func TestProject_Pinhole(t *testing.T) {
	cam := Intrinsics{Matrix: CameraMatrix(500, 400, 320, 240)}
	pose := Pose{Translation: [3]float64{0, 0, 1000}}

	got := Project(Point3{X: 100, Y: -50}, pose, cam)
	assert.InDelta(t, 320+50, got.X, 1e-9)
	assert.InDelta(t, 240-20, got.Y, 1e-9)
}

func TestProject_RadialDistortion(t *testing.T) {
	cam := Intrinsics{Matrix: CameraMatrix(1000, 1000, 0, 0), Distortion: []float64{0.1}}
	pose := Pose{Translation: [3]float64{0, 0, 1}}

	// x = 0.5, r² = 0.25, scale 1.025
	got := Project(Point3{X: 0.5}, pose, cam)
	assert.InDelta(t, 512.5, got.X, 1e-9)
	assert.InDelta(t, 0, got.Y, 1e-9)
}

func TestFindHomography(t *testing.T) {
	src := []Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {50, 50}}
	H := Matrix3{{1.2, 0.1, 30}, {-0.05, 0.9, 40}, {0.0004, 0.0002, 1}}
	img := make([]Point, len(src))
	for i, p := range src {
		img[i] = apply(H.Dense(), p)
	}

	got, err := findHomography(src, img)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, H[i][j], got.At(i, j), 1e-6, "H[%d][%d]", i, j)
		}
	}
}

func TestFindHomography_Degenerate(t *testing.T) {
	_, err := findHomography([]Point{{0, 0}, {1, 1}, {2, 2}}, []Point{{0, 0}, {1, 1}, {2, 2}})
	assert.ErrorIs(t, err, ErrUnderdetermined)

	same := []Point{{5, 5}, {5, 5}, {5, 5}, {5, 5}}
	_, err = findHomography(same, same)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestPoint_Dist(t *testing.T) {
	assert.Equal(t, 5.0, Point{0, 0}.Dist(Point{3, 4}))
}
