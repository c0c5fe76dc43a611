package calibration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// normalisation returns the similarity transform that moves pts' centroid to
// the origin and scales their mean distance from it to √2.
func normalisation(pts []Point) (*mat.Dense, *mat.Dense, bool) {
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	n := float64(len(pts))
	mx /= n
	my /= n

	var d float64
	for _, p := range pts {
		d += math.Hypot(p.X-mx, p.Y-my)
	}
	d /= n
	if d < 1e-12 {
		return nil, nil, false
	}
	s := math.Sqrt2 / d

	T := mat.NewDense(3, 3, []float64{s, 0, -s * mx, 0, s, -s * my, 0, 0, 1})
	Tinv := mat.NewDense(3, 3, []float64{1 / s, 0, mx, 0, 1 / s, my, 0, 0, 1})
	return T, Tinv, true
}

func apply(T mat.Matrix, p Point) Point {
	x := T.At(0, 0)*p.X + T.At(0, 1)*p.Y + T.At(0, 2)
	y := T.At(1, 0)*p.X + T.At(1, 1)*p.Y + T.At(1, 2)
	w := T.At(2, 0)*p.X + T.At(2, 1)*p.Y + T.At(2, 2)
	return Point{X: x / w, Y: y / w}
}

// findHomography estimates H with img ≈ H·src using the normalised direct
// linear transform. At least four non-collinear correspondences are needed.
func findHomography(src, img []Point) (*mat.Dense, error) {
	if len(src) != len(img) || len(src) < 4 {
		return nil, newError(Underdetermined, "homography needs at least 4 correspondences, got %d", len(src))
	}
	Ts, _, ok := normalisation(src)
	if !ok {
		return nil, newError(DegenerateGeometry, "board points coincide")
	}
	Ti, TiInv, ok := normalisation(img)
	if !ok {
		return nil, newError(DegenerateGeometry, "image points coincide")
	}

	A := mat.NewDense(2*len(src), 9, nil)
	for i := range src {
		s := apply(Ts, src[i])
		d := apply(Ti, img[i])
		A.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		A.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}

	h, ok := nullVector(A)
	if !ok {
		return nil, newError(Underdetermined, "homography factorisation failed")
	}
	Hn := mat.NewDense(3, 3, h)

	var H mat.Dense
	H.Product(TiInv, Hn, Ts)
	if w := H.At(2, 2); math.Abs(w) > 1e-12 {
		H.Scale(1/w, &H)
	}
	return &H, nil
}

// nullVector returns the right singular vector of A with the smallest singular
// value: the least-squares solution of A·x = 0 with |x| = 1.
func nullVector(A mat.Matrix) ([]float64, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return nil, false
	}
	var V mat.Dense
	svd.VTo(&V)
	_, c := V.Dims()
	return mat.Col(nil, c-1, &V), true
}
