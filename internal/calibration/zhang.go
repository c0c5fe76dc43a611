package calibration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// zhangRow is v_ij from Zhang's closed form: h_iᵀ·B·h_j = v_ij·b with
// b = (B11, B12, B22, B13, B23, B33).
func zhangRow(H mat.Matrix, i, j int) [6]float64 {
	return [6]float64{
		H.At(0, i) * H.At(0, j),
		H.At(0, i)*H.At(1, j) + H.At(1, i)*H.At(0, j),
		H.At(1, i) * H.At(1, j),
		H.At(2, i)*H.At(0, j) + H.At(0, i)*H.At(2, j),
		H.At(2, i)*H.At(1, j) + H.At(1, i)*H.At(2, j),
		H.At(2, i) * H.At(2, j),
	}
}

// imageConditioner maps pixels to a frame centred on the image with unit
// scale max(width, height), which keeps the closed-form system well scaled.
func imageConditioner(width, height int) (N *mat.Dense, f0, cx0, cy0 float64) {
	f0 = math.Max(float64(width), float64(height))
	cx0, cy0 = float64(width)/2, float64(height)/2
	N = mat.NewDense(3, 3, []float64{1 / f0, 0, -cx0 / f0, 0, 1 / f0, -cy0 / f0, 0, 0, 1})
	return N, f0, cx0, cy0
}

// initialCameraMatrix estimates a zero-skew camera matrix from per-view
// board homographies. Two or more views solve for focal lengths and principal
// point; a single view pins the principal point to the image centre.
func initialCameraMatrix(homs []*mat.Dense, width, height int) (Matrix3, error) {
	if len(homs) == 0 {
		return Matrix3{}, newError(NoValidSamples, "no views")
	}
	N, f0, cx0, cy0 := imageConditioner(width, height)
	conditioned := make([]*mat.Dense, len(homs))
	for i, H := range homs {
		var c mat.Dense
		c.Mul(N, H)
		c.Scale(1/mat.Norm(&c, 2), &c)
		conditioned[i] = &c
	}

	var fx, fy, cx, cy float64
	var err error
	if len(homs) == 1 {
		fx, fy, err = focalFromSingleView(conditioned[0])
	} else {
		fx, fy, cx, cy, err = intrinsicsFromViews(conditioned)
	}
	if err != nil {
		return Matrix3{}, err
	}
	return CameraMatrix(fx*f0, fy*f0, cx*f0+cx0, cy*f0+cy0), nil
}

func intrinsicsFromViews(homs []*mat.Dense) (fx, fy, cx, cy float64, err error) {
	V := mat.NewDense(2*len(homs)+1, 6, nil)
	for k, H := range homs {
		v01 := zhangRow(H, 0, 1)
		v00 := zhangRow(H, 0, 0)
		v11 := zhangRow(H, 1, 1)
		V.SetRow(2*k, v01[:])
		var diff [6]float64
		for i := range diff {
			diff[i] = v00[i] - v11[i]
		}
		V.SetRow(2*k+1, diff[:])
	}
	// zero skew: B12 = 0
	V.SetRow(2*len(homs), []float64{0, 1, 0, 0, 0, 0})

	b, ok := nullVector(V)
	if !ok {
		return 0, 0, 0, 0, newError(Underdetermined, "intrinsic factorisation failed")
	}
	if b[0] < 0 {
		for i := range b {
			b[i] = -b[i]
		}
	}
	B11, B12, B22, B13, B23, B33 := b[0], b[1], b[2], b[3], b[4], b[5]

	den := B11*B22 - B12*B12
	if B11 <= 0 || den <= 0 {
		return 0, 0, 0, 0, newError(Underdetermined, "views do not constrain the focal length (board orientations too similar)")
	}
	v0 := (B12*B13 - B11*B23) / den
	lambda := B33 - (B13*B13+v0*(B12*B13-B11*B23))/B11
	if lambda/B11 <= 0 {
		return 0, 0, 0, 0, newError(Underdetermined, "non-positive scale in closed-form solution")
	}
	alpha := math.Sqrt(lambda / B11)
	beta := math.Sqrt(lambda * B11 / den)
	u0 := -B13 * alpha * alpha / lambda

	for _, v := range []float64{alpha, beta, u0, v0} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, newError(Underdetermined, "closed-form solution is not finite")
		}
	}
	return alpha, beta, u0, v0, nil
}

// focalFromSingleView solves the two orthonormality constraints of one
// homography for 1/fx² and 1/fy², with the principal point at the origin of
// the conditioned frame.
func focalFromSingleView(H mat.Matrix) (fx, fy float64, err error) {
	h := func(r, c int) float64 { return H.At(r, c) }
	A := mat.NewDense(2, 2, []float64{
		h(0, 0) * h(0, 1), h(1, 0) * h(1, 1),
		h(0, 0)*h(0, 0) - h(0, 1)*h(0, 1), h(1, 0)*h(1, 0) - h(1, 1)*h(1, 1),
	})
	rhs := mat.NewVecDense(2, []float64{
		-h(2, 0) * h(2, 1),
		-(h(2, 0)*h(2, 0) - h(2, 1)*h(2, 1)),
	})
	if math.Abs(mat.Det(A)) < 1e-15 {
		return 0, 0, newError(Underdetermined, "single view is fronto-parallel; capture the board at an angle")
	}
	var x mat.VecDense
	if err := x.SolveVec(A, rhs); err != nil {
		return 0, 0, newError(Underdetermined, "single-view focal solve: %v", err)
	}
	a, c := x.AtVec(0), x.AtVec(1)
	if a <= 0 || c <= 0 {
		return 0, 0, newError(Underdetermined, "single view gives non-positive focal length")
	}
	return 1 / math.Sqrt(a), 1 / math.Sqrt(c), nil
}

// poseFromHomography recovers the board pose from H = λ·K·[r1 r2 t].
func poseFromHomography(H mat.Matrix, K Matrix3) (Pose, error) {
	var Kinv mat.Dense
	if err := Kinv.Inverse(K.Dense()); err != nil {
		return Pose{}, newError(Underdetermined, "camera matrix is singular")
	}
	var M mat.Dense
	M.Mul(&Kinv, H)

	r1 := mat.Col(nil, 0, &M)
	r2 := mat.Col(nil, 1, &M)
	t := mat.Col(nil, 2, &M)
	n := math.Sqrt(r1[0]*r1[0] + r1[1]*r1[1] + r1[2]*r1[2])
	if n < 1e-12 {
		return Pose{}, newError(Underdetermined, "degenerate homography")
	}
	scale := 1 / n
	if t[2] < 0 {
		scale = -scale // board must be in front of the camera
	}
	for i := 0; i < 3; i++ {
		r1[i] *= scale
		r2[i] *= scale
		t[i] *= scale
	}
	r3 := []float64{
		r1[1]*r2[2] - r1[2]*r2[1],
		r1[2]*r2[0] - r1[0]*r2[2],
		r1[0]*r2[1] - r1[1]*r2[0],
	}
	R := mat.NewDense(3, 3, []float64{
		r1[0], r2[0], r3[0],
		r1[1], r2[1], r3[1],
		r1[2], r2[2], r3[2],
	})

	// nearest rotation in the Frobenius sense
	var svd mat.SVD
	if ok := svd.Factorize(R, mat.SVDFull); !ok {
		return Pose{}, newError(Underdetermined, "rotation factorisation failed")
	}
	var U, V, Rn mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)
	Rn.Mul(&U, V.T())
	if mat.Det(&Rn) < 0 {
		for i := 0; i < 3; i++ {
			U.Set(i, 2, -U.At(i, 2))
		}
		Rn.Mul(&U, V.T())
	}

	return Pose{
		Rotation:    matrixToRodrigues(matrix3From(&Rn)),
		Translation: [3]float64{t[0], t[1], t[2]},
	}, nil
}
