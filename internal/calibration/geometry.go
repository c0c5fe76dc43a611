package calibration

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is an image-plane location in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Point3 is a location in board (object) space, in millimetres.
type Point3 struct {
	X, Y, Z float64
}

// Matrix3 is a row-major 3×3 matrix.
type Matrix3 [3][3]float64

// Dense returns m as a gonum matrix.
func (m Matrix3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// matrix3From copies a 3×3 gonum matrix.
func matrix3From(a mat.Matrix) Matrix3 {
	var m Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = a.At(i, j)
		}
	}
	return m
}

// CameraMatrix builds a zero-skew pinhole intrinsic matrix.
func CameraMatrix(fx, fy, cx, cy float64) Matrix3 {
	return Matrix3{{fx, 0, cx}, {0, fy, cy}, {0, 0, 1}}
}

// Intrinsics is a pinhole camera with Brown-Conrady distortion. Distortion is
// ordered k1, k2, p1, p2, k3; missing trailing terms are zero.
type Intrinsics struct {
	Matrix     Matrix3
	Distortion []float64
}

func (in Intrinsics) Fx() float64 { return in.Matrix[0][0] }
func (in Intrinsics) Fy() float64 { return in.Matrix[1][1] }
func (in Intrinsics) Cx() float64 { return in.Matrix[0][2] }
func (in Intrinsics) Cy() float64 { return in.Matrix[1][2] }

func (in Intrinsics) coeff(i int) float64 {
	if i < len(in.Distortion) {
		return in.Distortion[i]
	}
	return 0
}

// Distort applies the radial and tangential model to normalised coordinates.
func (in Intrinsics) Distort(x, y float64) (float64, float64) {
	k1, k2, p1, p2, k3 := in.coeff(0), in.coeff(1), in.coeff(2), in.coeff(3), in.coeff(4)
	r2 := x*x + y*y
	radial := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

// Pose is a board-to-camera transform: a Rodrigues rotation vector and a
// translation in millimetres.
type Pose struct {
	Rotation    [3]float64 `json:"rvec"`
	Translation [3]float64 `json:"tvec"`
}

// Project maps an object point through pose and the camera model to pixels.
func Project(p Point3, pose Pose, in Intrinsics) Point {
	R := rodriguesToMatrix(pose.Rotation)
	t := pose.Translation
	xc := R[0][0]*p.X + R[0][1]*p.Y + R[0][2]*p.Z + t[0]
	yc := R[1][0]*p.X + R[1][1]*p.Y + R[1][2]*p.Z + t[1]
	zc := R[2][0]*p.X + R[2][1]*p.Y + R[2][2]*p.Z + t[2]

	xd, yd := in.Distort(xc/zc, yc/zc)
	K := in.Matrix
	return Point{
		X: K[0][0]*xd + K[0][1]*yd + K[0][2],
		Y: K[1][1]*yd + K[1][2],
	}
}

// ProjectAll projects every point in pts.
func ProjectAll(pts []Point3, pose Pose, in Intrinsics) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Project(p, pose, in)
	}
	return out
}

// rodriguesToMatrix converts a rotation vector into a rotation matrix.
func rodriguesToMatrix(r [3]float64) Matrix3 {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta < 1e-12 {
		return Matrix3{
			{1, -r[2], r[1]},
			{r[2], 1, -r[0]},
			{-r[1], r[0], 1},
		}
	}
	kx, ky, kz := r[0]/theta, r[1]/theta, r[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return Matrix3{
		{c + kx*kx*v, kx*ky*v - kz*s, kx*kz*v + ky*s},
		{ky*kx*v + kz*s, c + ky*ky*v, ky*kz*v - kx*s},
		{kz*kx*v - ky*s, kz*ky*v + kx*s, c + kz*kz*v},
	}
}

// matrixToRodrigues converts a rotation matrix into a rotation vector.
func matrixToRodrigues(R Matrix3) [3]float64 {
	cos := (R[0][0] + R[1][1] + R[2][2] - 1) / 2
	cos = math.Max(-1, math.Min(1, cos))
	theta := math.Acos(cos)
	w := [3]float64{R[2][1] - R[1][2], R[0][2] - R[2][0], R[1][0] - R[0][1]}

	switch {
	case theta < 1e-9:
		return [3]float64{w[0] / 2, w[1] / 2, w[2] / 2}
	case math.Pi-theta < 1e-6:
		// near a half turn the antisymmetric part vanishes; read the axis
		// from the symmetric part instead
		var b Matrix3
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				b[i][j] = R[i][j] / 2
			}
			b[i][i] += 0.5
		}
		i := 0
		if b[1][1] > b[i][i] {
			i = 1
		}
		if b[2][2] > b[i][i] {
			i = 2
		}
		var k [3]float64
		k[i] = math.Sqrt(b[i][i])
		for j := 0; j < 3; j++ {
			if j != i {
				k[j] = b[i][j] / k[i]
			}
		}
		return [3]float64{k[0] * theta, k[1] * theta, k[2] * theta}
	default:
		f := theta / (2 * math.Sin(theta))
		return [3]float64{w[0] * f, w[1] * f, w[2] * f}
	}
}
