package calibration

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// DefaultMaxIterations bounds the non-linear refinement.
const DefaultMaxIterations = 200

const (
	numIntrinsic  = 9 // fx fy cx cy k1 k2 p1 p2 k3
	numPoseParams = 6 // rvec tvec
)

// view is one accepted board image: object points with their detections.
type view struct {
	object []Point3
	image  []Point
}

// model is the full parameter set of a multi-view calibration.
type model struct {
	intr  Intrinsics
	poses []Pose
}

func (m model) pack() []float64 {
	x := make([]float64, 0, numIntrinsic+numPoseParams*len(m.poses))
	x = append(x, m.intr.Fx(), m.intr.Fy(), m.intr.Cx(), m.intr.Cy())
	for i := 0; i < 5; i++ {
		x = append(x, m.intr.coeff(i))
	}
	for _, p := range m.poses {
		x = append(x, p.Rotation[:]...)
		x = append(x, p.Translation[:]...)
	}
	return x
}

func unpack(x []float64, views int) model {
	m := model{
		intr: Intrinsics{
			Matrix:     CameraMatrix(x[0], x[1], x[2], x[3]),
			Distortion: append([]float64(nil), x[4:numIntrinsic]...),
		},
		poses: make([]Pose, views),
	}
	for v := 0; v < views; v++ {
		o := numIntrinsic + v*numPoseParams
		copy(m.poses[v].Rotation[:], x[o:o+3])
		copy(m.poses[v].Translation[:], x[o+3:o+6])
	}
	return m
}

// sumSquaredResidual returns Σ|projected − detected|² and the point count.
func sumSquaredResidual(m model, views []view) (float64, int) {
	var sum float64
	var n int
	for v, vw := range views {
		for i, p := range vw.object {
			q := Project(p, m.poses[v], m.intr)
			dx, dy := q.X-vw.image[i].X, q.Y-vw.image[i].Y
			sum += dx*dx + dy*dy
			n++
		}
	}
	return sum, n
}

// rms returns the root-mean-square reprojection residual in pixels.
func rms(m model, views []view) float64 {
	sum, n := sumSquaredResidual(m, views)
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// refine minimises the reprojection residual over intrinsics, distortion and
// every pose with BFGS and a central-difference gradient. Parameters are
// optimised as scaled offsets from the initial model so that focal lengths,
// distortion terms and translations move on comparable scales. With a single
// view the principal point is held fixed. The refined model is returned only
// if it does not increase the residual.
func refine(initial model, views []view, maxIter int) (model, float64) {
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	p0 := initial.pack()

	scale := make([]float64, len(p0))
	f0 := math.Max(initial.intr.Fx(), initial.intr.Fy())
	for i := range scale {
		scale[i] = 1
	}
	for i := 0; i < 4; i++ {
		scale[i] = f0
	}
	for v := range initial.poses {
		o := numIntrinsic + v*numPoseParams + 3
		t := initial.poses[v].Translation
		if n := math.Sqrt(t[0]*t[0] + t[1]*t[1] + t[2]*t[2]); n > 0 {
			scale[o], scale[o+1], scale[o+2] = n, n, n
		}
	}

	var free []int
	for i := range p0 {
		if len(views) < 2 && (i == 2 || i == 3) {
			continue
		}
		free = append(free, i)
	}

	params := make([]float64, len(p0))
	toModel := func(x []float64) model {
		copy(params, p0)
		for k, i := range free {
			params[i] = p0[i] + x[k]*scale[i]
		}
		return unpack(params, len(views))
	}
	cost := func(x []float64) float64 {
		sum, n := sumSquaredResidual(toModel(x), views)
		if math.IsNaN(sum) {
			return math.Inf(1)
		}
		return sum / float64(n)
	}

	initialCost := cost(make([]float64, len(free)))
	settings := &fd.Settings{Formula: fd.Central}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, settings)
		},
	}
	result, err := optimize.Minimize(problem, make([]float64, len(free)), &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: 1e-10,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 20,
		},
	}, &optimize.BFGS{})
	if err != nil {
		diagf("refinement stopped early: %v", err)
	}
	if result == nil || math.IsNaN(result.F) || result.F > initialCost {
		diagf("refinement did not improve the closed-form estimate; keeping it")
		return initial, math.Sqrt(initialCost)
	}
	tracef("refinement: %d iterations, %d evaluations, mse %.6g -> %.6g px²",
		result.Stats.MajorIterations, result.Stats.FuncEvaluations, initialCost, result.F)

	return toModel(result.X), math.Sqrt(result.F)
}
