package calibration

import (
	"fmt"
	"image"
	"image/color"
	"testing"
)

var testPoses = []Pose{
	{Rotation: [3]float64{0.3, 0, 0}, Translation: [3]float64{-75, -50, 500}},
	{Rotation: [3]float64{0, 0.35, 0}, Translation: [3]float64{-60, -40, 550}},
	{Rotation: [3]float64{-0.25, 0.2, 0.1}, Translation: [3]float64{-80, -60, 480}},
	{Rotation: [3]float64{0.2, -0.3, -0.05}, Translation: [3]float64{-70, -45, 520}},
	{Rotation: [3]float64{0.1, 0.15, 0.4}, Translation: [3]float64{-50, -70, 600}},
}

func testCamera(dist ...float64) Intrinsics {
	d := make([]float64, 5)
	copy(d, dist)
	return Intrinsics{Matrix: CameraMatrix(600, 590, 322, 238), Distortion: d}
}

// syntheticSamples projects board through each pose with the given camera.
func syntheticSamples(t *testing.T, board Board, cam Intrinsics, poses []Pose) []Sample {
	t.Helper()
	object := board.ObjectPoints()
	samples := make([]Sample, len(poses))
	for i, pose := range poses {
		samples[i] = Sample{
			Path:   fmt.Sprintf("chessboard_%02d.jpg", i),
			Object: object,
			Image:  ProjectAll(object, pose, cam),
		}
	}
	return samples
}

// fakeFinder returns canned detections by path.
type fakeFinder struct {
	detections map[string]Detection
	errs       map[string]error
	calls      []string
}

func (f *fakeFinder) FindCorners(path string, _ Board) (Detection, bool, error) {
	f.calls = append(f.calls, path)
	if err, ok := f.errs[path]; ok {
		return Detection{}, false, err
	}
	det, ok := f.detections[path]
	return det, ok, nil
}

func finderFor(samples []Sample, width, height int) *fakeFinder {
	f := &fakeFinder{detections: map[string]Detection{}, errs: map[string]error{}}
	for _, s := range samples {
		f.detections[s.Path] = Detection{Corners: s.Image, Width: width, Height: height}
	}
	return f
}

// staticChecker answers HasBoard from a fixed script.
type staticChecker struct {
	answers []bool
	n       int
}

func (c *staticChecker) HasBoard(image.Image, Board) bool {
	ok := c.answers[c.n%len(c.answers)]
	c.n++
	return ok
}

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if (x/8+y/8)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}
