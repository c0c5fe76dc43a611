//go:build !gocv

package vision

import (
	"image"

	"github.com/banshee-data/pothole.report/internal/calibration"
)

// ChessboardFinder is unavailable without OpenCV; every call fails with
// ErrUnavailable.
type ChessboardFinder struct{}

func (ChessboardFinder) FindCorners(string, calibration.Board) (calibration.Detection, bool, error) {
	return calibration.Detection{}, false, ErrUnavailable
}

func (ChessboardFinder) HasBoard(image.Image, calibration.Board) bool { return false }

// OpenCamera fails with ErrUnavailable.
func OpenCamera(int) (Camera, error) { return nil, ErrUnavailable }
