// Package vision holds the image operations around detection and
// calibration: cropping detections to JPEG, lens undistortion, and the
// OpenCV-backed chessboard finder and camera (built with -tags gocv).
package vision

import (
	"errors"
	"image"
)

// ErrUnavailable is returned by the OpenCV-backed operations in builds
// without the gocv tag.
var ErrUnavailable = errors.New("vision: built without gocv support")

// Camera yields frames from a capture device.
type Camera interface {
	Read() (image.Image, error)
	Close() error
}
