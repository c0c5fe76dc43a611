//go:build gocv

package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pothole.report/internal/calibration"
)

// Sub-pixel refinement window for detected corners.
var subPixWindow = image.Pt(11, 11)

// ChessboardFinder detects inner chessboard corners with OpenCV. It serves
// both as the calibration CornerFinder and as the capture-time BoardChecker.
type ChessboardFinder struct{}

// FindCorners loads path, finds the board with the adaptive-threshold finder
// and refines the corners to sub-pixel accuracy.
func (ChessboardFinder) FindCorners(path string, board calibration.Board) (calibration.Detection, bool, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return calibration.Detection{}, false, fmt.Errorf("cannot read image %s", path)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	det := calibration.Detection{Width: gray.Cols(), Height: gray.Rows()}
	corners := gocv.NewMat()
	defer corners.Close()
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage
	if !gocv.FindChessboardCorners(gray, image.Pt(board.Cols, board.Rows), &corners, flags) {
		return det, false, nil
	}
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, 30, 0.001)
	gocv.CornerSubPix(gray, &corners, subPixWindow, image.Pt(-1, -1), criteria)

	det.Corners = make([]calibration.Point, corners.Rows())
	for i := range det.Corners {
		v := corners.GetVecfAt(i, 0)
		det.Corners[i] = calibration.Point{X: float64(v[0]), Y: float64(v[1])}
	}
	return det, true, nil
}

// HasBoard runs the fast corner check on a raw frame.
func (ChessboardFinder) HasBoard(frame image.Image, board calibration.Board) bool {
	m, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return false
	}
	defer m.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)

	corners := gocv.NewMat()
	defer corners.Close()
	flags := gocv.CalibCBAdaptiveThresh | gocv.CalibCBNormalizeImage | gocv.CalibCBFastCheck
	return gocv.FindChessboardCorners(gray, image.Pt(board.Cols, board.Rows), &corners, flags)
}

type webcam struct {
	device int
	vc     *gocv.VideoCapture
	frame  gocv.Mat
}

// OpenCamera opens the video capture device with the given index.
func OpenCamera(device int) (Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	return &webcam{device: device, vc: vc, frame: gocv.NewMat()}, nil
}

func (w *webcam) Read() (image.Image, error) {
	if ok := w.vc.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("cannot read camera device %d", w.device)
	}
	return w.frame.ToImage()
}

func (w *webcam) Close() error {
	w.frame.Close()
	return w.vc.Close()
}
