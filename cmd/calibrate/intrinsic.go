package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/vision"
)

var errAborted = errors.New("capture aborted")

// capture snaps a frame each time the operator presses Enter until the
// session holds its target. q or end of input aborts and removes the stills
// taken so far.
func (s *session) capture(sess *calibration.CaptureSession, cam vision.Camera) error {
	for !sess.Done() {
		line, ok := s.prompt("Enter to snap, q to abort (%d/%d): ", len(sess.Saved()), sess.Target)
		if !ok || strings.EqualFold(strings.TrimSpace(line), "q") {
			if err := sess.Abort(); err != nil {
				return fmt.Errorf("%w: %v", errAborted, err)
			}
			return errAborted
		}
		frame, err := cam.Read()
		if err != nil {
			return err
		}
		state, err := sess.Offer(frame)
		if err != nil {
			return err
		}
		if state == calibration.StateRejected {
			fmt.Fprintln(s.out, "chessboard not found, try again")
		}
	}
	return nil
}

// report prints the solve and writes the optional plots. Plot failures only
// warn since the record is already stored.
func (s *session) report(res *calibration.IntrinsicResult) {
	fmt.Fprint(s.out, res.Summary())
	if *plotDir == "" {
		return
	}
	if err := calibration.PlotReprojection(res, filepath.Join(*plotDir, "reprojection.png")); err != nil {
		fmt.Fprintf(s.out, "warning: %v\n", err)
	}
	if err := calibration.PlotPerImageError(res, filepath.Join(*plotDir, "per_image_error.png")); err != nil {
		fmt.Fprintf(s.out, "warning: %v\n", err)
	}
}

// solveStored calibrates from stills captured in an earlier run.
func (s *session) solveStored(board calibration.Board, finder calibration.CornerFinder) error {
	paths, err := calibration.StoredImages(*imageDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no chessboard stills in %s", *imageDir)
	}
	cal := &calibration.IntrinsicCalibrator{Board: board, Finder: finder}
	res, err := cal.Calibrate(paths)
	if err != nil {
		return err
	}
	if _, err := s.store.SaveIntrinsics(res); err != nil {
		return err
	}
	s.report(res)
	return nil
}

// captureAndSolve runs a full capture session against cam.
func (s *session) captureAndSolve(sess *calibration.CaptureSession, cam vision.Camera, finder calibration.CornerFinder) error {
	fmt.Fprintf(s.out, "capturing %d stills of a %dx%d inner-corner board (%.0f mm squares)\n",
		sess.Target, sess.Board.Cols, sess.Board.Rows, sess.Board.SquareMM)
	if err := s.capture(sess, cam); err != nil {
		return err
	}
	res, err := sess.Solve(&calibration.IntrinsicCalibrator{Board: sess.Board, Finder: finder})
	if err != nil {
		return err
	}
	if _, err := sess.Persist(s.store); err != nil {
		return err
	}
	s.report(res)
	return nil
}

func (s *session) runIntrinsic() error {
	board := s.cfg.GetBoard()
	if *fromImages {
		return s.solveStored(board, vision.ChessboardFinder{})
	}

	target := s.cfg.GetCaptureTarget()
	if *count > 0 {
		target = *count
	}
	cam, err := vision.OpenCamera(*camera)
	if err != nil {
		return err
	}
	defer cam.Close()

	sess, err := calibration.NewCaptureSession(board, target, *imageDir, vision.ChessboardFinder{})
	if err != nil {
		return err
	}
	return s.captureAndSolve(sess, cam, vision.ChessboardFinder{})
}
