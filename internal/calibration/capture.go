package calibration

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// CaptureState is a step of the intrinsic capture workflow.
type CaptureState int

const (
	StateAwaitingImage CaptureState = iota
	StateAccepted
	StateRejected
	StateSolved
	StatePersisted
	StateAborted
)

func (s CaptureState) String() string {
	switch s {
	case StateAwaitingImage:
		return "awaiting image"
	case StateAccepted:
		return "image accepted"
	case StateRejected:
		return "image rejected"
	case StateSolved:
		return "solved"
	case StatePersisted:
		return "persisted"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("CaptureState(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when a capture step is not allowed from
// the session's current state.
var ErrInvalidTransition = errors.New("invalid capture state transition")

// BoardChecker is the fast, raw-frame pattern check that gates whether a
// captured frame is worth storing.
type BoardChecker interface {
	HasBoard(frame image.Image, board Board) bool
}

// CaptureSession drives intrinsic calibration as an offline state machine:
// awaiting image → accepted/rejected → solved → persisted. Abort is allowed
// at any point before persisting and removes the images this session saved.
// Stills left in Dir by earlier sessions are never overwritten.
type CaptureSession struct {
	Board   Board
	Target  int
	Dir     string
	Checker BoardChecker

	state  CaptureState
	saved  []string
	next   int // index of the next still; continues after stills already in Dir
	result *IntrinsicResult
}

const stillPrefix, stillSuffix = "chessboard_", ".jpg"

// nextStillIndex returns one past the highest chessboard_NN.jpg index in dir,
// or 0 when there are none.
func nextStillIndex(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, stillPrefix+"*"+stillSuffix))
	if err != nil {
		return 0, err
	}
	next := 0
	for _, p := range paths {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), stillPrefix), stillSuffix)
		if n, err := strconv.Atoi(name); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// NewCaptureSession prepares dir and returns a session that will save up to
// target accepted frames there.
func NewCaptureSession(board Board, target int, dir string, checker BoardChecker) (*CaptureSession, error) {
	if err := board.Validate(); err != nil {
		return nil, err
	}
	if target <= 0 {
		return nil, fmt.Errorf("capture target must be positive, got %d", target)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	next, err := nextStillIndex(dir)
	if err != nil {
		return nil, fmt.Errorf("scan capture directory: %w", err)
	}
	return &CaptureSession{Board: board, Target: target, Dir: dir, Checker: checker, next: next}, nil
}

// State returns the current workflow state.
func (s *CaptureSession) State() CaptureState { return s.state }

// Saved returns the paths of images accepted so far.
func (s *CaptureSession) Saved() []string { return append([]string(nil), s.saved...) }

// Done reports whether the target number of images has been accepted.
func (s *CaptureSession) Done() bool { return len(s.saved) >= s.Target }

// Result returns the solve result once the session has been solved.
func (s *CaptureSession) Result() *IntrinsicResult { return s.result }

func (s *CaptureSession) capturing() bool {
	return s.state == StateAwaitingImage || s.state == StateAccepted || s.state == StateRejected
}

// Offer checks frame for the board and, when it is visible, saves it as the
// next candidate image.
func (s *CaptureSession) Offer(frame image.Image) (CaptureState, error) {
	if !s.capturing() || s.Done() {
		return s.state, fmt.Errorf("%w: offer while %s", ErrInvalidTransition, s.state)
	}
	if !s.Checker.HasBoard(frame, s.Board) {
		s.state = StateRejected
		diagf("chessboard not found; frame skipped")
		return s.state, nil
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("%s%02d%s", stillPrefix, s.next, stillSuffix))
	if err := imaging.Save(frame, path); err != nil {
		return s.state, fmt.Errorf("save %s: %w", path, err)
	}
	s.next++
	s.saved = append(s.saved, path)
	s.state = StateAccepted
	opsf("saved %s (%d/%d)", path, len(s.saved), s.Target)
	return s.state, nil
}

// Solve calibrates from the saved images.
func (s *CaptureSession) Solve(cal *IntrinsicCalibrator) (*IntrinsicResult, error) {
	if !s.capturing() {
		return nil, fmt.Errorf("%w: solve while %s", ErrInvalidTransition, s.state)
	}
	if len(s.saved) == 0 {
		return nil, newError(NoValidSamples, "no images captured")
	}
	res, err := cal.Calibrate(s.saved)
	if err != nil {
		return nil, err
	}
	s.result = res
	s.state = StateSolved
	return res, nil
}

// Persist writes the solved intrinsics to store.
func (s *CaptureSession) Persist(store *Store) (*Record, error) {
	if s.state != StateSolved {
		return nil, fmt.Errorf("%w: persist while %s", ErrInvalidTransition, s.state)
	}
	rec, err := store.SaveIntrinsics(s.result)
	if err != nil {
		return nil, err
	}
	s.state = StatePersisted
	return rec, nil
}

// Abort discards the session, removing every image it saved.
func (s *CaptureSession) Abort() error {
	if s.state == StatePersisted {
		return fmt.Errorf("%w: abort while %s", ErrInvalidTransition, s.state)
	}
	var errs []error
	for _, path := range s.saved {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.saved = nil
	s.result = nil
	s.state = StateAborted
	opsf("capture aborted")
	return errors.Join(errs...)
}

// StoredImages lists the JPEG candidate images in dir in name order.
func StoredImages(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
