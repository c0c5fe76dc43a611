package calibration

import "fmt"

// ErrorKind classifies a CalibrationError.
type ErrorKind int

const (
	// NoValidSamples: no checkerboard image produced a usable detection.
	NoValidSamples ErrorKind = iota + 1
	// DegenerateGeometry: reference points coincide or span zero width.
	DegenerateGeometry
	// MissingIntrinsics: scale calibration without a prior intrinsic record.
	MissingIntrinsics
	// Underdetermined: the views do not constrain the camera model.
	Underdetermined
)

func (k ErrorKind) String() string {
	switch k {
	case NoValidSamples:
		return "NoValidSamples"
	case DegenerateGeometry:
		return "DegenerateGeometry"
	case MissingIntrinsics:
		return "MissingIntrinsics"
	case Underdetermined:
		return "Underdetermined"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// CalibrationError reports why a calibration procedure could not complete.
type CalibrationError struct {
	Kind   ErrorKind
	Detail string
}

func (e *CalibrationError) Error() string {
	if e.Detail == "" {
		return "calibration: " + e.Kind.String()
	}
	return fmt.Sprintf("calibration: %s: %s", e.Kind, e.Detail)
}

// Is matches any CalibrationError of the same kind, so callers can write
// errors.Is(err, calibration.ErrNoValidSamples).
func (e *CalibrationError) Is(target error) bool {
	t, ok := target.(*CalibrationError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNoValidSamples     = &CalibrationError{Kind: NoValidSamples}
	ErrDegenerateGeometry = &CalibrationError{Kind: DegenerateGeometry}
	ErrMissingIntrinsics  = &CalibrationError{Kind: MissingIntrinsics}
	ErrUnderdetermined    = &CalibrationError{Kind: Underdetermined}
)

func newError(kind ErrorKind, format string, args ...interface{}) error {
	return &CalibrationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
