package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pothole.report/internal/measure"
	"github.com/banshee-data/pothole.report/internal/security"
)

// Frame is one video frame and the detections the inference stage reported
// for it. Image may be nil when only boxes are available.
type Frame struct {
	Index      int64
	Image      image.Image
	Detections []measure.Detection
}

// Source yields frames in order. Next returns io.EOF when the stream ends.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// frameLine is one JSON-lines record:
//
//	{"frame":7,"image_path":"f/000007.jpg","detections":[{"x":10,"y":20,"w":40,"h":25,"confidence":0.9}]}
type frameLine struct {
	Frame      int64               `json:"frame"`
	ImagePath  string              `json:"image_path,omitempty"`
	Detections []measure.Detection `json:"detections"`
}

// ErrMalformedFrame marks a record that was well-formed JSON but did not fit
// the frame schema. The decoder has consumed it, so the stream can continue.
var ErrMalformedFrame = errors.New("malformed frame record")

type decoded struct {
	line frameLine
	err  error
}

// JSONSource decodes frames from a stream of JSON objects, typically the
// stdout of an external inference process.
type JSONSource struct {
	dec *json.Decoder
	// closer is r when it can be closed; cancelling Next closes it so the
	// reading goroutine is released.
	closer io.Closer
	// dir resolves relative image paths.
	dir string
	// pending holds a decode still in flight when Next was cancelled.
	pending chan decoded
}

// NewJSONSource reads frames from r. Relative image paths are resolved
// against dir.
func NewJSONSource(r io.Reader, dir string) *JSONSource {
	s := &JSONSource{dec: json.NewDecoder(r), dir: dir}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *JSONSource) decode() <-chan decoded {
	if s.pending == nil {
		ch := make(chan decoded, 1)
		go func() {
			var d decoded
			d.err = s.dec.Decode(&d.line)
			ch <- d
		}()
		s.pending = ch
	}
	return s.pending
}

// Next decodes the next frame and loads its image, if any. It returns as soon
// as ctx is cancelled, even while the stream is idle.
func (s *JSONSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	var d decoded
	select {
	case d = <-s.decode():
		s.pending = nil
	case <-ctx.Done():
		if s.closer != nil {
			s.closer.Close()
		}
		return Frame{}, ctx.Err()
	}

	line := d.line
	if err := d.err; err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return Frame{}, io.EOF
		case errors.As(err, &typeErr):
			return Frame{Index: line.Frame}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		default:
			return Frame{}, fmt.Errorf("decode frame: %w", err)
		}
	}

	f := Frame{Index: line.Frame, Detections: line.Detections}
	for i := range f.Detections {
		f.Detections[i].Frame = line.Frame
	}
	if line.ImagePath != "" {
		path, err := security.ResolveWithin(s.dir, line.ImagePath)
		if err != nil {
			opsf("frame %d: image ignored: %v", line.Frame, err)
			return f, nil
		}
		img, err := imaging.Open(path)
		if err != nil {
			// boxes are still measurable without the pixels
			diagf("frame %d: image %s: %v", line.Frame, path, err)
		} else {
			f.Image = img
		}
	}
	return f, nil
}
