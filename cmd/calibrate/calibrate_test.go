package main

import (
	"bufio"
	"bytes"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/config"
)

func testSession(t *testing.T, input string) (*session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &session{
		cfg:   &config.Config{},
		store: calibration.NewStore(filepath.Join(t.TempDir(), "camera_calibration.json")),
		in:    bufio.NewScanner(strings.NewReader(input)),
		out:   &out,
	}, &out
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" 12.5, 40 ")
	require.NoError(t, err)
	assert.Equal(t, calibration.Point{X: 12.5, Y: 40}, p)

	for _, bad := range []string{"", "12", "a,1", "1,b", "-1,2"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseCorners(t *testing.T) {
	pts, err := parseCorners("0,0 100,0 100,50 0,50")
	require.NoError(t, err)
	assert.Len(t, pts, 4)

	_, err = parseCorners("0,0 100,0 100,50")
	assert.Error(t, err)
}

func TestWritePreview(t *testing.T) {
	dir := t.TempDir()
	still := image.NewNRGBA(image.Rect(0, 0, 1600, 1200))

	scale, err := writePreview(still, 800, filepath.Join(dir, "p.png"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, scale, 1e-12)
	img, err := imaging.Open(filepath.Join(dir, "p.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(800, 600), img.Bounds().Size())

	// small stills are not enlarged
	scale, err = writePreview(image.NewNRGBA(image.Rect(0, 0, 320, 240)), 800, filepath.Join(dir, "q.png"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, scale)
}

func seedIntrinsics(t *testing.T, s *session) {
	t.Helper()
	require.NoError(t, s.store.Save(&calibration.Record{
		IntrinsicMatrix:        &calibration.Matrix3{{800, 0, 320}, {0, 800, 240}, {0, 0, 1}},
		DistortionCoefficients: []float64{0, 0, 0, 0, 0},
	}))
}

func TestCalibrateScale_Prompted(t *testing.T) {
	// one bad entry is re-asked; preview coordinates are doubled back to
	// native pixels
	s, out := testSession(t, "nonsense\n10,10\n60,10\n60,40\n10,40\n0\n100\n")
	seedIntrinsics(t, s)
	stillPath := filepath.Join(t.TempDir(), "ref.png")

	rec, err := s.calibrateScale(image.NewNRGBA(image.Rect(0, 0, 1600, 1600)), stillPath)
	require.NoError(t, err)
	assert.InDelta(t, 100, rec.ReferencePixelWidth, 1e-9)
	assert.InDelta(t, 1.0, rec.MMPerPixel, 1e-9)
	assert.True(t, rec.HasIntrinsics(), "merge keeps the intrinsics")
	assert.Contains(t, out.String(), "average mm per pixel: 1.000000")
	assert.FileExists(t, filepath.Join(filepath.Dir(stillPath), "ref_preview.png"))

	loaded, err := s.store.LoadComplete()
	require.NoError(t, err)
	assert.Equal(t, 100.0, loaded.ReferenceWidthMM)
}

func TestCalibrateScale_WithoutIntrinsics(t *testing.T) {
	s, _ := testSession(t, "0,0\n10,0\n10,10\n0,10\n50\n")
	_, err := s.calibrateScale(image.NewNRGBA(image.Rect(0, 0, 100, 100)), filepath.Join(t.TempDir(), "ref.png"))
	assert.ErrorIs(t, err, calibration.ErrMissingIntrinsics)
}

func TestCalibrateScale_DegenerateCorners(t *testing.T) {
	s, _ := testSession(t, "5,5\n5,5\n10,10\n0,10\n50\n")
	seedIntrinsics(t, s)
	_, err := s.calibrateScale(image.NewNRGBA(image.Rect(0, 0, 100, 100)), filepath.Join(t.TempDir(), "ref.png"))
	assert.ErrorIs(t, err, calibration.ErrDegenerateGeometry)
}

func TestReferenceWidth_FromConfig(t *testing.T) {
	s, _ := testSession(t, "")
	w := 85.6
	s.cfg.ReferenceWidthMM = &w
	got, err := s.referenceWidth()
	require.NoError(t, err)
	assert.Equal(t, 85.6, got)
}

type fakeCamera struct{ reads int }

func (c *fakeCamera) Read() (image.Image, error) {
	c.reads++
	return image.NewNRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (c *fakeCamera) Close() error { return nil }

// everyOther finds the board in every second frame.
type everyOther struct{ n int }

func (e *everyOther) HasBoard(image.Image, calibration.Board) bool {
	e.n++
	return e.n%2 == 0
}

func TestCapture(t *testing.T) {
	s, out := testSession(t, "\n\n\n\n")
	sess, err := calibration.NewCaptureSession(calibration.DefaultBoard, 2, t.TempDir(), &everyOther{})
	require.NoError(t, err)

	cam := &fakeCamera{}
	require.NoError(t, s.capture(sess, cam))
	assert.Equal(t, 4, cam.reads)
	assert.Len(t, sess.Saved(), 2)
	assert.Equal(t, 2, strings.Count(out.String(), "chessboard not found"))
}

func TestCapture_Abort(t *testing.T) {
	s, _ := testSession(t, "\n\nq\n")
	dir := t.TempDir()
	sess, err := calibration.NewCaptureSession(calibration.DefaultBoard, 5, dir, &everyOther{})
	require.NoError(t, err)

	err = s.capture(sess, &fakeCamera{})
	assert.True(t, errors.Is(err, errAborted))
	assert.Equal(t, calibration.StateAborted, sess.State())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "aborted stills are removed")
}
