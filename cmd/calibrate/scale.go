package main

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/pothole.report/internal/calibration"
	"github.com/banshee-data/pothole.report/internal/vision"
)

var cornerNames = [4]string{"top-left", "top-right", "bottom-right", "bottom-left"}

// parsePoint reads "x,y".
func parsePoint(s string) (calibration.Point, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return calibration.Point{}, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return calibration.Point{}, fmt.Errorf("bad x in %q", s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return calibration.Point{}, fmt.Errorf("bad y in %q", s)
	}
	if x < 0 || y < 0 || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return calibration.Point{}, fmt.Errorf("coordinates must be non-negative, got %q", s)
	}
	return calibration.Point{X: x, Y: y}, nil
}

// parseCorners reads four space separated "x,y" pairs.
func parseCorners(s string) ([]calibration.Point, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return nil, fmt.Errorf("want 4 corners, got %d", len(fields))
	}
	pts := make([]calibration.Point, 0, 4)
	for _, f := range fields {
		p, err := parsePoint(f)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// writePreview shrinks still to fit maxSize and saves it to path. It returns
// the display scale corner coordinates are read against.
func writePreview(still image.Image, maxSize int, path string) (float64, error) {
	b := still.Bounds()
	scale := calibration.DisplayScale(b.Dx(), b.Dy(), maxSize, maxSize)
	preview := still
	if scale < 1 {
		preview = imaging.Resize(still, int(math.Round(float64(b.Dx())*scale)), 0, imaging.Lanczos)
	}
	if err := imaging.Save(preview, path); err != nil {
		return 0, fmt.Errorf("write preview: %w", err)
	}
	return scale, nil
}

// markCorners feeds the preview coordinates to a ReferenceMarker, prompting
// for each corner unless -corners supplied them.
func (s *session) markCorners(scale float64) ([4]calibration.Point, error) {
	marker := calibration.NewReferenceMarker(scale)
	if *corners != "" {
		pts, err := parseCorners(*corners)
		if err != nil {
			return [4]calibration.Point{}, err
		}
		for _, p := range pts {
			marker.Mark(p.X, p.Y)
		}
	}
	for i := 0; ; {
		if c, ok := marker.Corners(); ok {
			return c, nil
		}
		line, ok := s.prompt("%s corner in preview pixels (x,y): ", cornerNames[i])
		if !ok {
			return [4]calibration.Point{}, errAborted
		}
		p, err := parsePoint(line)
		if err != nil {
			fmt.Fprintf(s.out, "%v\n", err)
			continue
		}
		marker.Mark(p.X, p.Y)
		i++
	}
}

// referenceWidth takes the width from -width-mm, then config, then asks.
func (s *session) referenceWidth() (float64, error) {
	if *widthMM > 0 {
		return *widthMM, nil
	}
	if w := s.cfg.GetReferenceWidthMM(); w > 0 {
		return w, nil
	}
	for {
		line, ok := s.prompt("Real-world width of the reference object in mm (e.g. 190 for A4): ")
		if !ok {
			return 0, errAborted
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err == nil && w > 0 && !math.IsInf(w, 0) {
			return w, nil
		}
		fmt.Fprintln(s.out, "enter a positive number")
	}
}

func (s *session) loadStill() (image.Image, string, error) {
	if *still != "" {
		img, err := imaging.Open(*still)
		if err != nil {
			return nil, "", fmt.Errorf("open reference still: %w", err)
		}
		return img, *still, nil
	}
	cam, err := vision.OpenCamera(*camera)
	if err != nil {
		return nil, "", err
	}
	defer cam.Close()
	if _, ok := s.prompt("Place the reference object flat in view and press Enter: "); !ok {
		return nil, "", errAborted
	}
	img, err := cam.Read()
	if err != nil {
		return nil, "", err
	}
	path := "reference_still.png"
	if err := imaging.Save(img, path); err != nil {
		return nil, "", fmt.Errorf("save reference still: %w", err)
	}
	return img, path, nil
}

// calibrateScale marks the reference on still and merges the scale into the
// stored record.
func (s *session) calibrateScale(img image.Image, stillPath string) (*calibration.Record, error) {
	previewPath := strings.TrimSuffix(stillPath, filepath.Ext(stillPath)) + "_preview.png"
	scale, err := writePreview(img, s.cfg.GetPreviewMaxSize(), previewPath)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(s.out, "preview %s (scale %.3f); mark the reference corners TL TR BR BL\n", previewPath, scale)

	c, err := s.markCorners(scale)
	if err != nil {
		return nil, err
	}
	width, err := s.referenceWidth()
	if err != nil {
		return nil, err
	}
	res, err := calibration.ComputeScale(c, width)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(s.out, "top edge width:    %.2f px\n", res.TopWidth)
	fmt.Fprintf(s.out, "bottom edge width: %.2f px\n", res.BottomWidth)
	fmt.Fprintf(s.out, "average mm per pixel: %.6f mm/px\n", res.MMPerPixel)
	return s.store.MergeScale(res)
}

func (s *session) runScale() error {
	img, path, err := s.loadStill()
	if err != nil {
		return err
	}
	_, err = s.calibrateScale(img, path)
	return err
}
