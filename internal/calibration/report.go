package calibration

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Summary renders the solve result for the operator.
func (r *IntrinsicResult) Summary() string {
	var b strings.Builder
	K := r.Intrinsics.Matrix
	fmt.Fprintf(&b, "valid detections: %d (skipped %d)\n", len(r.Samples), len(r.Skipped))
	fmt.Fprintf(&b, "RMS reprojection error: %.4f px\n", r.RMS)
	fmt.Fprintf(&b, "camera matrix:\n")
	for _, row := range K {
		fmt.Fprintf(&b, "  [%10.4f %10.4f %10.4f]\n", row[0], row[1], row[2])
	}
	fmt.Fprintf(&b, "distortion coefficients: %v\n", r.Intrinsics.Distortion)
	fmt.Fprintf(&b, "mean reprojection error (per image): %.4f px\n", r.MeanError)
	return b.String()
}

// PlotReprojection writes a scatter of reprojection residuals (projected
// minus detected, in pixels), one colour per image, to path. The image
// format follows the file extension.
func PlotReprojection(r *IntrinsicResult, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reprojection residuals (RMS %.3f px)", r.RMS)
	p.X.Label.Text = "dx (px)"
	p.Y.Label.Text = "dy (px)"
	p.Add(plotter.NewGrid())

	colors := paletteColors(len(r.Samples))
	for i, s := range r.Samples {
		proj := ProjectAll(s.Object, r.Poses[i], r.Intrinsics)
		pts := make(plotter.XYs, len(proj))
		for j := range proj {
			pts[j] = plotter.XY{X: proj[j].X - s.Image[j].X, Y: proj[j].Y - s.Image[j].Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = colors[i]
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(filepath.Base(s.Path), sc)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save reprojection plot: %w", err)
	}
	return nil
}

// PlotPerImageError writes a bar chart of the mean error of each image.
func PlotPerImageError(r *IntrinsicResult, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mean reprojection error per image (%.3f px overall)", r.MeanError)
	p.Y.Label.Text = "error (px)"

	bars, err := plotter.NewBarChart(plotter.Values(r.PerImage), vg.Points(12))
	if err != nil {
		return err
	}
	bars.Color = color.RGBA{R: 60, G: 120, B: 200, A: 255}
	p.Add(bars)

	names := make([]string, len(r.Samples))
	for i, s := range r.Samples {
		names[i] = strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
	}
	p.NominalX(names...)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save per-image plot: %w", err)
	}
	return nil
}

// paletteColors spreads n hues around the colour wheel.
func paletteColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
