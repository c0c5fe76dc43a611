package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solvedResult(t *testing.T) *IntrinsicResult {
	t.Helper()
	samples := syntheticSamples(t, wideBoard, testCamera(), testPoses)
	res, err := Solve(samples, 640, 480, 0)
	require.NoError(t, err)
	res.Skipped = []string{"blurry.jpg"}
	return res
}

func TestIntrinsicResult_Summary(t *testing.T) {
	got := solvedResult(t).Summary()
	assert.Contains(t, got, "valid detections: 5 (skipped 1)")
	assert.Contains(t, got, "RMS reprojection error:")
	assert.Contains(t, got, "camera matrix:")
}

func TestPlots(t *testing.T) {
	res := solvedResult(t)
	dir := t.TempDir()

	scatter := filepath.Join(dir, "reprojection.png")
	require.NoError(t, PlotReprojection(res, scatter))
	bars := filepath.Join(dir, "per_image.svg")
	require.NoError(t, PlotPerImageError(res, bars))

	for _, path := range []string{scatter, bars} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), path)
	}
}

func TestHSLToRGB(t *testing.T) {
	r, g, b := hslToRGB(0, 1, 0.5)
	assert.Equal(t, [3]uint8{255, 0, 0}, [3]uint8{r, g, b})
	r, g, b = hslToRGB(0, 0, 0.5)
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
	assert.Len(t, paletteColors(7), 7)
}
