package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is the encoder quality used for logged crops.
const DefaultJPEGQuality = 85

// ErrEmptyCrop is returned when a box does not overlap the image.
var ErrEmptyCrop = errors.New("vision: crop box outside image")

// Box returns the pixel rectangle for a detection box, rounded outwards and
// clipped to bounds.
func Box(xmin, ymin, width, height float64, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(xmin),
		int(ymin),
		int(xmin+width+0.999999),
		int(ymin+height+0.999999),
	)
	return r.Intersect(bounds)
}

// CropJPEGBase64 crops box out of img and returns it as a base64 encoded
// JPEG. quality <= 0 uses DefaultJPEGQuality.
func CropJPEGBase64(img image.Image, box image.Rectangle, quality int) (string, error) {
	box = box.Intersect(img.Bounds())
	if box.Empty() {
		return "", ErrEmptyCrop
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	crop := imaging.Crop(img, box)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
