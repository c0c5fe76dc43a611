// Package eventlog is the append-only CSV log of measured, deduplicated
// detection events.
package eventlog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Header is the first row of every event log.
var Header = []string{"timestamp", "latitude", "longitude", "altitude", "area_m2", "confidence", "frame", "image_base64"}

// Event is one logged detection.
type Event struct {
	Time        time.Time `json:"timestamp"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Altitude    string    `json:"altitude"`
	AreaM2      float64   `json:"area_m2"`
	Confidence  float64   `json:"confidence"`
	Frame       int64     `json:"frame"`
	ImageBase64 string    `json:"image_base64,omitempty"`
}

// timeLayouts are accepted when reading; the first is used for writing.
// The last matches logs written without a zone offset.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Row renders e in Header order.
func (e Event) Row() []string {
	return []string{
		e.Time.Format(timeLayouts[0]),
		formatFloat(e.Latitude),
		formatFloat(e.Longitude),
		e.Altitude,
		formatFloat(e.AreaM2),
		formatFloat(e.Confidence),
		strconv.FormatInt(e.Frame, 10),
		e.ImageBase64,
	}
}

// errInvalidRow marks rows the viewer cannot place on a map.
var errInvalidRow = errors.New("invalid event row")

// parseRow decodes a row using the column positions in cols. Latitude,
// longitude and area must parse as finite numbers; the remaining fields are
// best effort.
func parseRow(row []string, cols map[string]int) (Event, error) {
	field := func(name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}
	number := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s=%q", errInvalidRow, name, field(name))
		}
		return v, nil
	}

	var e Event
	var err error
	if e.Latitude, err = number("latitude"); err != nil {
		return Event{}, err
	}
	if e.Longitude, err = number("longitude"); err != nil {
		return Event{}, err
	}
	if e.AreaM2, err = number("area_m2"); err != nil {
		return Event{}, err
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, field("timestamp")); err == nil {
			e.Time = t
			break
		}
	}
	e.Altitude = field("altitude")
	e.Confidence, _ = strconv.ParseFloat(field("confidence"), 64)
	e.Frame, _ = strconv.ParseInt(field("frame"), 10, 64)
	e.ImageBase64 = field("image_base64")
	return e, nil
}
