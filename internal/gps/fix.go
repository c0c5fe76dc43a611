package gps

import (
	"fmt"
	"time"
)

// Fix is one decoded position sample. Latitude and Longitude are signed
// decimal degrees and are nil when the modem had no usable fix. Altitude is
// passed through from the modem unchanged and may be empty.
type Fix struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Altitude  string    `json:"altitude"`
	Time      time.Time `json:"time"`
}

// NewFix returns a Fix with both coordinates set.
func NewFix(lat, lon float64, alt string, t time.Time) Fix {
	return Fix{Latitude: &lat, Longitude: &lon, Altitude: alt, Time: t}
}

// Valid reports whether the fix carries both coordinates.
func (f Fix) Valid() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// LatLon returns the coordinates. ok is false when the fix is not valid.
func (f Fix) LatLon() (lat, lon float64, ok bool) {
	if !f.Valid() {
		return 0, 0, false
	}
	return *f.Latitude, *f.Longitude, true
}

func (f Fix) String() string {
	lat, lon, ok := f.LatLon()
	if !ok {
		return "no fix"
	}
	return fmt.Sprintf("%.6f,%.6f alt=%s", lat, lon, f.Altitude)
}
