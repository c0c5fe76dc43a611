package gps

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/pothole.report/internal/serialmux"
)

// minInfoFields is the number of comma separated fields needed to read
// latitude, longitude and altitude from a position-info reply:
// lat,N/S,lon,E/W,date,utc,alt,...
const minInfoFields = 7

// DecodeCoordinate converts an NMEA degrees+decimal-minutes value into signed
// decimal degrees. Latitudes (hemisphere N or S) carry two degree digits,
// longitudes three. South and West are negative. Empty or malformed input
// yields nil.
func DecodeCoordinate(value, hemisphere string) *float64 {
	value = strings.TrimSpace(value)
	hemisphere = strings.TrimSpace(hemisphere)
	if value == "" {
		return nil
	}

	degDigits := 3
	if hemisphere == "N" || hemisphere == "S" {
		degDigits = 2
	}
	if len(value) <= degDigits {
		return nil
	}

	deg, err := strconv.Atoi(value[:degDigits])
	if err != nil || deg < 0 {
		return nil
	}
	minutes, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil || minutes < 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return nil
	}

	decimal := float64(deg) + minutes/60
	if hemisphere == "S" || hemisphere == "W" {
		decimal = -decimal
	}
	return &decimal
}

// ParseGPSInfo decodes a "+CGPSINFO: ..." reply line. ok is false when the
// line is not a position-info reply or the modem reported empty fields.
func ParseGPSInfo(line string, at time.Time) (fix Fix, ok bool) {
	idx := strings.Index(line, serialmux.GPSInfoToken)
	if idx < 0 {
		return Fix{}, false
	}
	payload := strings.TrimSpace(line[idx+len(serialmux.GPSInfoToken):])
	parts := strings.Split(payload, ",")
	if len(parts) < minInfoFields || strings.TrimSpace(parts[0]) == "" {
		return Fix{}, false
	}

	return Fix{
		Latitude:  DecodeCoordinate(parts[0], parts[1]),
		Longitude: DecodeCoordinate(parts[2], parts[3]),
		Altitude:  strings.TrimSpace(parts[6]),
		Time:      at,
	}, true
}

// FixFromLines returns the first decodable position-info reply among lines.
// When none is present the returned fix has no coordinates.
func FixFromLines(lines []string, at time.Time) Fix {
	for _, line := range lines {
		if fix, ok := ParseGPSInfo(line, at); ok {
			return fix
		}
	}
	return Fix{Time: at}
}
