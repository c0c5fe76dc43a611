// Package units provides shared constants and conversions for the area units
// and display timezones used by the viewer.
package units

import "strings"

// Area unit constants
const (
	SquareMeters      = "m2"
	SquareCentimeters = "cm2"
	SquareFeet        = "ft2"
	SquareInches      = "in2"
)

// ValidAreaUnits contains all valid area unit values
var ValidAreaUnits = []string{SquareMeters, SquareCentimeters, SquareFeet, SquareInches}

// IsValid checks if the given unit is in the list of valid area units
func IsValid(unit string) bool {
	for _, validUnit := range ValidAreaUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidAreaUnits, ", ")
}

// ConvertArea converts an area from square metres to the target units.
// The event log stores areas in m².
func ConvertArea(areaM2 float64, targetUnits string) float64 {
	switch targetUnits {
	case SquareCentimeters:
		return areaM2 * 1e4
	case SquareFeet:
		return areaM2 * 10.763910416709722
	case SquareInches:
		return areaM2 * 1550.0031000062
	default:
		return areaM2
	}
}
