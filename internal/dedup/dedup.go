// Package dedup suppresses repeat logging of the same physical defect by
// comparing each position with the last logged one.
package dedup

import (
	"sync"
	"time"

	geo "github.com/kellydunn/golang-geo"

	"github.com/banshee-data/pothole.report/internal/gps"
)

// DefaultThresholdMeters is the distance a new position must exceed from the
// last logged one to be logged.
const DefaultThresholdMeters = 5.0

// Distance returns the haversine great-circle distance in metres, on a sphere
// of radius 6,371 km.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.NewPoint(lat1, lon1).GreatCircleDistance(geo.NewPoint(lat2, lon2)) * 1000
}

// State is the last logged position.
type State struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Time      time.Time `json:"time"`
}

// Gate decides whether a fix is far enough from the last logged position to
// be a new event. It is safe for concurrent use.
type Gate struct {
	threshold float64

	mu   sync.Mutex
	last *State
}

// NewGate returns a Gate with no prior state. thresholdMeters <= 0 uses
// DefaultThresholdMeters.
func NewGate(thresholdMeters float64) *Gate {
	if !(thresholdMeters > 0) {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Gate{threshold: thresholdMeters}
}

// Threshold returns the distance threshold in metres.
func (g *Gate) Threshold() float64 { return g.threshold }

// ShouldLog reports whether fix should be logged and, if so, records it as
// the last logged position. A fix without a position is never logged and
// leaves the state untouched.
func (g *Gate) ShouldLog(fix gps.Fix) bool {
	lat, lon, ok := fix.LatLon()
	if !ok {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last != nil && Distance(g.last.Latitude, g.last.Longitude, lat, lon) <= g.threshold {
		return false
	}
	g.last = &State{Latitude: lat, Longitude: lon, Time: fix.Time}
	return true
}

// Last returns a copy of the last logged position, or false before the first.
func (g *Gate) Last() (State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return State{}, false
	}
	return *g.last, true
}
