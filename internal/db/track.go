package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pothole.report/internal/gps"
)

// ErrNoPosition is returned when recording a fix without coordinates.
var ErrNoPosition = errors.New("fix has no position")

// TrackPoint is one stored GPS fix.
type TrackPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  string    `json:"altitude"`
	Time      time.Time `json:"time"`
}

// RecordFix stores a valid fix in the track.
func (db *DB) RecordFix(fix gps.Fix) error {
	lat, lon, ok := fix.LatLon()
	if !ok {
		return ErrNoPosition
	}
	_, err := db.Exec(
		"INSERT INTO gps_fixes (latitude, longitude, altitude, fix_unix) VALUES (?, ?, ?, ?)",
		lat, lon, fix.Altitude, unixSeconds(fix.Time),
	)
	if err != nil {
		return fmt.Errorf("record fix: %w", err)
	}
	return nil
}

// Track returns up to limit fixes at or after since in time order.
func (db *DB) Track(since time.Time, limit int) ([]TrackPoint, error) {
	if limit <= 0 {
		limit = 5000
	}
	rows, err := db.Query(
		`SELECT latitude, longitude, altitude, fix_unix FROM (
			SELECT latitude, longitude, altitude, fix_unix FROM gps_fixes
			WHERE fix_unix >= ? ORDER BY fix_unix DESC LIMIT ?
		) ORDER BY fix_unix ASC`,
		unixSeconds(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var track []TrackPoint
	for rows.Next() {
		var (
			p    TrackPoint
			unix float64
		)
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.Altitude, &unix); err != nil {
			return nil, err
		}
		p.Time = fromUnixSeconds(unix)
		track = append(track, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return track, nil
}
