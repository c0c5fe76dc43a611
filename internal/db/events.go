package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/pothole.report/internal/eventlog"
)

// EventRecord is an indexed event. The crop image itself is only kept in the
// CSV log.
type EventRecord struct {
	ID string `json:"id"`
	eventlog.Event
	HasImage bool `json:"has_image"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(v float64) time.Time {
	return time.Unix(0, int64(v*1e9)).UTC()
}

// RecordEvent indexes e under id.
func (db *DB) RecordEvent(id string, e eventlog.Event) error {
	_, err := db.Exec(
		`INSERT INTO events (
			event_id, event_unix, latitude, longitude, altitude, area_m2, confidence, frame, has_image
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, unixSeconds(e.Time), e.Latitude, e.Longitude, e.Altitude, e.AreaM2, e.Confidence, e.Frame,
		e.ImageBase64 != "",
	)
	if err != nil {
		return fmt.Errorf("record event %s: %w", id, err)
	}
	return nil
}

// Events returns up to limit events at or after since, newest first.
func (db *DB) Events(since time.Time, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(
		`SELECT event_id, event_unix, latitude, longitude, altitude, area_m2, confidence, frame, has_image
		FROM events WHERE event_unix >= ? ORDER BY event_unix DESC LIMIT ?`,
		unixSeconds(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var (
			rec  EventRecord
			unix float64
		)
		if err := rows.Scan(
			&rec.ID,
			&unix,
			&rec.Latitude,
			&rec.Longitude,
			&rec.Altitude,
			&rec.AreaM2,
			&rec.Confidence,
			&rec.Frame,
			&rec.HasImage,
		); err != nil {
			return nil, err
		}
		rec.Time = fromUnixSeconds(unix)
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// EventSummary aggregates the indexed events.
type EventSummary struct {
	Count       int       `json:"count"`
	TotalAreaM2 float64   `json:"total_area_m2"`
	MaxAreaM2   float64   `json:"max_area_m2"`
	Last        time.Time `json:"last,omitzero"`
}

// Summary returns aggregate statistics over all indexed events.
func (db *DB) Summary() (EventSummary, error) {
	var (
		s    EventSummary
		last *float64
	)
	err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(area_m2), 0), COALESCE(MAX(area_m2), 0), MAX(event_unix) FROM events`,
	).Scan(&s.Count, &s.TotalAreaM2, &s.MaxAreaM2, &last)
	if err != nil {
		return EventSummary{}, err
	}
	if last != nil {
		s.Last = fromUnixSeconds(*last)
	}
	return s, nil
}
