package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/eventlog"
	"github.com/banshee-data/pothole.report/internal/gps"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "pothole.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2025, 3, 11, 7, 28, 9, 0, time.UTC)

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout, synchronous, tempStore int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&synchronous))
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 5000, busyTimeout)
	assert.Equal(t, 1, synchronous) // NORMAL
	assert.Equal(t, 2, tempStore)   // MEMORY
}

func TestEvents(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 3; i++ {
		e := eventlog.Event{
			Time:       t0.Add(time.Duration(i) * time.Minute),
			Latitude:   31.2 + float64(i)/1000,
			Longitude:  121.3,
			Altitude:   "44.1",
			AreaM2:     0.01 * float64(i+1),
			Confidence: 0.9,
			Frame:      int64(100 + i),
		}
		if i == 2 {
			e.ImageBase64 = "abc"
		}
		require.NoError(t, db.RecordEvent(uuid.NewString(), e))
	}

	all, err := db.Events(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(102), all[0].Frame, "newest first")
	assert.True(t, all[0].HasImage)
	assert.False(t, all[1].HasImage)
	assert.WithinDuration(t, t0.Add(2*time.Minute), all[0].Time, time.Millisecond)
	assert.Empty(t, all[0].ImageBase64)

	recent, err := db.Events(t0.Add(90*time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	s, err := db.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 0.06, s.TotalAreaM2, 1e-12)
	assert.InDelta(t, 0.03, s.MaxAreaM2, 1e-12)
	assert.WithinDuration(t, t0.Add(2*time.Minute), s.Last, time.Millisecond)
}

func TestRecordEvent_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	id := uuid.NewString()
	require.NoError(t, db.RecordEvent(id, eventlog.Event{Time: t0}))
	assert.Error(t, db.RecordEvent(id, eventlog.Event{Time: t0}))
}

func TestSummary_Empty(t *testing.T) {
	s, err := newTestDB(t).Summary()
	require.NoError(t, err)
	assert.Equal(t, EventSummary{}, s)
}

func TestTrack(t *testing.T) {
	db := newTestDB(t)

	assert.ErrorIs(t, db.RecordFix(gps.Fix{Time: t0}), ErrNoPosition)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordFix(gps.NewFix(1+float64(i), 2, "10.0", t0.Add(time.Duration(i)*3*time.Second))))
	}

	track, err := db.Track(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, track, 5)
	assert.Equal(t, 1.0, track[0].Latitude, "oldest first")
	assert.Equal(t, "10.0", track[0].Altitude)

	tail, err := db.Track(time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, []float64{4, 5}, []float64{tail[0].Latitude, tail[1].Latitude})

	since, err := db.Track(t0.Add(6*time.Second), 0)
	require.NoError(t, err)
	assert.Len(t, since, 3)
}
