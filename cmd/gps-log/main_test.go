package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pothole.report/internal/gps"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

type memStore struct {
	fixes []gps.Fix
	err   error
}

func (m *memStore) RecordFix(f gps.Fix) error {
	if m.err != nil {
		return m.err
	}
	m.fixes = append(m.fixes, f)
	return nil
}

func TestIntervalDefault(t *testing.T) {
	if *interval != 3*time.Second {
		t.Errorf("-interval default = %v, want 3s", *interval)
	}
}

func TestTrackLogger_Record(t *testing.T) {
	at := time.Date(2025, 3, 11, 7, 28, 9, 0, time.UTC)
	var out, file bytes.Buffer
	cw, err := newCSV(&file, true)
	if err != nil {
		t.Fatal(err)
	}
	store := &memStore{}
	tl := &trackLogger{out: &out, store: store, csv: cw, clock: timeutil.NewMockClock(at)}

	tl.record(gps.NewFix(31.222389, 121.353904, "44.1", at))
	tl.record(gps.Fix{Time: at})

	if len(store.fixes) != 1 {
		t.Fatalf("stored %d fixes, want 1", len(store.fixes))
	}
	printed := out.String()
	if !strings.Contains(printed, "Latitude: 31.222389, Longitude: 121.353904, Altitude: 44.1 m") {
		t.Errorf("output = %q", printed)
	}
	if !strings.Contains(printed, "No fix.") {
		t.Errorf("output %q should report the missing fix", printed)
	}

	rows, err := csv.NewReader(&file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{csvHeader, {"2025-03-11T07:28:09Z", "31.222389", "121.353904", "44.1"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestTrackLogger_StoreFailureKeepsGoing(t *testing.T) {
	var out bytes.Buffer
	tl := &trackLogger{out: &out, store: &memStore{err: errors.New("disk full")}, clock: timeutil.NewMockClock(time.Now())}
	tl.record(gps.NewFix(1, 2, "", time.Now()))
	tl.record(gps.NewFix(1, 2, "", time.Now()))
	if got := strings.Count(out.String(), "Latitude"); got != 2 {
		t.Errorf("printed %d fixes, want 2", got)
	}
}

func TestNewCSV_AppendSkipsHeader(t *testing.T) {
	var buf bytes.Buffer
	if _, err := newCSV(&buf, false); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("header written to non-empty file: %q", buf.String())
	}
}

func TestPollUntilDone_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	ctx := context.Background()

	pollUntilDone(ctx, func(context.Context) error { return context.Canceled })
	if buf.Len() != 0 {
		t.Errorf("cancellation logged: %q", buf.String())
	}
	pollUntilDone(ctx, func(context.Context) error { return errors.New("modem gone") })
	if !strings.Contains(buf.String(), "poller stopped: modem gone") {
		t.Errorf("log = %q", buf.String())
	}
}
