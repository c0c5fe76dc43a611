package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 11, 7, 28, 9, 300000000, time.UTC)

func sampleEvent(frame int64) Event {
	return Event{
		Time:        t0.Add(time.Duration(frame) * time.Second),
		Latitude:    31.222388,
		Longitude:   -121.353901,
		Altitude:    "44.1",
		AreaM2:      0.000625,
		Confidence:  0.9,
		Frame:       frame,
		ImageBase64: "/9j/4AAQ",
	}
}

func TestWriter_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pothole_log.csv")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Header, ",")+"\n", string(data))

	w, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleEvent(7)))
	require.NoError(t, w.Close())

	w, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleEvent(8)))
	require.NoError(t, w.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, 1, strings.Count(string(data), "timestamp,latitude"))
	assert.Equal(t, "2025-03-11T07:28:16.3Z,31.222388,-121.353901,44.1,0.000625,0.9,7,/9j/4AAQ", lines[1])
}

func TestWriter_AppendIsDurableBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(sampleEvent(1)))

	res, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "log.csv"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err = w.Append(sampleEvent(1))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOpen_Unwritable(t *testing.T) {
	dir := t.TempDir()
	// a directory cannot be opened as the log file
	_, err := Open(dir)
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestWriter_ConcurrentAppendsKeepRowsWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	w, err := Open(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Append(sampleEvent(int64(i))))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	res, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, res.Events, 20)
	assert.Zero(t, res.Skipped)
}

func TestRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	w, err := Open(path)
	require.NoError(t, err)
	want := []Event{sampleEvent(1), sampleEvent(2)}
	want[1].ImageBase64 = ""
	for _, e := range want {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	res, err := ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, res.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_SkipsInvalidRows(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,latitude,longitude,altitude,area_m2,confidence,frame,image_base64",
		"2025-03-11T07:28:09.123456,31.2,121.3,44.1,0.01,0.8,1,",
		"2025-03-11T07:28:10,,121.3,44.1,0.01,0.8,2,",
		"2025-03-11T07:28:11,31.2,east,44.1,0.01,0.8,3,",
		"2025-03-11T07:28:12,31.2,121.3,44.1,NaN,0.8,4,",
		"2025-03-11T07:28:13,31.2,121.3,,0.02,0.7,5",
		"garbage",
	}, "\n")

	res, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Skipped)
	require.Len(t, res.Events, 2)
	assert.Equal(t, int64(1), res.Events[0].Frame)
	assert.Equal(t, 123456000, res.Events[0].Time.Nanosecond())
	assert.Equal(t, 0.02, res.Events[1].AreaM2)
	assert.Empty(t, res.Events[1].Altitude)
}

func TestRead_ColumnsByName(t *testing.T) {
	in := "area_m2,longitude,latitude\n0.5,2,1\n"
	res, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, Event{Latitude: 1, Longitude: 2, AreaM2: 0.5}, res.Events[0])
}

func TestReadFile_Missing(t *testing.T) {
	res, err := ReadFile(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}
