package gps

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/serialmux"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

func runDevice(t *testing.T, dev *Device) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dev.Mux.Monitor(ctx)
	}()
	return ctx, func() {
		cancel()
		dev.Close()
		wg.Wait()
	}
}

func TestOpenDevice_QueriesSelectedPort(t *testing.T) {
	opener := serialmux.NewMockPortOpener()
	port := serialmux.NewModemPort(sampleInfo)
	opener.Ports["/dev/ttyUSB2"] = port

	d := newTestDiscoverer(opener, []string{"/dev/ttyUSB2"}, nil)
	dev, err := OpenDevice(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB2", dev.Path)
	assert.Equal(t, []string{"/dev/ttyUSB2", "/dev/ttyUSB2"}, opener.Opened)

	ctx, stop := runDevice(t, dev)
	defer stop()

	fix, err := dev.Modem.Query(ctx)
	require.NoError(t, err)
	lat, lon, ok := fix.LatLon()
	require.True(t, ok)
	assert.InDelta(t, 31.222388, lat, 1e-6)
	assert.InDelta(t, 121.353901, lon, 1e-6)
}

func TestOpenDevice_NotFound(t *testing.T) {
	d := newTestDiscoverer(serialmux.NewMockPortOpener(), []string{"/dev/ttyUSB0"}, nil)
	_, err := OpenDevice(context.Background(), d)
	assert.ErrorIs(t, err, ErrPortNotFound)
}

func TestSimulatedDevice(t *testing.T) {
	dev := SimulatedDevice(sampleInfo, testSettle, timeutil.RealClock{})
	ctx, stop := runDevice(t, dev)
	defer stop()

	fix, err := dev.Modem.Query(ctx)
	require.NoError(t, err)
	assert.True(t, fix.Valid())
	assert.Equal(t, "44.1", fix.Altitude)
}
