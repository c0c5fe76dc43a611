package gps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/timeutil"
)

type result struct {
	fix Fix
	err error
}

// scriptedQuerier replays results in order and repeats the last one.
type scriptedQuerier struct {
	mu      sync.Mutex
	results []result
	calls   int
}

func (q *scriptedQuerier) Query(context.Context) (Fix, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.calls
	if i >= len(q.results) {
		i = len(q.results) - 1
	}
	q.calls++
	return q.results[i].fix, q.results[i].err
}

func TestPoller_LatestBeforePoll(t *testing.T) {
	p := NewPoller(&scriptedQuerier{}, PollerConfig{})
	assert.False(t, p.Latest().Valid())
	assert.Equal(t, DefaultPollInterval, p.interval)
}

func TestPoller_PollOncePublishes(t *testing.T) {
	at := time.Date(2025, 3, 11, 7, 28, 9, 0, time.UTC)
	clock := timeutil.NewMockClock(at)
	q := &scriptedQuerier{results: []result{
		{fix: NewFix(1, 1, "10", at)},
		{fix: Fix{Time: at}},
		{err: errors.New("read timeout")},
	}}
	var seen []Fix
	p := NewPoller(q, PollerConfig{Clock: clock, OnFix: func(f Fix) { seen = append(seen, f) }})

	fix := p.PollOnce(context.Background())
	require.True(t, fix.Valid())
	assert.Equal(t, fix, p.Latest())

	p.PollOnce(context.Background())
	assert.False(t, p.Latest().Valid())

	p.PollOnce(context.Background())
	assert.False(t, p.Latest().Valid(), "failed query publishes an absent fix")
	assert.Equal(t, at, p.Latest().Time)

	assert.Equal(t, PollerStats{Polls: 3, Fixes: 1, NoFix: 1, Failures: 1}, p.Stats())
	assert.Len(t, seen, 3)
}

func TestPoller_RunTicks(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	q := &scriptedQuerier{results: []result{{fix: NewFix(1, 1, "", time.Unix(0, 0))}}}
	p := NewPoller(q, PollerConfig{Interval: 3 * time.Second, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Stats().Polls == 1 }, time.Second, time.Millisecond)

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return p.Stats().Polls == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPoller_AdminRoute(t *testing.T) {
	q := &scriptedQuerier{results: []result{{fix: NewFix(51.5, -0.1, "12", time.Unix(0, 0))}}}
	p := NewPoller(q, PollerConfig{})
	p.PollOnce(context.Background())

	mux := http.NewServeMux()
	p.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/gps", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Fix   Fix         `json:"fix"`
		Stats PollerStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Fix.Valid())
	assert.Equal(t, 51.5, *body.Fix.Latitude)
	assert.Equal(t, uint64(1), body.Stats.Fixes)
}
