package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/skycalc/internal/params"
	"github.com/i474232898/skycalc/internal/skycalc"
)

type countingAlmanac struct {
	mu    sync.Mutex
	calls []skycalc.AlmanacRequest
}

func (c *countingAlmanac) Name() string { return "counting" }

func (c *countingAlmanac) QueryAlmanac(ctx context.Context, req skycalc.AlmanacRequest) (skycalc.AlmanacResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	return skycalc.AlmanacResult{"airmass": 2.0, "moon_alt": -5.0}, nil
}

type staticSessions []*skycalc.Session

func (s staticSessions) Sessions() []*skycalc.Session { return s }

func pointAt(t *testing.T, sess *skycalc.Session, ra, dec float64) {
	t.Helper()
	require.NoError(t, sess.Update(func(st *params.Store) error {
		return st.SetMany(map[string]any{"ra": ra, "dec": dec}).Err()
	}))
}

func TestRunOnceRefreshesTrackedSessions(t *testing.T) {
	alm := &countingAlmanac{}
	svc := skycalc.NewService(params.MustDefault(), nil, alm, nil, nil)

	tracked := svc.NewSession("tracked")
	pointAt(t, tracked, 83.6, 22.0)
	tracked.SetTracked(true)

	idle := svc.NewSession("idle")
	pointAt(t, idle, 10, 10)

	noPointing := svc.NewSession("no-pointing")
	noPointing.SetTracked(true)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(staticSessions{tracked, idle, noPointing}, time.Minute, nil)
	s.now = func() time.Time { return at }

	s.RunOnce()

	require.Len(t, alm.calls, 1)
	assert.Equal(t, 83.6, alm.calls[0].RA)
	assert.Equal(t, at, *alm.calls[0].Time)

	airmass, _ := tracked.Snapshot().Get("airmass")
	assert.Equal(t, 2.0, airmass)
	airmass, _ = idle.Snapshot().Get("airmass")
	assert.Equal(t, 1.0, airmass)
}

func TestStartAndStop(t *testing.T) {
	s := New(staticSessions{}, time.Minute, nil)
	require.NoError(t, s.Start())
	s.Stop()
}
