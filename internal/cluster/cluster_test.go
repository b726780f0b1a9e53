package cluster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"uptime-watcher/internal/server"
)

type fakeEngine struct {
	suspended atomic.Bool
	resumes   atomic.Int32
}

func (e *fakeEngine) Resume(context.Context) error {
	e.suspended.Store(false)
	e.resumes.Add(1)
	return nil
}
func (e *fakeEngine) Suspend()        { e.suspended.Store(true) }
func (e *fakeEngine) Suspended() bool { return e.suspended.Load() }

func TestFollowerFailover(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	var gotKey atomic.Value
	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get(server.SecretHeader))
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer leader.Close()

	eng := &fakeEngine{}
	eng.Suspend()
	f := NewFollower(Config{Mode: ModeFollower, PeerURL: leader.URL + "/", SharedKey: "k", Threshold: 2}, eng, nil)
	ctx := context.Background()

	f.step(ctx)
	assert.True(t, eng.Suspended())
	assert.Equal(t, "k", gotKey.Load())

	healthy.Store(false)
	f.step(ctx)
	assert.True(t, eng.Suspended(), "one failure is below the threshold")
	f.step(ctx)
	assert.False(t, eng.Suspended())
	assert.EqualValues(t, 1, eng.resumes.Load())

	f.step(ctx)
	assert.EqualValues(t, 1, eng.resumes.Load(), "already active")

	healthy.Store(true)
	f.step(ctx)
	assert.True(t, eng.Suspended())
	assert.Zero(t, f.failures)
}

func TestRunStartsPassiveAndStops(t *testing.T) {
	eng := &fakeEngine{}
	f := NewFollower(Config{PeerURL: "http://127.0.0.1:1", Interval: time.Hour}, eng, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, eng.Suspended, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
