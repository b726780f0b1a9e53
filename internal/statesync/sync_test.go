package statesync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
)

type fakeSource struct {
	mu    sync.Mutex
	sites []models.Site
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeSource) Sites(context.Context) ([]models.Site, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Site, len(f.sites))
	for i, s := range f.sites {
		out[i] = s.Clone()
	}
	return out, nil
}

func newService(t *testing.T, src SiteSource) (*Service, *events.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.New("test", logger)
	svc := NewService(src, bus, logger)
	t.Cleanup(svc.Close)
	return svc, bus
}

func TestFullSyncIsIdempotent(t *testing.T) {
	src := &fakeSource{sites: []models.Site{
		{Identifier: "a", Monitors: []models.Monitor{{ID: "m1", Type: "http", Status: models.StatusUp}}},
		{Identifier: "b", Monitors: []models.Monitor{}},
	}}
	svc, _ := newService(t, src)
	ctx := context.Background()

	first, err := svc.FullSync(ctx, "test")
	require.NoError(t, err)
	second, err := svc.FullSync(ctx, "test")
	require.NoError(t, err)

	ignore := cmpopts.IgnoreFields(Snapshot{}, "CapturedAt", "Revision")
	if diff := cmp.Diff(first, second, ignore); diff != "" {
		t.Errorf("snapshots differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, 2, first.SiteCount)

	// The snapshot must not alias source state.
	first.Sites[0].Monitors[0].Status = models.StatusDown
	third, err := svc.FullSync(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, third.Sites[0].Monitors[0].Status)
}

func TestForwarderStampsRevisions(t *testing.T) {
	svc, bus := newService(t, &fakeSource{})
	ctx := context.Background()

	_, frames, cancel, start := svc.Subscribe(8)
	defer cancel()
	assert.Zero(t, start)

	events.Emit(ctx, bus, events.SiteAdded, events.SiteChange{Identifier: "a"})
	events.Emit(ctx, bus, events.HandlerFailed, events.HandlerError{Event: "x"})
	events.Emit(ctx, bus, events.SiteRemoved, events.SiteChange{Identifier: "a"})

	f1 := <-frames
	f2 := <-frames
	assert.Equal(t, "site:added", f1.Event)
	assert.EqualValues(t, 1, f1.Revision)
	assert.NotEmpty(t, f1.CorrelationID)
	assert.JSONEq(t, `{"identifier":"a","timestamp":"0001-01-01T00:00:00Z"}`, string(f1.Payload))
	assert.Equal(t, "site:removed", f2.Event)
	assert.EqualValues(t, 2, f2.Revision)
	assert.EqualValues(t, 2, svc.Revision())
}

func TestFullSyncEmitsAndReportsRevision(t *testing.T) {
	svc, bus := newService(t, &fakeSource{sites: []models.Site{{Identifier: "a"}}})
	ctx := context.Background()
	events.Emit(ctx, bus, events.SiteAdded, events.SiteChange{Identifier: "a"})

	_, frames, cancel, _ := svc.Subscribe(8)
	defer cancel()

	snap, err := svc.FullSync(ctx, "renderer")
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Revision)

	f := <-frames
	assert.Equal(t, "sites:state-synchronized", f.Event)
	assert.EqualValues(t, 2, f.Revision)
}

func TestConcurrentFullSyncsCollapse(t *testing.T) {
	src := &fakeSource{sites: []models.Site{{Identifier: "a"}}, gate: make(chan struct{})}
	svc, _ := newService(t, src)

	var wg sync.WaitGroup
	results := make([]Snapshot, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := svc.FullSync(context.Background(), "test")
			assert.NoError(t, err)
			results[i] = snap
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Less(t, src.calls.Load(), int32(5))
	for _, r := range results {
		assert.Equal(t, 1, r.SiteCount)
	}
}

func TestStatus(t *testing.T) {
	src := &fakeSource{sites: []models.Site{{Identifier: "a"}, {Identifier: "b"}}}
	svc, _ := newService(t, src)
	ctx := context.Background()

	st := svc.Status(ctx)
	assert.True(t, st.Success)
	assert.False(t, st.Synchronized)
	assert.Nil(t, st.LastSync)
	assert.Equal(t, 2, st.SiteCount)

	_, err := svc.FullSync(ctx, "test")
	require.NoError(t, err)
	st = svc.Status(ctx)
	assert.True(t, st.Synchronized)
	require.NotNil(t, st.LastSync)

	src.mu.Lock()
	src.err = errors.New("database is locked")
	src.mu.Unlock()
	st = svc.Status(ctx)
	assert.False(t, st.Success)
	assert.Equal(t, 2, st.SiteCount)
}

func TestSlowSubscriberDropsFrames(t *testing.T) {
	svc, bus := newService(t, &fakeSource{})
	_, frames, cancel, _ := svc.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		events.Emit(context.Background(), bus, events.SiteRemoved, events.SiteChange{Identifier: "x"})
	}
	f := <-frames
	assert.EqualValues(t, 1, f.Revision)
	assert.EqualValues(t, 2, svc.Dropped())

	cancel()
	cancel()
	_, open := <-frames
	assert.False(t, open)
}
