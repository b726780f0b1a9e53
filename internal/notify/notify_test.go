package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/events"
	"uptime-watcher/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	titles []string
}

func (r *recorder) Name() string { return "recorder" }
func (r *recorder) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

func transition(status string) events.MonitorStatus {
	site := models.Site{Identifier: "api", Name: "API"}
	mon := models.Monitor{ID: "m1", Type: "http", URL: "https://api.example.com", Status: status, LastError: "HTTP 503"}
	return events.MonitorStatus{Site: site, Monitor: mon, Status: status}
}

func TestGetProvider(t *testing.T) {
	p, err := GetProvider(ProviderConfig{Type: "slack", Settings: map[string]string{"url": "https://hooks.example.com/x"}})
	require.NoError(t, err)
	assert.Equal(t, "slack", p.Name())

	_, err = GetProvider(ProviderConfig{Name: "ops", Type: "discord"})
	assert.ErrorContains(t, err, "url is required")

	_, err = GetProvider(ProviderConfig{Type: "email", Settings: map[string]string{"host": "smtp.example.com"}})
	assert.Error(t, err)

	_, err = GetProvider(ProviderConfig{Type: "pager"})
	assert.ErrorContains(t, err, "unknown")
}

func TestWebhookProvider(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p, err := GetProvider(ProviderConfig{Type: "webhook", Settings: map[string]string{"url": ts.URL}})
	require.NoError(t, err)
	require.NoError(t, p.Send(context.Background(), "API is down", "body"))
	assert.Equal(t, map[string]string{"title": "API is down", "message": "body", "status": "alert"}, got)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	p, _ = GetProvider(ProviderConfig{Type: "discord", Settings: map[string]string{"url": failing.URL}})
	assert.ErrorContains(t, p.Send(context.Background(), "t", "m"), "500")
}

func TestFormat(t *testing.T) {
	down := Format(transition(models.StatusDown))
	assert.Equal(t, "API is down", down.Title)
	assert.Contains(t, down.Message, "https://api.example.com")
	assert.Contains(t, down.Message, "HTTP 503")

	up := Format(transition(models.StatusUp))
	assert.Equal(t, "API is up", up.Title)
}

func TestNotifierDeliversTransitions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.New("test", logger)
	rec := &recorder{}
	n := New(bus, []Provider{rec}, Options{}, logger)
	defer n.Close()

	ctx := context.Background()
	events.Emit(ctx, bus, events.MonitorDown, transition(models.StatusDown))
	events.Emit(ctx, bus, events.MonitorUp, transition(models.StatusUp))
	events.Emit(ctx, bus, events.MonitorStatusChanged, transition(models.StatusUp))

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, []string{"API is down", "API is up"}, rec.titles)
	rec.mu.Unlock()
}

func TestNotifierRateLimits(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.New("test", logger)
	rec := &recorder{}
	n := New(bus, []Provider{rec}, Options{PerMinute: 1, Burst: 1}, logger)

	for i := 0; i < 5; i++ {
		events.Emit(context.Background(), bus, events.MonitorDown, transition(models.StatusDown))
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	n.Close()
	assert.Equal(t, 1, rec.count())

	events.Emit(context.Background(), bus, events.MonitorDown, transition(models.StatusDown))
	assert.Zero(t, bus.ListenerCount(events.MonitorDown.Name()))
}
