package ipc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (o *recordingObserver) ObserveCall(channel, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string][]string)
	}
	o.outcomes[channel] = append(o.outcomes[channel], outcome)
}

func newTestRegistry() (*Registry, *recordingObserver) {
	obs := &recordingObserver{}
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)), obs), obs
}

func TestDuplicateRegistrationFails(t *testing.T) {
	r, _ := newTestRegistry()
	h := func(context.Context, []any) (any, error) { return "ok", nil }

	require.NoError(t, r.Register(GetSites, h, NoParams()))
	err := r.Register(GetSites, h, NoParams())
	assert.ErrorIs(t, err, ErrDuplicateChannel)
	assert.Equal(t, []Channel{GetSites}, r.Channels())
}

func TestValidationFailureSkipsHandler(t *testing.T) {
	r, obs := newTestRegistry()
	calls := 0
	require.NoError(t, r.Register(RemoveSite, func(context.Context, []any) (any, error) {
		calls++
		return true, nil
	}, Params(Param{Name: "identifier", Check: RequiredString})))

	cases := [][]any{
		{},
		{42.0},
		{""},
		{"a", "b"},
	}
	for _, params := range cases {
		resp := r.Invoke(context.Background(), RemoveSite, params)
		assert.False(t, resp.Success)
		assert.Nil(t, resp.Data)
		assert.Equal(t, ValidationFailedMessage, resp.Error)
		assert.NotEmpty(t, resp.ValidationErrors())
		assert.Equal(t, "remove-site", resp.Metadata["handler"])
	}
	assert.Equal(t, 0, calls)
	assert.Len(t, obs.outcomes["remove-site"], len(cases))
	assert.Equal(t, OutcomeValidation, obs.outcomes["remove-site"][0])
}

func TestSuccessEnvelope(t *testing.T) {
	r, obs := newTestRegistry()
	require.NoError(t, r.Register(GetHistoryLimit, func(context.Context, []any) (any, error) {
		return 500, nil
	}, NoParams()))

	resp := r.Invoke(context.Background(), GetHistoryLimit, nil)
	require.True(t, resp.Success)
	assert.Equal(t, 500, resp.Data)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "get-history-limit", resp.Metadata["handler"])
	assert.Contains(t, resp.Metadata, "duration")
	assert.Equal(t, []string{OutcomeSuccess}, obs.outcomes["get-history-limit"])
}

func TestNilResultBecomesTrue(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Register(StopMonitoring, func(context.Context, []any) (any, error) {
		return nil, nil
	}, NoParams()))

	resp := r.Invoke(context.Background(), StopMonitoring, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, true, resp.Data)
}

func TestHandlerErrorEnvelope(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Register(ExportData, func(context.Context, []any) (any, error) {
		return "partial", errors.New("database is locked")
	}, NoParams()))

	resp := r.Invoke(context.Background(), ExportData, nil)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "database is locked", resp.Error)
	assert.Equal(t, "export-data", resp.Metadata["handler"])
	assert.Contains(t, resp.Metadata, "duration")
}

func TestHandlerPanicEnvelope(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Register(ExportData, func(context.Context, []any) (any, error) {
		panic("nil map")
	}, NoParams()))

	resp := r.Invoke(context.Background(), ExportData, nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "nil map")
}

func TestUnknownChannel(t *testing.T) {
	r, _ := newTestRegistry()
	resp := r.Invoke(context.Background(), Channel("nope"), nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown channel")
}

func TestWarningsAreCarried(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Register(ImportData, func(context.Context, []any) (any, error) {
		return WithWarnings{Data: true, Warnings: []string{"2 monitors skipped"}}, nil
	}, Params(Param{Name: "data", Check: RequiredString})))

	resp := r.Invoke(context.Background(), ImportData, []any{"{}"})
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Data)
	assert.Equal(t, []string{"2 monitors skipped"}, resp.Warnings)
}

func TestUnregisterAll(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Register(GetSites, func(context.Context, []any) (any, error) { return nil, nil }, nil))
	r.UnregisterAll()
	assert.False(t, r.IsRegistered(GetSites))
	require.NoError(t, r.Register(GetSites, func(context.Context, []any) (any, error) { return nil, nil }, nil))
}

func TestCatalogueNamesAreUnique(t *testing.T) {
	seen := make(map[Channel]bool)
	for _, c := range Catalogue {
		assert.False(t, seen[c.Name], c.Name)
		seen[c.Name] = true
		assert.True(t, Known(c.Name))
	}
	assert.Len(t, seen, 24)
}
