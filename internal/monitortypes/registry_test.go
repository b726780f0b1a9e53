package monitortypes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptime-watcher/internal/models"
)

func TestBuiltinTypes(t *testing.T) {
	r := NewRegistry()
	types := r.Types()
	require.Len(t, types, 2)
	assert.Equal(t, "http", types[0].Type)
	assert.Equal(t, "port", types[1].Type)
}

func TestValidate(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	tests := []struct {
		name     string
		typ      string
		data     map[string]any
		valid    bool
		warnings int
	}{
		{"http ok", "http", map[string]any{"url": "https://example.com"}, true, 0},
		{"http plain", "http", map[string]any{"url": "http://example.com"}, true, 1},
		{"http missing url", "http", map[string]any{}, false, 0},
		{"http bad scheme", "http", map[string]any{"url": "ftp://example.com"}, false, 0},
		{"http interval too short", "http", map[string]any{"url": "https://a", "checkIntervalMs": 100.0}, false, 0},
		{"http slow timeout", "http", map[string]any{"url": "https://a", "checkIntervalMs": 10000.0, "timeoutMs": 20000.0}, true, 1},
		{"port ok", "port", map[string]any{"host": "db.local", "port": 5432.0}, true, 0},
		{"port out of range", "port", map[string]any{"host": "db.local", "port": 70000.0}, false, 0},
		{"port missing host", "port", map[string]any{"port": 22.0}, false, 0},
		{"unknown type", "dns", map[string]any{}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Validate(ctx, tt.typ, tt.data)
			assert.Equal(t, tt.valid, res.IsValid, res.Errors)
			if tt.valid {
				assert.Empty(t, res.Errors)
			} else {
				assert.NotEmpty(t, res.Errors)
			}
			assert.Len(t, res.Warnings, tt.warnings)
		})
	}
}

func TestValidateMonitor(t *testing.T) {
	r := NewRegistry()
	m := models.Monitor{ID: "m1", Type: "http", URL: "https://example.com"}
	m.ApplyDefaults()
	assert.NoError(t, r.ValidateMonitor(m))

	m.Type = "port"
	assert.Error(t, r.ValidateMonitor(m))

	m.Host, m.Port = "example.com", 443
	assert.NoError(t, r.ValidateMonitor(m))
}

func TestFormatting(t *testing.T) {
	r := NewRegistry()

	d, err := r.FormatDetail("http", "200")
	require.NoError(t, err)
	assert.Equal(t, "Response Code: 200", d)

	d, err = r.FormatDetail("port", "443")
	require.NoError(t, err)
	assert.Equal(t, "Port: 443", d)

	s, err := r.FormatTitleSuffix("port", models.Monitor{Host: "db", Port: 5432})
	require.NoError(t, err)
	assert.Equal(t, " (db:5432)", s)

	_, err = r.FormatDetail("dns", "x")
	assert.ErrorIs(t, err, ErrUnknownMonitorType)
}

func TestRegisterExtension(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Definition{
		Config: Config{Type: "ping", DisplayName: "Ping"},
		Schema: `{"type": "object", "required": ["host"]}`,
	})
	require.NoError(t, err)
	assert.Len(t, r.Types(), 3)

	assert.ErrorIs(t, r.Register(Definition{Config: Config{Type: "ping"}}), ErrDuplicateType)
	assert.Error(t, r.Register(Definition{Config: Config{Type: "bad"}, Schema: `{not json`}))

	res := r.Validate(context.Background(), "ping", map[string]any{})
	assert.False(t, res.IsValid)

	d, err := r.FormatDetail("ping", "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", d)
}
