// Package monitortypes describes the monitor types the daemon can schedule:
// their form fields, JSON schema and display formatting.
package monitortypes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	"uptime-watcher/internal/models"
)

var (
	ErrUnknownMonitorType = errors.New("unknown monitor type")
	ErrDuplicateType      = errors.New("monitor type already registered")
)

// Field describes one input the renderer shows when creating a monitor.
type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
	HelpText    string `json:"helpText,omitempty"`
	Min         *int   `json:"min,omitempty"`
	Max         *int   `json:"max,omitempty"`
}

// Config is the public description of a monitor type.
type Config struct {
	Type        string  `json:"type"`
	DisplayName string  `json:"displayName"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Fields      []Field `json:"fields"`
}

// Definition adds the behavior behind a Config.
type Definition struct {
	Config
	// Schema is a JSON schema applied to monitor data.
	Schema string
	// Detail formats a history detail string for display.
	Detail func(details string) string
	// TitleSuffix is appended to the site name in lists.
	TitleSuffix func(m models.Monitor) string
	// Warnings reports non-fatal problems with otherwise valid data.
	Warnings func(data map[string]any) []string
}

// ValidationResult is returned by validate-monitor-data.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type registered struct {
	def    Definition
	schema *jsonschema.Schema
}

type Registry struct {
	mu    sync.RWMutex
	types map[string]registered
}

// NewRegistry returns a registry holding the built-in http and port types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]registered)}
	for _, def := range builtins() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a monitor type. The schema must parse.
func (r *Registry) Register(def Definition) error {
	if strings.TrimSpace(def.Type) == "" {
		return errors.New("monitor type name is required")
	}
	schema := &jsonschema.Schema{}
	src := def.Schema
	if src == "" {
		src = `{"type": "object"}`
	}
	if err := schema.UnmarshalJSON([]byte(src)); err != nil {
		return fmt.Errorf("monitor type %s: invalid schema: %w", def.Type, err)
	}
	if def.Detail == nil {
		def.Detail = func(d string) string { return d }
	}
	if def.TitleSuffix == nil {
		def.TitleSuffix = func(models.Monitor) string { return "" }
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[def.Type]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.Type)
	}
	r.types[def.Type] = registered{def: def, schema: schema}
	return nil
}

// Types lists every registered type, sorted by name.
func (r *Registry) Types() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t.def.Config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (r *Registry) lookup(typ string) (registered, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[typ]
	if !ok {
		return registered{}, fmt.Errorf("%w: %s", ErrUnknownMonitorType, typ)
	}
	return t, nil
}

// Validate checks data against the type's schema. An unknown type yields an
// invalid result rather than an error.
func (r *Registry) Validate(ctx context.Context, typ string, data map[string]any) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	t, err := r.lookup(typ)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	raw, err := json.Marshal(data)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	keyErrs, err := t.schema.ValidateBytes(ctx, raw)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	for _, ke := range keyErrs {
		path := strings.TrimPrefix(ke.PropertyPath, "/")
		if path == "" {
			res.Errors = append(res.Errors, ke.Message)
			continue
		}
		res.Errors = append(res.Errors, path+": "+ke.Message)
	}
	if len(res.Errors) == 0 && t.def.Warnings != nil {
		res.Warnings = append(res.Warnings, t.def.Warnings(data)...)
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidateMonitor applies Validate to a monitor's own fields.
func (r *Registry) ValidateMonitor(m models.Monitor) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	res := r.Validate(context.Background(), m.Type, data)
	if !res.IsValid {
		return errors.New(strings.Join(res.Errors, "; "))
	}
	return nil
}

// FormatDetail renders a history detail for display.
func (r *Registry) FormatDetail(typ, details string) (string, error) {
	t, err := r.lookup(typ)
	if err != nil {
		return "", err
	}
	return t.def.Detail(details), nil
}

// FormatTitleSuffix renders the suffix shown after a site name.
func (r *Registry) FormatTitleSuffix(typ string, m models.Monitor) (string, error) {
	t, err := r.lookup(typ)
	if err != nil {
		return "", err
	}
	return t.def.TitleSuffix(m), nil
}
