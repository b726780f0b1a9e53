package ipc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveChecks(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		value any
		ok    bool
	}{
		{"string ok", RequiredString, "abc", true},
		{"string empty", RequiredString, "  ", false},
		{"string wrong type", RequiredString, 12.0, false},
		{"optional nil", OptionalString, nil, true},
		{"optional wrong type", OptionalString, true, false},
		{"number ok", RequiredNumber, 3.5, true},
		{"number string", RequiredNumber, "3", false},
		{"integer negative", NonNegativeInteger, -5.0, false},
		{"integer fraction", NonNegativeInteger, 1.5, false},
		{"integer zero", NonNegativeInteger, 0.0, true},
		{"integer max", NonNegativeInteger, float64(math.MaxInt32), true},
		{"integer overflow", NonNegativeInteger, 1e19, false},
		{"object ok", RequiredObject, map[string]any{}, true},
		{"object array", RequiredObject, []any{}, false},
		{"object nil", RequiredObject, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.check(tt.value, "param")
			if tt.ok {
				assert.Empty(t, msg)
			} else {
				assert.Contains(t, msg, "param")
			}
		})
	}
}

func TestParamsArity(t *testing.T) {
	v := Params(
		Param{Name: "identifier", Check: RequiredString},
		Param{Name: "monitorId", Check: OptionalString, Optional: true},
	)

	assert.Nil(t, v([]any{"s1"}))
	assert.Nil(t, v([]any{"s1", "m1"}))
	assert.Nil(t, v([]any{"s1", nil}))

	errs := v([]any{})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "expected 1 to 2 parameters")
	assert.Contains(t, errs[1], "identifier is required")

	errs = v([]any{"s1", "m1", "extra"})
	require.Len(t, errs, 1)
}

func TestValidatorsDoNotMutate(t *testing.T) {
	obj := map[string]any{"identifier": "s1"}
	params := []any{obj}
	v := Compose(
		Params(Param{Name: "site", Check: RequiredObject}),
		Field(0, "identifier", RequiredString, false),
		Field(0, "name", OptionalString, true),
	)
	assert.Nil(t, v(params))
	assert.Equal(t, map[string]any{"identifier": "s1"}, params[0])
}

func TestFieldMissing(t *testing.T) {
	v := Field(0, "identifier", RequiredString, false)
	assert.Equal(t, []string{"identifier is required"}, v([]any{map[string]any{}}))
}

func TestNormalizeParams(t *testing.T) {
	type site struct {
		Identifier string `json:"identifier"`
	}
	out, err := NormalizeParams(site{Identifier: "s1"}, 5, "x")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"identifier": "s1"}, 5.0, "x"}, out)

	var back site
	require.NoError(t, Bind(out[0], &back))
	assert.Equal(t, "s1", back.Identifier)
	assert.Equal(t, 5, IntAt(out, 1))
	assert.Equal(t, "x", StringAt(out, 2))
	assert.Equal(t, "", StringAt(out, 3))
}
