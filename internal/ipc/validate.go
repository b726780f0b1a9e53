package ipc

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Validator inspects raw parameters and returns nil when they are valid, or
// one message per violated constraint. Validators never modify params.
type Validator func(params []any) []string

// Check validates a single value and returns "" when it passes.
type Check func(value any, name string) string

// Param describes one positional parameter.
type Param struct {
	Name     string
	Check    Check
	Optional bool
}

func RequiredString(value any, name string) string {
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%s must be a string", name)
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Sprintf("%s cannot be empty", name)
	}
	return ""
}

func OptionalString(value any, name string) string {
	if value == nil {
		return ""
	}
	if _, ok := value.(string); !ok {
		return fmt.Sprintf("%s must be a string when provided", name)
	}
	return ""
}

func RequiredNumber(value any, name string) string {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%s must be a valid number", name)
	}
	return ""
}

func NonNegativeInteger(value any, name string) string {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return fmt.Sprintf("%s must be an integer", name)
	}
	if f < 0 {
		return fmt.Sprintf("%s must be non-negative", name)
	}
	if f > math.MaxInt32 {
		return fmt.Sprintf("%s must be at most %d", name, math.MaxInt32)
	}
	return ""
}

func RequiredObject(value any, name string) string {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Sprintf("%s must be an object", name)
	}
	return ""
}

func OptionalArray(value any, name string) string {
	if value == nil {
		return ""
	}
	if _, ok := value.([]any); !ok {
		return fmt.Sprintf("%s must be an array when provided", name)
	}
	return ""
}

func OptionalBool(value any, name string) string {
	if value == nil {
		return ""
	}
	if _, ok := value.(bool); !ok {
		return fmt.Sprintf("%s must be a boolean when provided", name)
	}
	return ""
}

// NoParams accepts only an empty parameter list.
func NoParams() Validator {
	return Params()
}

// Params builds a positional validator. Optional parameters must follow the
// required ones.
func Params(fields ...Param) Validator {
	required := 0
	for _, f := range fields {
		if !f.Optional {
			required++
		}
	}
	return func(params []any) []string {
		var errs []string
		if msg := arity(len(params), required, len(fields)); msg != "" {
			errs = append(errs, msg)
		}
		for i, f := range fields {
			if i >= len(params) {
				if !f.Optional {
					errs = append(errs, fmt.Sprintf("%s is required", f.Name))
				}
				continue
			}
			if f.Optional && params[i] == nil {
				continue
			}
			if f.Check == nil {
				continue
			}
			if msg := f.Check(params[i], f.Name); msg != "" {
				errs = append(errs, msg)
			}
		}
		if len(errs) == 0 {
			return nil
		}
		return errs
	}
}

// Compose runs validators in order and concatenates their messages.
func Compose(validators ...Validator) Validator {
	return func(params []any) []string {
		var errs []string
		for _, v := range validators {
			errs = append(errs, v(params)...)
		}
		if len(errs) == 0 {
			return nil
		}
		return errs
	}
}

// Field checks a named key of an object parameter at index.
func Field(index int, key string, check Check, optional bool) Validator {
	return func(params []any) []string {
		if index >= len(params) {
			return nil
		}
		obj, ok := params[index].(map[string]any)
		if !ok {
			return nil
		}
		v, present := obj[key]
		if !present || v == nil {
			if optional {
				return nil
			}
			return []string{fmt.Sprintf("%s is required", key)}
		}
		if msg := check(v, key); msg != "" {
			return []string{msg}
		}
		return nil
	}
}

func arity(got, min, max int) string {
	if got >= min && got <= max {
		return ""
	}
	if min == max {
		return fmt.Sprintf("expected %d parameter(s), received %d", min, got)
	}
	return fmt.Sprintf("expected %d to %d parameters, received %d", min, max, got)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// NormalizeParams converts Go values into the JSON shapes a remote caller
// would send, so in-process and remote invocations validate identically.
func NormalizeParams(params ...any) ([]any, error) {
	if len(params) == 0 {
		return []any{}, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return out, nil
}

// Bind decodes a validated parameter into out.
func Bind(param any, out any) error {
	raw, err := json.Marshal(param)
	if err != nil {
		return fmt.Errorf("encode param: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode param: %w", err)
	}
	return nil
}

// StringAt returns params[i] as a string, or "" when absent.
func StringAt(params []any, i int) string {
	if i >= len(params) {
		return ""
	}
	s, _ := params[i].(string)
	return s
}

// IntAt returns params[i] as an int, or 0 when absent.
func IntAt(params []any, i int) int {
	if i >= len(params) {
		return 0
	}
	f, _ := toFloat(params[i])
	return int(f)
}
