package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

const ValidationFailedMessage = "Parameter validation failed"

// Response is the envelope returned by every channel. Success responses never
// carry Error and failure responses never carry Data.
type Response struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

func Success(channel Channel, data any, duration time.Duration, warnings ...string) Response {
	return Response{
		Success:  true,
		Data:     data,
		Metadata: map[string]any{"handler": string(channel), "duration": durationMs(duration)},
		Warnings: warnings,
	}
}

func Failure(channel Channel, err error, duration time.Duration) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{
		Success:  false,
		Error:    msg,
		Metadata: map[string]any{"handler": string(channel), "duration": durationMs(duration)},
	}
}

func ValidationFailure(channel Channel, errs []string) Response {
	return Response{
		Success: false,
		Error:   ValidationFailedMessage,
		Metadata: map[string]any{
			"handler":          string(channel),
			"validationErrors": errs,
		},
	}
}

// Decode unmarshals the Data of a response received over the wire into out.
func (r Response) Decode(out any) error {
	if !r.Success {
		return fmt.Errorf("%s", r.Error)
	}
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode response data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Normalize replaces Data and Metadata with their JSON-decoded forms, as a
// remote caller would see them.
func (r *Response) Normalize() error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	*r = out
	return nil
}

// ValidationErrors returns the validation messages carried in metadata, if any.
func (r Response) ValidationErrors() []string {
	switch v := r.Metadata["validationErrors"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
