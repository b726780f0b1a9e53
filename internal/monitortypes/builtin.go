package monitortypes

import (
	"fmt"
	"strings"

	"uptime-watcher/internal/models"
)

func intPtr(v int) *int { return &v }

const httpSchema = `{
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string", "minLength": 1, "pattern": "^https?://[^\\s]+$"},
		"checkIntervalMs": {"type": "integer", "minimum": 5000},
		"timeoutMs": {"type": "integer", "minimum": 1000, "maximum": 300000},
		"retryAttempts": {"type": "integer", "minimum": 0, "maximum": 10}
	}
}`

const portSchema = `{
	"type": "object",
	"required": ["host", "port"],
	"properties": {
		"host": {"type": "string", "minLength": 1, "pattern": "^[^\\s/]+$"},
		"port": {"type": "integer", "minimum": 1, "maximum": 65535},
		"checkIntervalMs": {"type": "integer", "minimum": 5000},
		"timeoutMs": {"type": "integer", "minimum": 1000, "maximum": 300000},
		"retryAttempts": {"type": "integer", "minimum": 0, "maximum": 10}
	}
}`

func builtins() []Definition {
	return []Definition{
		{
			Config: Config{
				Type:        "http",
				DisplayName: "HTTP (Website/API)",
				Description: "Checks that a URL answers with a non-error status code.",
				Version:     "1.0.0",
				Fields: []Field{
					{Name: "url", Label: "Website URL", Type: "url", Required: true, Placeholder: "https://example.com"},
				},
			},
			Schema: httpSchema,
			Detail: func(d string) string {
				if d == "" {
					return ""
				}
				return "Response Code: " + d
			},
			TitleSuffix: func(m models.Monitor) string {
				if m.URL == "" {
					return ""
				}
				return " (" + m.URL + ")"
			},
			Warnings: func(data map[string]any) []string {
				var out []string
				if u, _ := data["url"].(string); strings.HasPrefix(u, "http://") {
					out = append(out, "URL uses plain HTTP; consider HTTPS")
				}
				return append(out, timingWarnings(data)...)
			},
		},
		{
			Config: Config{
				Type:        "port",
				DisplayName: "Port (Host/Port)",
				Description: "Checks that a TCP port accepts connections.",
				Version:     "1.0.0",
				Fields: []Field{
					{Name: "host", Label: "Host", Type: "text", Required: true, Placeholder: "example.com"},
					{Name: "port", Label: "Port", Type: "number", Required: true, Placeholder: "443", Min: intPtr(1), Max: intPtr(65535)},
				},
			},
			Schema: portSchema,
			Detail: func(d string) string {
				if d == "" {
					return ""
				}
				return "Port: " + d
			},
			TitleSuffix: func(m models.Monitor) string {
				if m.Host == "" {
					return ""
				}
				return fmt.Sprintf(" (%s:%d)", m.Host, m.Port)
			},
			Warnings: timingWarnings,
		},
	}
}

func timingWarnings(data map[string]any) []string {
	interval, okI := data["checkIntervalMs"].(float64)
	timeout, okT := data["timeoutMs"].(float64)
	if okI && okT && interval > 0 && timeout >= interval {
		return []string{"timeout is not shorter than the check interval"}
	}
	return nil
}
