package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type Provider interface {
	Name() string
	Send(ctx context.Context, title, message string) error
}

// ProviderConfig describes one configured destination.
type ProviderConfig struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Settings map[string]string `yaml:"settings"`
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func GetProvider(cfg ProviderConfig) (Provider, error) {
	name := cfg.Name
	if name == "" {
		name = cfg.Type
	}
	switch cfg.Type {
	case "discord":
		return &DiscordProvider{name: name, URL: cfg.Settings["url"]}, requireSetting(cfg, "url")
	case "slack":
		return &SlackProvider{name: name, URL: cfg.Settings["url"]}, requireSetting(cfg, "url")
	case "webhook":
		return &WebhookProvider{name: name, URL: cfg.Settings["url"]}, requireSetting(cfg, "url")
	case "email":
		port := "25"
		if p, ok := cfg.Settings["port"]; ok {
			port = p
		}
		return &EmailProvider{
			name: name,
			Host: cfg.Settings["host"],
			Port: port,
			User: cfg.Settings["user"],
			Pass: cfg.Settings["pass"],
			To:   cfg.Settings["to"],
			From: cfg.Settings["from"],
		}, requireSetting(cfg, "host", "to", "from")
	default:
		return nil, fmt.Errorf("unknown notification provider type %q", cfg.Type)
	}
}

func requireSetting(cfg ProviderConfig, keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(cfg.Settings[k]) == "" {
			return fmt.Errorf("%s provider %q: %s is required", cfg.Type, cfg.Name, k)
		}
	}
	return nil
}

func postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// --- DISCORD ---
type DiscordProvider struct {
	name string
	URL  string
}

func (d *DiscordProvider) Name() string { return d.name }
func (d *DiscordProvider) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.URL, map[string]string{"content": fmt.Sprintf("**%s**\n%s", title, message)})
}

// --- SLACK ---
type SlackProvider struct {
	name string
	URL  string
}

func (s *SlackProvider) Name() string { return s.name }
func (s *SlackProvider) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, s.URL, map[string]string{"text": fmt.Sprintf("*%s*\n%s", title, message)})
}

// --- GENERIC WEBHOOK ---
type WebhookProvider struct {
	name string
	URL  string
}

func (w *WebhookProvider) Name() string { return w.name }
func (w *WebhookProvider) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, w.URL, map[string]string{
		"title":   title,
		"message": message,
		"status":  "alert",
	})
}

// --- EMAIL ---
type EmailProvider struct {
	name                             string
	Host, Port, User, Pass, To, From string
}

func (e *EmailProvider) Name() string { return e.name }
func (e *EmailProvider) Send(_ context.Context, title, message string) error {
	var auth sasl.Client
	if e.User != "" {
		auth = sasl.NewPlainClient("", e.User, e.Pass)
	}
	msg := "To: " + e.To + "\r\n" +
		"From: " + e.From + "\r\n" +
		"Subject: Uptime Watcher: " + title + "\r\n" +
		"\r\n" +
		message + "\r\n"
	return smtp.SendMail(e.Host+":"+e.Port, auth, e.From, []string{e.To}, strings.NewReader(msg))
}
