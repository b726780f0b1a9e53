package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"uptime-watcher/internal/models"
)

// Checker probes a single monitor once. Implementations must honor ctx.
type Checker interface {
	Check(ctx context.Context, m models.Monitor) models.MonitorCheckResult
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, m models.Monitor) models.MonitorCheckResult

func (f CheckerFunc) Check(ctx context.Context, m models.Monitor) models.MonitorCheckResult {
	return f(ctx, m)
}

// NetChecker is the default Checker for the built-in http and port types.
type NetChecker struct {
	client *http.Client
	dialer net.Dialer
}

func NewNetChecker(insecureTLS bool) *NetChecker {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &NetChecker{client: &http.Client{Transport: transport}}
}

func (c *NetChecker) Check(ctx context.Context, m models.Monitor) models.MonitorCheckResult {
	switch m.Type {
	case "http":
		return c.checkHTTP(ctx, m)
	case "port":
		return c.checkPort(ctx, m)
	default:
		return models.MonitorCheckResult{Status: models.StatusDown, ResponseTime: -1, Error: "unsupported monitor type " + m.Type}
	}
}

func (c *NetChecker) checkHTTP(ctx context.Context, m models.Monitor) models.MonitorCheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return models.MonitorCheckResult{Status: models.StatusDown, ResponseTime: -1, Error: err.Error()}
	}
	req.Header.Set("User-Agent", "uptime-watcher")
	resp, err := c.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.MonitorCheckResult{Status: models.StatusDown, ResponseTime: latency, Error: err.Error()}
	}
	defer resp.Body.Close()

	res := models.MonitorCheckResult{Status: models.StatusUp, ResponseTime: latency, Details: strconv.Itoa(resp.StatusCode)}
	if resp.StatusCode >= 400 {
		res.Status = models.StatusDown
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return res
}

func (c *NetChecker) checkPort(ctx context.Context, m models.Monitor) models.MonitorCheckResult {
	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.Host, strconv.Itoa(m.Port)))
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.MonitorCheckResult{Status: models.StatusDown, ResponseTime: latency, Details: strconv.Itoa(m.Port), Error: err.Error()}
	}
	_ = conn.Close()
	return models.MonitorCheckResult{Status: models.StatusUp, ResponseTime: latency, Details: strconv.Itoa(m.Port)}
}
