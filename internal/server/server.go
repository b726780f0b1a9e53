// Package server carries IPC between the daemon and its renderers: channel
// invocations over HTTP and the state event stream over a websocket.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/models"
	"uptime-watcher/internal/statesync"
)

// SecretHeader carries the shared secret when one is configured.
const SecretHeader = "X-Watcher-Secret"

const (
	maxBodyBytes     = 8 << 20
	eventWriteWait   = 5 * time.Second
	eventPingPeriod  = 30 * time.Second
	eventPongWait    = 70 * time.Second
	defaultEventBuff = 256
)

type ServerConfig struct {
	Addr         string
	Secret       string
	EnableStatus bool
	Title        string
	EventBuffer  int
}

type Deps struct {
	Registry *ipc.Registry
	Sync     *statesync.Service
	Sites    statesync.SiteSource
	Metrics  http.Handler
	Logger   *slog.Logger
}

type Server struct {
	cfg      ServerConfig
	deps     Deps
	logger   *slog.Logger
	router   chi.Router
	http     *http.Server
	upgrader websocket.Upgrader
}

func New(cfg ServerConfig, deps Deps) *Server {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuff
	}
	if cfg.Title == "" {
		cfg.Title = "Uptime Watcher"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "ipc-server"),
		router: chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}
	s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}
	if s.cfg.EnableStatus && s.deps.Sites != nil {
		r.Get("/status", s.handleStatusPage)
		r.Get("/status/json", s.handleStatusJSON)
	}

	r.Route("/ipc", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/channels", s.handleChannels)
		r.Get("/events", s.handleEvents)
		r.Post("/{channel}", s.handleInvoke)
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	s.logger.Info("ipc server listening", "addr", s.cfg.Addr, "status_page", s.cfg.EnableStatus)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Secret != "" && !secretMatches(r.Header.Get(SecretHeader), s.cfg.Secret) {
			s.logger.Warn("unauthorized ipc request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secretMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Sync != nil {
		body["revision"] = s.deps.Sync.Revision()
		body["subscribers"] = s.deps.Sync.Subscribers()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ipc.Catalogue)
}

// handleInvoke answers with the envelope for every call it can parse; the
// HTTP status only reflects transport problems.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	channel := ipc.Channel(chi.URLParam(r, "channel"))
	params, err := readParams(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ipc.Failure(channel, err, 0))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Registry.Invoke(r.Context(), channel, params))
}

func readParams(w http.ResponseWriter, r *http.Request) ([]any, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []any{}, nil
	}
	var params []any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.New("request body must be a JSON array of parameters")
	}
	return params, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.serveEvents(conn)
}

func (s *Server) serveEvents(conn *websocket.Conn) {
	defer conn.Close()
	id, frames, cancel, rev := s.deps.Sync.Subscribe(s.cfg.EventBuffer)
	defer cancel()
	s.logger.Info("renderer attached", "subscriber", id, "revision", rev)
	defer s.logger.Info("renderer detached", "subscriber", id)

	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(eventWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, strings.TrimSpace(r.Host))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- status page ---

type statusRow struct {
	Name      string
	Detail    string
	Status    string
	LastCheck time.Time
}

func (s *Server) statusRows(ctx context.Context) ([]statusRow, error) {
	sites, err := s.deps.Sites.Sites(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]statusRow, 0, len(sites))
	for _, site := range sites {
		row := statusRow{Name: site.DisplayName(), Status: SiteStatus(site)}
		for _, m := range site.Monitors {
			if row.Detail != "" {
				row.Detail += ", "
			}
			row.Detail += m.Type
			if m.LastChecked.After(row.LastCheck) {
				row.LastCheck = m.LastChecked
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Status != rows[j].Status {
			if rows[i].Status == models.StatusDown {
				return true
			}
			if rows[j].Status == models.StatusDown {
				return false
			}
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

// SiteStatus folds monitor statuses into one: any down monitor makes the site
// down, then pending, then up. A site with nothing monitored is paused.
func SiteStatus(site models.Site) string {
	status := models.StatusPaused
	for _, m := range site.Monitors {
		if !m.Monitoring {
			continue
		}
		switch {
		case m.Status == models.StatusDown:
			return models.StatusDown
		case m.Status == models.StatusPending || m.Status == "":
			status = models.StatusPending
		case m.Status == models.StatusUp && status != models.StatusPending:
			status = models.StatusUp
		}
	}
	return status
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	sites, err := s.deps.Sites.Sites(r.Context())
	if err != nil {
		http.Error(w, "sites unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>{{.Title}}</title>
	<meta http-equiv="refresh" content="5">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #1a1b26; color: #a9b1d6; padding: 20px; margin: 0; }
		h1 { text-align: center; color: #7aa2f7; margin-bottom: 30px; }
		.container { max-width: 800px; margin: 0 auto; }
		.card { background: #24283b; padding: 20px; margin-bottom: 15px; border-radius: 8px; display: flex; align-items: center; justify-content: space-between; }
		.name { font-size: 1.2em; font-weight: bold; color: #c0caf5; margin-bottom: 5px; }
		.meta { font-size: 0.85em; color: #565f89; }
		.status { font-weight: bold; padding: 6px 12px; border-radius: 6px; min-width: 60px; text-align: center; text-transform: uppercase; color: #1a1b26; }
		.up { background: #9ece6a; }
		.down { background: #f7768e; }
		.pending { background: #e0af68; }
		.paused { background: #565f89; }
	</style>
</head>
<body>
	<div class="container">
		<h1>{{.Title}}</h1>
		{{range .Rows}}
		<div class="card">
			<div>
				<div class="name">{{.Name}}</div>
				<div class="meta">{{.Detail}}</div>
				{{if not .LastCheck.IsZero}}<div class="meta">Last Check: {{.LastCheck.Format "15:04:05"}}</div>{{end}}
			</div>
			<div class="status {{.Status}}">{{.Status}}</div>
		</div>
		{{end}}
	</div>
</body>
</html>`))

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	rows, err := s.statusRows(r.Context())
	if err != nil {
		http.Error(w, "sites unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Title string
		Rows  []statusRow
	}{Title: s.cfg.Title, Rows: rows}
	if err := statusTemplate.Execute(w, data); err != nil {
		s.logger.Warn("status page render failed", "error", err)
	}
}
