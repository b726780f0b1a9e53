// Package sshui serves the terminal dashboard over SSH.
package sshui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"

	"uptime-watcher/internal/tui"
)

type Config struct {
	Addr           string
	HostKeyPath    string
	AuthorizedKeys string
}

// BackendFactory returns the backend a new session talks to.
type BackendFactory func() tui.Backend

type Server struct {
	srv    *ssh.Server
	addr   string
	logger *slog.Logger
}

func New(cfg Config, backend BackendFactory, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ssh")

	s, err := wish.NewServer(
		wish.WithAddress(cfg.Addr),
		wish.WithHostKeyPath(cfg.HostKeyPath),

		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			data, err := os.ReadFile(cfg.AuthorizedKeys)
			if err != nil {
				logger.Warn("authorized keys unreadable", "path", cfg.AuthorizedKeys, "error", err)
				return false
			}
			ok := isKeyAllowed(data, key)
			if !ok {
				logger.Info("public key rejected", "user", ctx.User(), "remote", ctx.RemoteAddr().String())
			}
			return ok
		}),

		wish.WithMiddleware(
			bm.Middleware(func(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
				return tui.New(sess.Context(), backend(), logger), []tea.ProgramOption{tea.WithAltScreen()}
			}),
			activeterm.Middleware(),
			logging.MiddlewareWithLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create ssh server: %w", err)
	}
	return &Server{srv: s, addr: cfg.Addr, logger: logger}, nil
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("ssh dashboard listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func isKeyAllowed(authFileData []byte, incomingKey ssh.PublicKey) bool {
	for len(authFileData) > 0 {
		allowedKey, _, _, rest, err := ssh.ParseAuthorizedKey(authFileData)
		if err != nil {
			return false
		}

		if ssh.KeysEqual(allowedKey, incomingKey) {
			return true
		}

		authFileData = rest
	}
	return false
}
