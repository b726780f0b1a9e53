package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"uptime-watcher/internal/config"
	"uptime-watcher/internal/handlers"
	"uptime-watcher/internal/ipc"
	"uptime-watcher/internal/logging"
	"uptime-watcher/internal/server"
	"uptime-watcher/internal/statesync"
	"uptime-watcher/internal/tui"
)

var (
	daemonAddr   string
	daemonSecret string
	outFile      string
)

func addClientCommands(root *cobra.Command) {
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the dashboard against a running daemon",
		RunE:  runTUI,
	}
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export sites and settings as JSON",
		RunE:  runExport,
	}
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace all sites and settings from an export file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Download a copy of the SQLite database",
		RunE:  runBackup,
	}
	syncStatusCmd := &cobra.Command{
		Use:   "sync-status",
		Short: "Show the daemon's state sync status",
		RunE:  runSyncStatus,
	}

	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "write to file instead of stdout")
	backupCmd.Flags().StringVarP(&outFile, "out", "o", "", "backup file path (defaults to the daemon's file name)")

	for _, c := range []*cobra.Command{tuiCmd, exportCmd, importCmd, backupCmd, syncStatusCmd} {
		c.Flags().StringVar(&daemonAddr, "addr", "", "daemon address (defaults to ipc.listen_addr)")
		c.Flags().StringVar(&daemonSecret, "secret", "", "shared secret (defaults to ipc.secret)")
		root.AddCommand(c)
	}
}

func newClient() (*server.Client, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	addr, secret := cfg.IPC.ListenAddr, cfg.IPC.Secret
	if daemonAddr != "" {
		addr = daemonAddr
	}
	if daemonSecret != "" {
		secret = daemonSecret
	}
	logger := logging.New(cfg.Logging, os.Stderr)
	c, err := server.NewClient(addr, secret, logger)
	return c, cfg, err
}

func runTUI(cmd *cobra.Command, args []string) error {
	c, cfg, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The dashboard owns the terminal, so logs only go to a configured file.
	var logOut io.Writer = io.Discard
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	model := tui.New(ctx, c, logging.New(cfg.Logging, logOut))
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func callTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

func runExport(cmd *cobra.Command, args []string) error {
	c, _, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := callTimeout()
	defer cancel()

	var data string
	if err := c.Call(ctx, ipc.ExportData, &data); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if outFile == "" {
		fmt.Println(data)
		return nil
	}
	if err := os.WriteFile(outFile, []byte(data), 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Printf("Exported to %s\n", outFile)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	c, _, err := newClient()
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	ctx, cancel := callTimeout()
	defer cancel()

	resp, err := c.Invoke(ctx, ipc.ImportData, string(raw))
	if err != nil {
		return err
	}
	if !resp.Success {
		if errs := resp.ValidationErrors(); len(errs) > 0 {
			return fmt.Errorf("import rejected: %v", errs)
		}
		return fmt.Errorf("import failed: %s", resp.Error)
	}
	for _, w := range resp.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Println("Import complete")
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	c, _, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := callTimeout()
	defer cancel()

	var payload handlers.BackupPayload
	if err := c.Call(ctx, ipc.DownloadSQLiteBackup, &payload); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(payload.Buffer)
	if err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}
	path := outFile
	if path == "" {
		path = payload.FileName
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	fmt.Printf("Backup written to %s (%d bytes, source %s)\n", path, len(data), payload.Metadata.OriginalPath)
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	c, _, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := callTimeout()
	defer cancel()

	var status statesync.Status
	if err := c.Call(ctx, ipc.GetSyncStatus, &status); err != nil {
		return err
	}
	fmt.Printf("Synchronized: %t\n", status.Synchronized)
	fmt.Printf("Sites:        %d\n", status.SiteCount)
	if status.LastSync != nil {
		fmt.Printf("Last sync:    %s\n", status.LastSync.Local().Format(time.RFC3339))
	} else {
		fmt.Println("Last sync:    never")
	}
	return nil
}
