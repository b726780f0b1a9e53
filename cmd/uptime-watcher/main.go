package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"uptime-watcher/internal/app"
	"uptime-watcher/internal/config"
	"uptime-watcher/internal/tui"
)

var (
	cfgFile   string
	headless  bool
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "uptime-watcher",
	Short:         "Uptime Watcher - site and service monitor",
	Long:          `Uptime Watcher checks websites and TCP ports on a schedule, keeps their history and serves a dashboard.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitoring daemon",
	Long: `Start the daemon with its IPC listener. When stdout is a terminal the
dashboard runs in-process; otherwise the daemon runs headless.`,
	RunE: runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("uptime-watcher version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "uptime-watcher.yaml", "config file path")
	serveCmd.Flags().BoolVar(&headless, "headless", false, "never start the in-process dashboard")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
	addClientCommands(rootCmd)
}

func interactive() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if headless || !interactive() {
		application, err := app.New(cfg, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		return application.Run(ctx)
	}

	// The dashboard owns the terminal, so logs only go to a configured file.
	application, err := app.New(cfg, io.Discard)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Shutdown(context.Background())
		return err
	}
	defer application.Shutdown(context.Background())

	p := tea.NewProgram(tui.New(ctx, application.Local(), application.Logger()), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		select {
		case err := <-application.Errors():
			application.Logger().Error("server error", "error", err)
			p.Quit()
		case <-ctx.Done():
		}
	}()
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Database: %s\n", cfg.Database.Driver)
	fmt.Printf("  IPC: %s\n", cfg.IPC.ListenAddr)
	if cfg.SSH.Enabled {
		fmt.Printf("  SSH: %s\n", cfg.SSH.ListenAddr)
	}
	fmt.Printf("  Notification providers: %d\n", len(cfg.Notifications.Providers))

	return nil
}
