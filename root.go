package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/webapp-security/sso-client-go/internal/authapi"
	"github.com/webapp-security/sso-client-go/internal/authlog"
	"github.com/webapp-security/sso-client-go/internal/config"
	"github.com/webapp-security/sso-client-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAuthURL    string
	flagAPIURL     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sso",
		Short:   "SSO session client",
		Long:    "Client for the webapp SSO service: sign in once, call APIs without ever seeing a credential expire.",
		Version: version,
		// Silence Cobra's default error/usage printing; errors are reported once from main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAuthURL, "auth-url", "", "authentication endpoint base URL")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "business API base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCallCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{
		ConfigPath:  flagConfigPath,
		AuthBaseURL: flagAuthURL,
		APIBaseURL:  flagAPIURL,
	}

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app is the assembled session machinery shared by the subcommands.
type app struct {
	cfg     *config.Resolved
	logger  *slog.Logger
	store   *session.Store
	manager *session.Manager
	history *authlog.Log
}

// buildApp wires store, auth client, coordinator, gate, history sink, and
// facade from the resolved configuration.
func buildApp() (*app, error) {
	logger := buildLogger()
	cfg := resolvedCfg

	store, err := session.OpenStore(session.StoreConfig{
		Path:       cfg.CredentialsPath,
		SkewBuffer: cfg.SkewBuffer,
		DefaultTTL: cfg.DefaultTTL,
		RenewAhead: cfg.RenewAhead,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	// History is best-effort: a broken database degrades to no history,
	// never to a broken session.
	var sink session.EventSink

	history, err := authlog.Open(cfg.HistoryDBPath, logger)
	if err != nil {
		logger.Warn("session history unavailable", slog.String("error", err.Error()))
	} else {
		sink = history
	}

	auth := authapi.NewClient(cfg.AuthBaseURL, cfg.ClientID,
		&http.Client{Timeout: cfg.RequestTimeout}, logger)

	coord := session.NewCoordinator(session.CoordinatorConfig{
		Store:          store,
		Auth:           auth,
		CoalesceWindow: cfg.CoalesceWindow,
		Sink:           sink,
		Logger:         logger,
	})

	gate := session.NewGate(session.GateConfig{
		Base:        http.DefaultTransport,
		Store:       store,
		Coordinator: coord,
		Navigator: session.NavigatorFunc(func() {
			fmt.Fprintln(os.Stderr, "Session expired. Run 'sso login' to sign in again.")
		}),
		Logger: logger,
	})

	manager := session.NewManager(session.ManagerConfig{
		Store:       store,
		Auth:        auth,
		Coordinator: coord,
		Gate:        gate,
		Sink:        sink,
		Logger:      logger,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		manager: manager,
		history: history,
	}, nil
}

// Close releases resources held by the app.
func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("closing session history", slog.String("error", err.Error()))
		}
	}
}
