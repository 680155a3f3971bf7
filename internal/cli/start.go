package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/raihan/sela/internal/config"
	"github.com/raihan/sela/internal/daemon"
	"github.com/raihan/sela/internal/directive"
	"github.com/raihan/sela/internal/logger"
	"github.com/raihan/sela/internal/model"
	"github.com/raihan/sela/internal/observability"
	"github.com/raihan/sela/internal/run"
	"github.com/raihan/sela/internal/session"
	"github.com/raihan/sela/internal/tracing"
	"github.com/raihan/sela/pkg/agent"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Sela daemon",
	Long: `Start the Sela daemon in the foreground.
Inbound events are read as JSON lines on stdin; replies are written as
JSON lines on stdout. Transport adapters connect over this pipe.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    false,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	zl := lg.GetZerolog()

	if err := tracing.InitOpenTelemetry("sela"); err != nil {
		zl.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}()

	store, closeStore, err := openSessionStore(cfg, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	auth := model.NewAuthStore(cfg.Auth.Profiles)
	catalog := model.NewCatalog(cfg.Models.Custom)

	handles := make(map[string]*run.AgentHandle, len(cfg.Agents))
	directiveAgents := make(map[string]*directive.Agent, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		defaultRef := ac.Model
		if defaultRef == "" {
			defaultRef = cfg.Models.Default
		}
		resolver, err := model.NewResolver(catalog, auth, defaultRef, cfg.Models.Aliases, ac.Allowlist)
		if err != nil {
			return fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		invoker, err := agent.NewSubprocessInvoker(agent.SubprocessConfig{
			Command: ac.Command,
			Kind:    ac.Kind,
			Timeout: 10 * time.Minute,
		}, zl)
		if err != nil {
			return fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		handles[ac.ID] = &run.AgentHandle{Config: ac, Resolver: resolver, Invoker: invoker}
		directiveAgents[ac.ID] = &directive.Agent{Config: ac, Resolver: resolver}
	}

	coordinator, err := run.NewCoordinator(run.Config{
		Store:          store,
		Auth:           auth,
		Agents:         handles,
		GlobalElevated: cfg.Elevated.Allowlist,
		Logger:         zl,
	})
	if err != nil {
		return err
	}

	directives := directive.New(store, directiveAgents, coordinator, cfg.Queue, zl)

	out := json.NewEncoder(os.Stdout)
	sink := func(ctx context.Context, reply daemon.Reply) {
		if err := out.Encode(reply); err != nil {
			zl.Error().Err(err).Msg("failed to write reply")
		}
	}

	d, err := daemon.New(daemon.Options{
		Config:      cfg,
		Store:       store,
		Coordinator: coordinator,
		Directives:  directives,
		Sink:        sink,
		Logger:      zl,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	// Credentials can rotate without a restart
	watcher, err := config.NewWatcher(loader, zl, func(next *config.Config) {
		auth.Replace(next.Auth.Profiles)
		zl.Info().Msg("configuration reloaded")
	})
	if err != nil {
		zl.Warn().Err(err).Msg("config watcher disabled")
	} else {
		defer watcher.Stop()
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		observability.EnsureRegistered()
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(ctx)
		}()
	}

	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, _ := loader.Path()
	zl.Info().
		Int("agents", len(handles)).
		Str("config", configPath).
		Msg("daemon started")

	go readEvents(ctx, d, zl)

	<-ctx.Done()
	zl.Info().Msg("shutting down")
	return nil
}

// readEvents feeds stdin JSON lines into the daemon until EOF or shutdown
func readEvents(ctx context.Context, d *daemon.Daemon, zl zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev daemon.InboundEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			zl.Warn().Err(err).Msg("malformed inbound event")
			continue
		}
		if err := d.HandleInbound(ctx, ev); err != nil {
			zl.Error().Err(err).Str("session_key", ev.SessionKey).Msg("inbound event rejected")
		}
	}
}

// openSessionStore opens the SQLite-backed store under the data directory,
// falling back to one JSON file per session when SQLite cannot open.
func openSessionStore(cfg *config.Config, zl zerolog.Logger) (session.Store, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var persister session.Persister
	sqlStore, err := session.NewSQLiteStore(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		zl.Warn().Err(err).Msg("sqlite store unavailable, using file store")
		fileStore, ferr := session.NewFileStore(filepath.Join(cfg.DataDir, "sessions"))
		if ferr != nil {
			return nil, nil, ferr
		}
		persister = fileStore
	} else {
		persister = sqlStore
	}

	manager := session.NewManager(persister)
	return manager, func() { _ = manager.Close() }, nil
}

func writePIDFile(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/sela.pid"
	}
	return filepath.Join(home, ".sela", "sela.pid")
}

func isRunning(pidFile string) bool {
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	_, err = fmt.Sscanf(string(data), "%d", &pid)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
