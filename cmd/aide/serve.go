package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/nugget/aide/internal/api"
	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/config"
	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/dedup"
	"github.com/nugget/aide/internal/httpkit"
	"github.com/nugget/aide/internal/memory"
	"github.com/nugget/aide/internal/mqtt"
	"github.com/nugget/aide/internal/slack"
)

// shutdownTimeout bounds draining HTTP requests and disconnecting from
// the broker.
const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Slack, HTTP and MQTT ingress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}
}

// lockDataDir takes an exclusive lock on the data directory so two
// servers never share the SQLite files.
func lockDataDir(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	path := filepath.Join(dir, "aide.lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another aide process", dir)
	}
	return fl, nil
}

// runServe is the primary operating mode. It blocks until SIGINT or
// SIGTERM, then drains the HTTP server, disconnects from the broker and
// closes the stores.
func runServe(ctx context.Context, cmd *cobra.Command, opts *globalOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	logger.Info("starting aide", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	lock, err := lockDataDir(cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	pruner, err := memory.NewPruner(a.store, cfg.Store.Retention(), cfg.Store.PruneSchedule, logger)
	if err != nil {
		return err
	}
	pruner.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		pruner.Stop(stopCtx)
	}()

	monitor := connwatch.NewMonitor(ctx, logger)
	defer monitor.Stop()
	for name, probe := range a.probes {
		monitor.Watch(name, probe, connwatch.Schedule{})
	}

	// Slack and MQTT share one set so a key is handled once per process.
	seen := dedup.New(cfg.Dedup.Capacity, logger)

	slackHandler, err := startSlack(ctx, cfg, a, seen, logger)
	if err != nil {
		return err
	}

	var bridge *mqtt.Bridge
	if cfg.MQTT.Configured() {
		bridge, err = startMQTT(ctx, cfg, a, seen, logger)
		if err != nil {
			return err
		}
		monitor.Watch("mqtt", bridge.AwaitConnection, connwatch.Schedule{})
	}

	server := api.NewServer(api.Config{
		Address:          cfg.Listen.Address,
		Port:             cfg.Listen.Port,
		AutocertDomain:   cfg.Listen.AutocertDomain,
		AutocertCacheDir: cfg.Listen.AutocertCacheDir,
		Turns:            a.orch,
		Store:            a.store,
		Usage:            a.usage,
		Health:           monitor,
		Bus:              a.bus,
		Slack:            slackHandler,
		Logger:           logger,
		Timeout:          cfg.Agent.TurnTimeout,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if bridge != nil {
			if err := bridge.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("aide stopped")
	return nil
}

// startSlack wires Slack ingress. In Socket Mode it starts the socket
// loop and returns no handler; otherwise it returns the Events API
// webhook for the HTTP server to mount.
func startSlack(ctx context.Context, cfg *config.Config, a *app, seen *dedup.Set, logger *slog.Logger) (http.Handler, error) {
	if !cfg.Slack.Configured() {
		return nil, nil
	}
	client := slack.NewClient(slack.ClientConfig{
		BotToken:   cfg.Slack.BotToken,
		AppToken:   cfg.Slack.AppToken,
		APIURL:     cfg.Slack.APIURL,
		HTTPClient: httpkit.NewClient(httpkit.WithLogger(logger)),
		Logger:     logger,
	})
	in := slack.NewIngress(ctx, slack.IngressConfig{
		Turns:      a.orch,
		Notifier:   client,
		Identities: client,
		Dedup:      seen,
		Progress:   cfg.Agent.ProgressEnabled(),
		Logger:     logger,
	})

	if cfg.Slack.SocketMode {
		socket := slack.NewSocket(client, in)
		go func() {
			if err := socket.Run(ctx); err != nil {
				logger.Error("slack socket mode stopped", "error", err)
			}
		}()
		logger.Info("slack socket mode enabled")
		return nil, nil
	}
	if cfg.Slack.SigningSecret == "" {
		logger.Warn("slack signing secret not set; webhook requests are not verified")
	}
	logger.Info("slack events webhook enabled", "path", "/slack/events")
	return slack.NewWebhookHandler(in, cfg.Slack.SigningSecret), nil
}

func startMQTT(ctx context.Context, cfg *config.Config, a *app, seen *dedup.Set, logger *slog.Logger) (*mqtt.Bridge, error) {
	instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	bridge := mqtt.New(mqtt.Config{
		MQTT:       cfg.MQTT,
		InstanceID: instanceID,
		Turns:      a.orch,
		Dedup:      seen,
		Bus:        a.bus,
		Location:   cfg.Location(),
		Logger:     logger,
	})
	go func() {
		if err := bridge.Start(ctx); err != nil {
			logger.Error("mqtt bridge failed", "error", err)
		}
	}()
	return bridge, nil
}
