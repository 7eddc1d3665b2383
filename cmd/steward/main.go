package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wpsteward/steward/pkg/api"
	"github.com/wpsteward/steward/pkg/config"
	"github.com/wpsteward/steward/pkg/events"
	"github.com/wpsteward/steward/pkg/handlers"
	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/metrics"
	"github.com/wpsteward/steward/pkg/probe"
	"github.com/wpsteward/steward/pkg/queue"
	"github.com/wpsteward/steward/pkg/registry"
	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/reporter"
	"github.com/wpsteward/steward/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward - remote WordPress site management",
	Long: `Steward is a control plane for managing remote WordPress sites
over SSH: backups with rollback, plugin and core updates, provisioning,
health and certificate probes, delivered as a single binary.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Steward version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(checkCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the steward control plane",
	Long: `Run the HTTP API, the durable task queue and the worker pool in
one process. Configuration comes from the environment; see the config
package for the recognised variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.LogJSON,
		})
		metrics.SetVersion(Version)

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer store.Close()
		metrics.RegisterComponent("store", true, "")

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		collector := metrics.NewCollector(store)
		collector.Start()
		defer collector.Stop()

		reg := handlers.NewRegistry(handlers.Deps{
			Checker:             &probe.Checker{},
			Health:              &probe.Healthchecker{},
			HTTPTimeout:         cfg.HTTPStatusTimeout,
			PluginUpdateTimeout: cfg.PluginUpdateTimeout,
			SettleInterval:      cfg.SettleInterval,
		})

		var sender reporter.Sender
		if cfg.SMTP.Host != "" {
			sender = reporter.NewSMTPMailer(cfg.SMTP)
		}

		q := queue.New(queue.Config{
			Store:    store,
			Handlers: reg,
			Broker:   broker,
			Sender:   sender,
			Workers:  cfg.Workers,
			SSHOpts:  remote.ConnectOptions{ConnectTimeout: cfg.SSHConnectTimeout},
			Retain:   cfg.TaskRetention,
		})
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.ExternalQueueConfigured() {
			log.WithComponent("queue").Warn().Msg("BROKER_URL/RESULT_BACKEND set; tasks run on the embedded queue and these endpoints are ignored")
		}

		q.Start(ctx)
		defer q.Stop()
		metrics.RegisterComponent("queue", true, "")

		sessions := registry.New()
		if cfg.SitesFile != "" {
			n, err := sessions.LoadInventory(cfg.SitesFile)
			if err != nil {
				return fmt.Errorf("loading site inventory: %w", err)
			}
			log.WithComponent("registry").Info().Int("sites", n).Str("file", cfg.SitesFile).Msg("site inventory loaded")
		}

		server := api.NewServer(cfg, q, sessions, broker)
		errCh := make(chan error, 1)
		go func() {
			metrics.RegisterComponent("api", true, "")
			errCh <- server.Start()
		}()

		logEvents(broker)

		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

// logEvents mirrors the task lifecycle into the log stream.
func logEvents(broker *events.Broker) {
	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			log.WithComponent("events").Info().
				Str("type", string(event.Type)).
				Str("id", event.ID).
				Str("host", event.Metadata["host"]).
				Msg(event.Message)
		}
	}()
}
