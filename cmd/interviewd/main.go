// Command interviewd runs the interview provisioning worker: it connects to
// Temporal, registers the provisioning workflow and activities, and serves
// the task queue until interrupted.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/mockmate/mockmate/internal/configuration"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/runstore"
	"github.com/mockmate/mockmate/internal/storage"
	"github.com/mockmate/mockmate/internal/worker"
	"github.com/mockmate/mockmate/pkg/events"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := configuration.DefaultConfig()

	root := &cobra.Command{
		Use:           "interviewd",
		Short:         "Interview provisioning and grading worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfg.TemporalHostPort, "temporal-host",
		cfg.TemporalHostPort, "Temporal frontend host:port")
	root.PersistentFlags().StringVar(&cfg.TaskQueue, "task-queue",
		cfg.TaskQueue, "Temporal task queue to serve")
	root.PersistentFlags().StringVar(&cfg.DatabasePath, "db",
		cfg.DatabasePath, "SQLite database path (\":memory:\" for ephemeral)")

	root.AddCommand(newWorkerCmd(cfg))
	return root
}

func newWorkerCmd(cfg *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the provisioning worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cfg)
		},
	}
}

func runWorker(cfg *configuration.Config) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	log := slog.Default().With("component", "interviewd")

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	collaborators, err := oracle.NewOpenAIClient(oracle.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		return fmt.Errorf("configure collaborators: %w", err)
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer c.Close()

	w := sdkworker.New(c, cfg.TaskQueue, sdkworker.Options{})
	worker.RegisterAll(w, worker.Deps{
		Ledger:    db,
		Accounts:  db,
		Generator: collaborators,
		Narrator:  collaborators,
		Audit:     db,
		Runs:      runstore.New(),
		EventSink: events.NewNoOpEventSink(),
	})

	log.Info("worker starting",
		"task_queue", cfg.TaskQueue,
		"temporal", cfg.TemporalHostPort,
		"db", cfg.DatabasePath)
	return w.Run(sdkworker.InterruptCh())
}
