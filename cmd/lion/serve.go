package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/lion-dev/lion/internal/capstore"
	"github.com/lion-dev/lion/internal/check"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/policy"
	"github.com/lion-dev/lion/internal/eventlog"
	"github.com/lion-dev/lion/internal/lifecycle"
	"github.com/lion-dev/lion/internal/orchestrator"
	"github.com/lion-dev/lion/internal/sandbox"
	"github.com/lion-dev/lion/internal/saga"
	"github.com/lion-dev/lion/internal/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

// newServeCmd wires the capability checker, plugin registry, event
// orchestrator, and the workflow and saga engines together and runs them
// until interrupted. It takes no manifest: loading plugins and defining
// workflows is left to whatever embeds this package, since manifest
// parsing is out of scope here.
func newServeCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin runtime's core engines until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if workers <= 0 {
				workers = viper.GetInt("workers")
			}
			return runServe(cmd.Context(), workers)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size for the workflow and saga engines (default from config)")
	return cmd
}

func runServe(ctx context.Context, workers int) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	rules := policy.NewStore()
	resolver := policy.NewResolver(rules, nil)
	caps := capstore.NewStore()
	checker := check.NewEngine(resolver, caps, logger)

	registry := lifecycle.NewRegistry(caps, sandbox.NewWazeroFactory())

	log := eventlog.NewLog()
	events := orchestrator.New(log, orchestrator.Config{
		Invoke: func(ctx context.Context, plugin domain.PluginID, input any) (any, error) {
			return registry.Invoke(ctx, plugin, "handle", input)
		},
		Logger: logger,
	})

	wfEngine := workflow.New(checker, registry, workflow.Config{Workers: workers, Logger: logger})
	sagaEngine := saga.New(checker, registry, saga.Config{Workers: workers, Logger: logger})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { events.Run(gctx); return nil })
	group.Go(func() error { return wfEngine.Run(gctx) })
	group.Go(func() error { return sagaEngine.Run(gctx) })

	logger.Info("lion runtime started", "workers", workers)
	err := group.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("runtime exited: %w", err)
	}
	logger.Info("lion runtime stopped")
	return nil
}
