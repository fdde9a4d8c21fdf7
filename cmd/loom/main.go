package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/flowloom/loom/internal/auth"
	"github.com/flowloom/loom/internal/config"
	"github.com/flowloom/loom/internal/server"
	"github.com/flowloom/loom/internal/service/workflow"
	"github.com/flowloom/loom/internal/store"

	// Blank import triggers init() registration of all built-in node types.
	_ "github.com/flowloom/loom/internal/service/workflow/nodes"
)

var (
	name    = "loom"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// ///////////////////////////////////////////////////////////////////

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.New(ctx, cfg.Store, cfg.Crypto.Key)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}
	defer st.Close()

	authSvc := auth.New(st, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryMinutes)*time.Minute)

	engine := workflow.NewEngine()
	scheduler := workflow.NewScheduler(engine, slog.Default())

	if err := registerExistingWorkflows(ctx, st, scheduler); err != nil {
		return fmt.Errorf("failed to register existing workflows: %w", err)
	}

	scheduler.Start(ctx)
	defer scheduler.Shutdown()

	srv, err := server.New(cfg.Server, st, authSvc, engine, scheduler)
	if err != nil {
		return fmt.Errorf("failed to build http server: %w", err)
	}

	slog.Info("starting http server", "host", cfg.Server.Host, "port", cfg.Server.Port)

	return srv.Start(ctx)
}

// registerExistingWorkflows loads every stored workflow at startup and
// installs its schedule triggers with the scheduler. A workflow that no
// longer passes graph validation (e.g. an edited-in-place bad cron
// expression) is logged and skipped rather than aborting startup.
func registerExistingWorkflows(ctx context.Context, st store.Storer, scheduler *workflow.Scheduler) error {
	workflows, err := st.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}

	for i := range workflows {
		wf := workflows[i]
		if err := scheduler.RegisterWorkflow(&wf); err != nil {
			slog.Error("skipping workflow with invalid schedule triggers", "workflow_id", wf.ID, "workflow_name", wf.Name, "error", err)
			continue
		}
	}

	return nil
}
