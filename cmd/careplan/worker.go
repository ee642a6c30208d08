package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/care-records/internal/async"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/pipeline"
	"github.com/joseph-ayodele/care-records/internal/repository"
	"github.com/joseph-ayodele/care-records/internal/server"
)

func workerCmd(cfg *common.Config, rf *rootFlags) *cobra.Command {
	var (
		grpcAddr string
		inboxDir string
		owner    ownerFlags
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the document queue worker, stale-document sweeps and the health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if grpcAddr != "" {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if inboxDir != "" {
				cfg.Inbox.Dir = inboxDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := openApp(ctx, cfg, rf.migrate)
			if err != nil {
				return err
			}
			defer a.Close()
			return runWorker(ctx, a, owner)
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "health endpoint address (overrides GRPC_ADDR)")
	cmd.Flags().StringVar(&inboxDir, "inbox", "", "also watch this directory for new documents (overrides INBOX_DIR)")
	cmd.Flags().StringVar(&owner.family, "family", "", "family id for inbox documents")
	cmd.Flags().StringVar(&owner.patient, "patient", "", "patient id for inbox documents")
	return cmd
}

func runWorker(ctx context.Context, a *app, owner ownerFlags) error {
	cfg := a.cfg
	broker, err := a.queue(ctx)
	if err != nil {
		return err
	}
	proc, err := a.processor()
	if err != nil {
		return err
	}

	documents := async.NewPool(broker, pipeline.QueueDocuments, proc.Handle, a.logger,
		async.WithWorkers(cfg.Worker.Concurrency),
		async.WithRate(cfg.Worker.RatePerSec),
		async.WithMaxAttempts(cfg.Worker.MaxAttempts),
		async.WithBackoff(cfg.Worker.Backoff, time.Minute),
		async.WithProcessTimeout(cfg.Worker.ProcessTimeout),
		async.WithFailureHook(proc.OnExhausted),
	)

	sweeper := pipeline.NewSweeper(a.docs, cfg.Maintenance.StaleAfter, a.logger)
	maintenance := async.NewPool(broker, pipeline.QueueMaintenance, pipeline.SweepHandler(sweeper, a.logger), a.logger,
		async.WithWorkers(1),
		async.WithMaxAttempts(1),
	)
	scheduler := async.NewScheduler(broker, 30*time.Second, a.logger)
	if err := scheduler.Register(ctx, async.Recurring{
		Key:   pipeline.SweepKey,
		Queue: pipeline.QueueMaintenance,
		Kind:  pipeline.KindSweep,
		Every: cfg.Maintenance.SweepInterval,
	}); err != nil {
		return err
	}

	health := server.NewHealthServer(func(ctx context.Context) error {
		return repository.HealthCheck(ctx, a.drv, 0, a.logger)
	}, 15*time.Second, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return documents.Run(ctx) })
	g.Go(func() error { return maintenance.Run(ctx) })
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return health.Serve(ctx, cfg.Server.GRPCAddr) })
	if cfg.Inbox.Dir != "" {
		in, err := a.inbox(ctx, owner)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(in.Watch(ctx, cfg.Inbox.Dir, cfg.Inbox.Debounce)) })
	}

	a.logger.Info("worker.started",
		"concurrency", cfg.Worker.Concurrency,
		"rate_per_sec", cfg.Worker.RatePerSec,
		"max_attempts", cfg.Worker.MaxAttempts,
		"grpc_addr", cfg.Server.GRPCAddr,
	)
	err = g.Wait()
	a.logger.Info("worker.stopped", "error", err)
	return ignoreCanceled(err)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
