package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/notifications"
	"github.com/robfig/cron/v3"
)

// Runner executes one dispatch batch. *notifications.Service implements it.
type Runner interface {
	RunScheduled(ctx context.Context) (*notifications.Report, error)
}

// DispatchWorker triggers the dispatcher on a cron schedule inside the server
// process. A tick that fires while the previous batch is still running is skipped.
type DispatchWorker struct {
	runner   Runner
	schedule string
	logger   *logger.Logger
}

// NewDispatchWorker validates schedule (standard 5-field cron or a descriptor
// such as "@every 15m").
func NewDispatchWorker(runner Runner, schedule string, logger *logger.Logger) (*DispatchWorker, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid dispatch schedule %q: %w", schedule, err)
	}
	return &DispatchWorker{
		runner:   runner,
		schedule: schedule,
		logger:   logger.WithComponent("scheduler"),
	}, nil
}

// Run blocks until ctx is cancelled, then waits for a running batch to finish.
func (w *DispatchWorker) Run(ctx context.Context) {
	w.logger.Info("starting dispatch scheduler", slog.String("schedule", w.schedule))

	cl := cronLogger{w.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	if _, err := c.AddFunc(w.schedule, func() { w.tick(ctx) }); err != nil {
		w.logger.Error("failed to schedule dispatch", slog.String("error", err.Error()))
		return
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("dispatch scheduler stopped")
}

func (w *DispatchWorker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := w.runner.RunScheduled(ctx)
	if err != nil {
		w.logger.Error("scheduled dispatch failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("scheduled dispatch finished",
		slog.String("dispatch_id", report.DispatchID),
		slog.Int("sends", len(report.Attempts)),
		slog.Int("delivered", report.Delivered))
}

// cronLogger adapts the slog wrapper to cron.Logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
