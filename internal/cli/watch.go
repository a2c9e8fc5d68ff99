package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eventpush/internal/engine"
	"github.com/roach88/eventpush/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MetricsAddr string
	Debounce    time.Duration

	// onReady is called once the directory is watched (for testing).
	onReady func(metricsAddr string)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Sync a directory of object documents continuously",
		Long: `Watch a directory of object documents (*.json) and push every change.

Writing a file handles its object as an update, which creates the remote
resource on first sight. Removing a file deletes the remote resource of the
object it last held. Changes are handled one at a time, in order.

Prometheus metrics are served on metrics.addr (or --metrics-addr) at
/metrics. An empty address disables the endpoint.

Example:
  eventpush watch ./outbox
  eventpush watch --metrics-addr 127.0.0.1:9464 ./outbox`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "metrics listen address (overrides metrics.addr)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is read")

	return cmd
}

func runWatch(opts *WatchOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return f.Fail(ExitCommandError, ErrCodeConfig, fmt.Sprintf("%s is not a directory", dir), nil)
	}

	reg := newMetricsRegistry()
	env, err := newSyncEnv(opts.RootOptions, cmd, f, engine.WithMetrics(engine.NewMetrics(reg)))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			env.logger.Error("error closing database", "error", closeErr)
		}
	}()

	addr := env.cfg.Metrics.Addr
	if cmd.Flags().Changed("metrics-addr") {
		addr = opts.MetricsAddr
	}
	var boundAddr string
	if addr != "" {
		ms, err := startMetricsServer(addr, reg, env.logger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
		defer ms.Shutdown()
		boundAddr = ms.Addr()
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			env.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	w := watch.New(dir, env.engine,
		watch.WithLogger(env.logger),
		watch.WithDebounce(opts.Debounce),
		watch.WithResultFunc(func(j watch.Job, res engine.Result) {
			view := viewResult(res)
			if res.Outcome == engine.OutcomeSkipped {
				f.VerboseLog("skipped %s (%s)", j.Path, view.ObjectType)
				return
			}
			_ = f.Success(view, view.String())
		}),
	)

	go func() {
		select {
		case <-w.Ready():
			if opts.onReady != nil {
				opts.onReady(boundAddr)
			}
		case <-ctx.Done():
		}
	}()

	if err := w.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "watch failed", err)
	}

	env.logger.Info("watch stopped")
	return nil
}
