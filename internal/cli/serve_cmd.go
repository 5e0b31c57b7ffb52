package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"etlpipe/internal/app"
	"etlpipe/internal/etl"
	"etlpipe/internal/service"
)

// shutdownTimeout bounds how long a stopping daemon waits for an in-flight run.
const shutdownTimeout = 30 * time.Second

// daemonFlags are shared by schedule and watch.
type daemonFlags struct {
	metricsAddr string
	runNow      bool
}

func (f *daemonFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.BoolVar(&f.runNow, "run-now", false, "Run the pipeline once at startup")
}

func newScheduleCmd(opts *options) *cobra.Command {
	var (
		flags    daemonFlags
		cronExpr string
	)
	cmd := &cobra.Command{
		Use:   "schedule [config]",
		Short: "Run the pipeline on a cron schedule until interrupted",
		Example: `  etlpipe schedule --cron "0 * * * *"
  etlpipe schedule --cron "@every 15m" --metrics-addr :9090 pipeline.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPathFrom(args)
			return serve(cmd.Context(), opts, path, flags, func(ctx context.Context, svc *service.PipelineService, _ *app.App) error {
				if err := svc.Schedule(ctx, cronExpr); err != nil {
					return err
				}
				opts.log.Info("cli/schedule: next run", "at", svc.NextRun())
				return nil
			}, nil)
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields or @every/@hourly descriptors)")
	_ = cmd.MarkFlagRequired("cron")
	flags.register(cmd.Flags())
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	var flags daemonFlags
	cmd := &cobra.Command{
		Use:   "watch [config]",
		Short: "Run the pipeline whenever the config or a local source file changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPathFrom(args)
			return serve(cmd.Context(), opts, path, flags, func(ctx context.Context, svc *service.PipelineService, a *app.App) error {
				return svc.Watch(ctx, a.WatchPaths()...)
			}, func(svc *service.PipelineService, a *app.App) {
				watchNewSources(svc, a, opts.log)
			})
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// watchNewSources extends the watcher with the local files a reads, so
// sources added by a config edit trigger runs too.
func watchNewSources(svc *service.PipelineService, a *app.App, log *slog.Logger) {
	if err := svc.AddWatchPaths(a.WatchPaths()...); err != nil {
		log.Warn("cli/watch: cannot watch source files", "error", err)
	}
}

// serve runs a long-lived pipeline service until SIGINT/SIGTERM. The config is
// reloaded before every run so edits take effect without a restart; reloaded,
// when set, sees each reloaded App before it runs.
func serve(parent context.Context, opts *options, path string, flags daemonFlags,
	start func(context.Context, *service.PipelineService, *app.App) error,
	reloaded func(*service.PipelineService, *app.App),
) error {
	// Fail fast on a broken config before starting any trigger.
	initial, err := opts.loadApp(path)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flags.metricsAddr != "" {
		if err := serveMetrics(ctx, opts, flags.metricsAddr); err != nil {
			return err
		}
	}

	var svc *service.PipelineService
	run := func(ctx context.Context) (*etl.RunResult, error) {
		a, err := app.Load(path, opts.log)
		if err != nil {
			return nil, err
		}
		if reloaded != nil {
			reloaded(svc, a)
		}
		return a.Run(ctx)
	}
	svc = service.NewPipelineService(path, run, &service.LogEmitter{Log: opts.log}, opts.log)

	if err := start(ctx, svc, initial); err != nil {
		return err
	}
	if flags.runNow {
		go func() {
			if result, err := svc.RunOnce(ctx); err == nil {
				_ = printRunResult(opts, result)
			}
		}()
	}

	<-ctx.Done()
	opts.log.Info("cli: shutting down")
	svc.Stop()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer waitCancel()
	svc.WaitRunning(waitCtx)
	return nil
}

// serveMetrics exposes /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, opts *options, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	opts.log.Info("cli: prometheus metrics server listening", "address", listener.Addr().String())
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.log.Error("cli: metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return nil
}
