package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	framerunner "github.com/Swind/go-frame-runner"
	"github.com/Swind/go-frame-runner/core"
	"github.com/Swind/go-frame-runner/internal/config"
	promexport "github.com/Swind/go-frame-runner/observability/prometheus"
	"github.com/Swind/go-frame-runner/random"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a TOML config file",
		EnvVars: []string{config.EnvPrefix + "_CONFIG"},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the frame host until interrupted or the frame limit is reached",
		Flags: []cli.Flag{
			configFlag(),
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Frame interval",
			},
			&cli.Uint64Flag{
				Name:    "frames",
				Aliases: []string{"n"},
				Usage:   "Stop after this many frames (0 runs until interrupted)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics on this address",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warning or error",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Global random seed (0 seeds from the clock)",
			},
			&cli.IntFlag{
				Name:  "job-every",
				Value: 10,
				Usage: "Submit a background job every N frames",
			},
		},
		Action: runAction,
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Print the resolved configuration",
		Flags:  []cli.Flag{configFlag()},
		Action: configAction,
	}
}

func configAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	fmt.Fprintf(c.App.Writer, "frame.name = %q\n", cfg.Frame.Name)
	fmt.Fprintf(c.App.Writer, "frame.interval = %s\n", cfg.Frame.Interval)
	fmt.Fprintf(c.App.Writer, "frame.max_frames = %d\n", cfg.Frame.MaxFrames)
	fmt.Fprintf(c.App.Writer, "executor.name = %q\n", cfg.Executor.Name)
	fmt.Fprintf(c.App.Writer, "executor.check_delay = %s\n", cfg.Executor.CheckDelay)
	fmt.Fprintf(c.App.Writer, "executor.history_capacity = %d\n", cfg.Executor.HistoryCapacity)
	fmt.Fprintf(c.App.Writer, "log.level = %q\n", cfg.Log.Level)
	fmt.Fprintf(c.App.Writer, "metrics.addr = %q\n", cfg.Metrics.Addr)
	fmt.Fprintf(c.App.Writer, "metrics.poll_interval = %s\n", cfg.Metrics.PollInterval)
	fmt.Fprintf(c.App.Writer, "random.seed = %d\n", cfg.Random.Seed)
	return nil
}

// applyFlags overrides cfg with any flags set on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("interval") {
		cfg.Frame.Interval = c.Duration("interval")
	}
	if c.IsSet("frames") {
		cfg.Frame.MaxFrames = c.Uint64("frames")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("seed") {
		cfg.Random.Seed = c.Int64("seed")
	}
	return cfg.Validate()
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	if err := applyFlags(c, &cfg); err != nil {
		return cli.Exit(fmt.Sprintf("Invalid settings: %v", err), 1)
	}
	every := c.Int("job-every")
	if every <= 0 {
		return cli.Exit("job-every must be positive", 1)
	}

	logger := core.NewDefaultLogger(c.App.ErrWriter, cfg.LogLevel())

	if cfg.Random.Seed != 0 {
		random.SetGlobalSeed(cfg.Random.Seed)
	}

	reg := prom.NewRegistry()
	exporter, err := promexport.NewMetricsExporter("", reg, promexport.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to register metrics: %v", err), 1)
	}

	host := framerunner.NewFrameHost(&framerunner.HostConfig{
		FrameInterval: cfg.Frame.Interval,
		MaxFrames:     cfg.Frame.MaxFrames,
		Scheduler: &framerunner.SchedulerConfig{
			Name:         cfg.Frame.Name,
			Logger:       logger,
			FaultHandler: core.NewDefaultFaultHandler(logger),
			Metrics:      exporter,
		},
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Start(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to start host: %v", err), 1)
	}
	defer host.Stop()

	var (
		w       *workload
		initErr error
	)
	err = host.RunOnControl(ctx, func(ctx context.Context) {
		w, initErr = newWorkload(framerunner.GetCurrentScheduler(ctx), &core.ExecutorConfig{
			Name:            cfg.Executor.Name,
			CheckDelay:      cfg.Executor.CheckDelay,
			HistoryCapacity: cfg.Executor.HistoryCapacity,
		}, every, logger)
	})
	if err == nil {
		err = initErr
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to start workload: %v", err), 1)
	}

	if cfg.Metrics.Addr != "" {
		poller, err := promexport.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to register stats gauges: %v", err), 1)
		}
		poller.AddScheduler(host.Scheduler().Name(), host.Scheduler())
		poller.AddExecutor(w.executor.Name(), w.executor)
		poller.Start(ctx)
		defer poller.Stop()

		server := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer shutdownServer(server, logger)
	}

	logger.Info().
		Str("scheduler", host.Scheduler().Name()).
		Dur("interval", cfg.Frame.Interval).
		Uint64("max_frames", cfg.Frame.MaxFrames).
		Int64("seed", random.Seed()).
		Log("frame host started")

	select {
	case <-ctx.Done():
	case <-host.Done():
	}
	host.Stop()

	summary := w.summary()
	logger.Info().
		Uint64("frames", host.Scheduler().FrameCount()).
		Int("submitted", summary.Submitted).
		Int("replied", summary.Replied).
		Int64("executed", summary.Stats.Executed).
		Int64("cancelled", summary.Stats.Cancelled).
		Int64("faults", summary.Stats.Faults).
		Log("frame host stopped")
	fmt.Fprintf(c.App.Writer, "frames=%d submitted=%d replied=%d executed=%d cancelled=%d\n",
		host.Scheduler().FrameCount(), summary.Submitted, summary.Replied,
		summary.Stats.Executed, summary.Stats.Cancelled)
	return nil
}

func serveMetrics(addr string, reg *prom.Registry, logger *core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Err().
				Str("addr", addr).
				Err(err).
				Log("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Log("serving metrics")
	return server
}

func shutdownServer(server *http.Server, logger *core.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warning().Err(err).Log("metrics server shutdown failed")
	}
}
