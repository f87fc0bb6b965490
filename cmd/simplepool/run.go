package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/briandowns/spinner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jzx17/simplepool/pkg/affinity"
	"github.com/jzx17/simplepool/pkg/config"
	"github.com/jzx17/simplepool/pkg/logger"
	"github.com/jzx17/simplepool/pkg/metrics"
	"github.com/jzx17/simplepool/pkg/types"
	"github.com/jzx17/simplepool/pkg/worker"
)

type runOptions struct {
	Size      int
	Tasks     int
	Pin       bool
	FailEvery int
	Work      time.Duration
	Observer  worker.Observer
	Logger    types.Logger
	OnError   func(*types.TaskError)
}

// workloadStats is what a finished run reports.
type workloadStats struct {
	Pool    types.PoolStats
	Workers []worker.WorkerStats
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	var quiet bool
	var configFile string

	defaultCfg := config.Load(config.ConstantConfigFilename)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo workload and print pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultCfg
			if configFile != "" {
				cfg = config.Load(configFile)
			}
			if !cmd.Flags().Changed("size") {
				opts.Size = cfg.PoolSize
			}
			if !cmd.Flags().Changed("tasks") {
				opts.Tasks = cfg.Tasks
			}
			if !cmd.Flags().Changed("pin") {
				opts.Pin = cfg.PinWorkers
			}
			cfg.PoolSize, cfg.Tasks = opts.Size, opts.Tasks
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, err := logger.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger.New(os.Stderr, level))
			opts.Logger = logger.TaskLogger(slog.Default())
			opts.OnError = logger.TaskErrorHandler(slog.Default())

			if cfg.MetricsAddr != "" {
				reg := prometheus.NewRegistry()
				collector := metrics.NewCollector(reg)
				opts.Observer = collector

				srv := &http.Server{
					Addr:              cfg.MetricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						slog.Error("Metrics server failed", "addr", cfg.MetricsAddr, "error", err)
					}
				}()
				defer srv.Close()
				slog.Info("Serving metrics", "addr", cfg.MetricsAddr)
			}

			var s *spinner.Spinner
			if !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				s.Suffix = fmt.Sprintf(" Running %d tasks on %d workers...", opts.Tasks, opts.Size)
				s.Start()
			}

			start := time.Now()
			stats, err := runWorkload(cmd.Context(), opts)

			if s != nil {
				s.Stop()
			}
			if err != nil {
				return err
			}

			return printStats(cmd.OutOrStdout(), stats, time.Since(start))
		},
	}

	cmd.Flags().IntVarP(&opts.Size, "size", "s", defaultCfg.PoolSize, "Number of worker threads")
	cmd.Flags().IntVarP(&opts.Tasks, "tasks", "n", defaultCfg.Tasks, "Number of tasks to submit")
	cmd.Flags().BoolVar(&opts.Pin, "pin", defaultCfg.PinWorkers, "Pin worker i to CPU i modulo the CPU count")
	cmd.Flags().IntVar(&opts.FailEvery, "fail-every", 0, "Make every Nth task panic (0 disables)")
	cmd.Flags().DurationVar(&opts.Work, "work", time.Millisecond, "Simulated duration of each task")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable progress spinner")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a dotenv config file")
	return cmd
}

// runWorkload submits opts.Tasks tasks and waits until each has run.
// If ctx ends first the queued tasks are discarded.
func runWorkload(ctx context.Context, opts runOptions) (workloadStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	poolCfg := &worker.SimplePoolConfig{
		PoolSize:     opts.Size,
		Logger:       opts.Logger,
		ErrorHandler: opts.OnError,
		Observer:     opts.Observer,
	}
	if opts.Pin {
		cpus := affinity.HardwareConcurrency()
		poolCfg.OnWorkerStart = func(id int) {
			cpu := id % cpus
			if err := affinity.BindCurrent(cpu); err != nil {
				slog.Warn("Failed to pin worker", "worker", id, "cpu", cpu, "error", err)
				return
			}
			slog.Debug("Pinned worker", "worker", id, "cpu", cpu)
		}
	}

	pool, err := worker.NewSimplePool(poolCfg)
	if err != nil {
		return workloadStats{}, err
	}
	if c, ok := opts.Observer.(*metrics.Collector); ok {
		c.Instrument(pool)
	}

	// The last task to finish closes done. Tasks dropped by Clear never
	// finish, so nothing may block on them.
	remaining := int64(opts.Tasks)
	done := make(chan struct{})
	finish := func() {
		if atomic.AddInt64(&remaining, -1) == 0 {
			close(done)
		}
	}
	if opts.Tasks <= 0 {
		close(done)
	}

	for i := 1; i <= opts.Tasks; i++ {
		fail := opts.FailEvery > 0 && i%opts.FailEvery == 0
		n := i
		task := func() {
			defer finish()
			if opts.Work > 0 {
				time.Sleep(opts.Work)
			}
			if fail {
				panic(fmt.Sprintf("task %d failed on purpose", n))
			}
		}
		if err := pool.Submit(task); err != nil {
			finish()
			slog.Error("Failed to submit task", "task", n, "error", err)
		}
	}

	collect := func() workloadStats {
		return workloadStats{Pool: pool.Stats(), Workers: pool.GetWorkerStats()}
	}

	select {
	case <-done:
	case <-ctx.Done():
		pool.Clear()
		_ = pool.Close()
		return collect(), ctx.Err()
	}

	// The last completion callbacks may still be in flight after done.
	if err := pool.Shutdown(ctx); err != nil {
		return collect(), err
	}
	return collect(), nil
}

func printStats(w io.Writer, stats workloadStats, elapsed time.Duration) error {
	pool := stats.Pool
	if _, err := fmt.Fprintf(w,
		"workers:   %d\ncompleted: %d\nfailed:    %d\navg task:  %v\nelapsed:   %v\n",
		pool.PoolSize, pool.TotalCompleted, pool.TotalFailed,
		pool.AverageExecutionTime(), elapsed.Round(time.Millisecond)); err != nil {
		return err
	}

	for _, ws := range stats.Workers {
		if _, err := fmt.Fprintf(w, "  %s success=%.1f%%\n", ws, 100*ws.GetSuccessRate()); err != nil {
			return err
		}
	}
	return nil
}
