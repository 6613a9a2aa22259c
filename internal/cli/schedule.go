package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/metrics"
	"github.com/ppiankov/mergertracker/internal/pipeline"
)

const defaultMetricsAddr = ":9090"

var (
	scheduleCron        string
	scheduleMetricsAddr string
	scheduleRunNow      bool
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion on a cron schedule and serve metrics",
	Long: `Schedule keeps running and starts an ingestion pass on every tick of a
five-field cron expression. A pass that is still running when the next tick
arrives makes that tick a no-op.

Prometheus metrics are served on /metrics.

Example:
  mergertracker schedule --cron "0 6 * * *"
  mergertracker schedule --cron "*/30 * * * *" --metrics-addr :9100 --now`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "0 6 * * *", "cron expression (minute hour dom month dow)")
	scheduleCmd.Flags().StringVar(&scheduleMetricsAddr, "metrics-addr", "", "metrics listen address (default: metrics.addr or "+defaultMetricsAddr+")")
	scheduleCmd.Flags().BoolVar(&scheduleRunNow, "now", false, "also run once at startup")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	m := metrics.New()
	rt, err := openRuntime(ctx, m)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger.With(logging.String("component", "schedule"))

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(scheduleCron)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", scheduleCron, err)
	}

	addr := scheduleMetricsAddr
	if addr == "" {
		addr = rt.cfg.Metrics.Addr
	}
	if addr == "" {
		addr = defaultMetricsAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()

	var (
		mu      sync.Mutex
		running bool
		wg      sync.WaitGroup
	)
	pass := func() {
		mu.Lock()
		if running {
			mu.Unlock()
			logger.Warn("previous run still in progress, skipping tick")
			return
		}
		running = true
		mu.Unlock()
		defer func() {
			mu.Lock()
			running = false
			mu.Unlock()
		}()

		summary, err := rt.pipeline.Run(ctx, pipeline.RunOptions{})
		if err != nil {
			logger.Error("scheduled run failed", logging.Err(err))
			return
		}
		pipeline.RenderSummary(os.Stderr, summary)
		if summary.Tripped() {
			logger.Warn("scheduled run ended with tripped sources")
		}
	}

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		wg.Go(pass)
	}))
	c.Start()

	fmt.Fprintf(os.Stderr, "✓ Scheduled %q, metrics on %s/metrics\n", scheduleCron, addr)
	fmt.Fprintf(os.Stderr, "  Next run: %s\n", schedule.Next(time.Now()).Format(time.RFC1123))

	if scheduleRunNow {
		wg.Go(pass)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx := c.Stop()
	<-stopCtx.Done()
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
