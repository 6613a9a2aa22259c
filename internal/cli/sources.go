package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/pipeline"
	"github.com/ppiankov/mergertracker/internal/util"
	"github.com/ppiankov/mergertracker/internal/validate"
	"github.com/ppiankov/mergertracker/internal/worker"
)

var (
	sourcesCheck   bool
	sourcesWorkers int
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	Long: `Sources validates the configuration and lists every source with its
politeness settings. With --check each base URL is probed through the
source's rate gate.

Example:
  mergertracker sources
  mergertracker sources --check`,
	Args: cobra.NoArgs,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().BoolVar(&sourcesCheck, "check", false, "probe each base URL for reachability")
	sourcesCmd.Flags().IntVar(&sourcesWorkers, "workers", 4, "concurrent probes")
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validate.Config(cfg); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	renderSources(os.Stdout, cfg.Sources)
	if !sourcesCheck {
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	var enabled []model.SourceConfig
	for _, src := range cfg.Sources {
		if src.IsEnabled() {
			enabled = append(enabled, src)
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	gates := worker.NewRegistry(enabled, cfg.Breaker, worker.RegistryOptions{})
	prober := validate.NewProber(gates, transport, cfg.HTTP.Timeout, sourcesWorkers, pipeline.RobotsAgent+"/"+Version)

	fmt.Fprintf(os.Stderr, "\n⚙️  Probing %d source(s)...\n\n", len(enabled))
	results := prober.Probe(ctx, enabled)

	unreachable := renderProbe(os.Stdout, results)
	if unreachable > 0 {
		return fmt.Errorf("%d base URL(s) unreachable", unreachable)
	}
	return nil
}

func renderSources(w io.Writer, sources []model.SourceConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Mode", "Rate", "Concurrency", "Robots", "Enabled", "Base URLs"})

	for _, src := range sources {
		t.AppendRow(table.Row{
			src.ID,
			src.Name,
			src.Mode,
			fmt.Sprintf("%d/%s", src.RateLimit.Requests, src.RateLimit.Interval),
			src.MaxConcurrency,
			src.RespectRobots,
			src.IsEnabled(),
			strings.Join(src.BaseURLs, "\n"),
		})
	}
	t.Render()
}

// renderProbe prints probe results and returns the number of unreachable URLs
func renderProbe(w io.Writer, results []validate.ProbeResult) int {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "Source", "URL", "Status", "Attempts", "Elapsed", "Note"})

	unreachable := 0
	for _, r := range results {
		mark := "✓"
		if !r.Reachable {
			mark = "✗"
			unreachable++
		}
		status := "-"
		if r.StatusCode > 0 {
			status = fmt.Sprint(r.StatusCode)
		}
		note := r.Error
		if note == "" && r.RedirectURL != "" {
			note = "→ " + r.RedirectURL
		}
		t.AppendRow(table.Row{mark, r.SourceID, r.URL, status, r.Attempts, r.Elapsed.Round(time.Millisecond), note})
	}
	t.AppendFooter(table.Row{"", "Total", len(results), "", "", "", fmt.Sprintf("%d unreachable", unreachable)})
	t.Render()
	return unreachable
}
