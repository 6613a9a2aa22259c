package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/mergertracker/internal/pipeline"
	"github.com/ppiankov/mergertracker/internal/worker"
)

var (
	runSourceIDs   []string
	runMaxItems    int
	runDryRun      bool
	runSummaryJSON string
	runSeedsFile   string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion pass over the configured sources",
	Long: `Run fetches every enabled source (or the ones named with --sources),
extracts deals from new articles and stores them.

A summary table is printed to stderr when the run ends, also when it is
interrupted. The exit status is nonzero if any source's circuit breaker
was still open at the end.

Example:
  mergertracker run
  mergertracker run --sources reuters-deals,pe-hub --max-items 50
  mergertracker run --dry-run --summary-json summary.json
  mergertracker run --seeds seeds.txt`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runSourceIDs, "sources", nil, "comma-separated source ids (default: all enabled)")
	runCmd.Flags().IntVar(&runMaxItems, "max-items", 0, "max articles per source (overrides run.max_items_per_source)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "extract and count without persisting")
	runCmd.Flags().StringVar(&runSummaryJSON, "summary-json", "", "also write the run summary as JSON to this path")
	runCmd.Flags().StringVar(&runSeedsFile, "seeds", "", "file of extra listing URLs, one per line as \"url\" or \"source-id url\"")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var seeds []worker.Seed
	if runSeedsFile != "" {
		var err error
		if seeds, err = worker.ReadSeedsFromFile(runSeedsFile); err != nil {
			return fmt.Errorf("read seeds: %w", err)
		}
	}

	rt, err := openRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Store: %s\n", rt.cfg.Store.Driver)
		if len(runSourceIDs) > 0 {
			fmt.Fprintf(os.Stderr, "Sources: %s\n", strings.Join(runSourceIDs, ", "))
		}
		fmt.Fprintln(os.Stderr)
	}

	summary, err := rt.pipeline.Run(ctx, pipeline.RunOptions{
		Sources:  runSourceIDs,
		MaxItems: runMaxItems,
		DryRun:   runDryRun,
		Seeds:    seeds,
	})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	pipeline.RenderSummary(os.Stderr, summary)
	if runSummaryJSON != "" {
		if err := pipeline.WriteSummaryJSON(runSummaryJSON, summary); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Summary written to %s\n", runSummaryJSON)
	}

	if summary.Tripped() {
		return ErrTripped
	}
	return nil
}
