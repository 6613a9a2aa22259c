package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/store"
)

var (
	querySource     string
	queryType       string
	queryBand       string
	queryCompany    string
	querySince      string
	queryMinConf    float64
	queryDuplicates bool
	queryLimit      int
	queryJSON       bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List stored deals",
	Long: `Query lists deals from the configured store, highest confidence first.
Duplicates are hidden unless --duplicates is given.

Example:
  mergertracker query --band medium
  mergertracker query --company datasoft --since 2025-01-01
  mergertracker query --type ipo --min-confidence 0.8 --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&querySource, "source", "", "only deals from this source id")
	queryCmd.Flags().StringVar(&queryType, "type", "", "deal type (merger, acquisition, ipo, divestiture, other)")
	queryCmd.Flags().StringVar(&queryBand, "band", "", "confidence band (high, medium)")
	queryCmd.Flags().StringVar(&queryCompany, "company", "", "substring of target or acquirer name")
	queryCmd.Flags().StringVar(&querySince, "since", "", "announced on or after this date (YYYY-MM-DD) or duration ago (e.g. 168h)")
	queryCmd.Flags().Float64Var(&queryMinConf, "min-confidence", 0, "minimum confidence score")
	queryCmd.Flags().BoolVar(&queryDuplicates, "duplicates", false, "include deals merged into another")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 50, "max deals to list (0 for all)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print JSON instead of a table")
}

func runQuery(cmd *cobra.Command, args []string) error {
	filter, err := buildFilter(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, logger.With(logging.String("component", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	deals, err := st.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deals)
	}
	renderDeals(os.Stdout, deals)
	return nil
}

func buildFilter(now time.Time) (store.Filter, error) {
	f := store.Filter{
		SourceID:          querySource,
		DealType:          model.DealType(queryType),
		Band:              model.Band(queryBand),
		Company:           queryCompany,
		MinConfidence:     queryMinConf,
		IncludeDuplicates: queryDuplicates,
		Limit:             queryLimit,
	}
	if querySince != "" {
		since, err := parseSince(querySince, now)
		if err != nil {
			return f, err
		}
		f.Since = &since
	}
	return f, nil
}

// parseSince accepts a date or a duration before now
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: want YYYY-MM-DD or a duration like 168h", s)
}

func renderDeals(w io.Writer, deals []model.ExtractedDeal) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Type", "Acquirer", "Target", "Value", "Status", "Confidence", "Announced", "Source"})

	for _, d := range deals {
		value := "undisclosed"
		if d.Value != nil {
			value = d.Value.Amount.StringFixed(0) + " " + d.Value.Currency
		}
		announced := ""
		if d.AnnouncementDate != nil {
			announced = d.AnnouncementDate.Format("2006-01-02")
		}
		confidence := fmt.Sprintf("%.2f %s", d.Confidence, d.Band)
		if d.DuplicateOf != nil {
			confidence += " (dup)"
		}
		t.AppendRow(table.Row{
			d.DealType, d.Acquirer(), d.TargetCompany, value,
			d.DealStatus, confidence, announced, d.SourceID,
		})
	}
	t.AppendFooter(table.Row{"Total", len(deals)})
	t.Render()
}
