package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/store"
)

var (
	watchSource  string
	watchRecords []string
	watchJSON    bool
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail store change events",
	Long: `Watch prints change events as deals and articles are persisted, until
interrupted. With the redis event bus this follows runs in other processes;
with the local bus only events from this process are seen.

Example:
  mergertracker watch
  mergertracker watch --records deal --source pe-hub --json`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchSource, "source", "", "only events from this source id")
	watchCmd.Flags().StringSliceVar(&watchRecords, "records", nil, "record kinds to show (deal, article)")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print one JSON object per event")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	filter := store.EventFilter{SourceID: watchSource}
	for _, r := range watchRecords {
		filter.Records = append(filter.Records, store.RecordKind(r))
	}
	events, err := st.Subscribe(ctx, filter)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if cfg.Store.Events != "redis" {
		fmt.Fprintln(os.Stderr, "Note: local event bus, only events from this process will appear")
	}
	fmt.Fprintln(os.Stderr, "Watching for changes (Ctrl-C to stop)...")

	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if watchJSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("%s  %-16s %-12s %s\n", ev.At.Format("15:04:05"), ev.Label(), ev.SourceID, ev.Key)
	}
	return nil
}
