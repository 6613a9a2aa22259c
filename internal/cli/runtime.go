package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/ppiankov/mergertracker/internal/digest"
	"github.com/ppiankov/mergertracker/internal/enrich"
	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/metrics"
	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/pipeline"
	"github.com/ppiankov/mergertracker/internal/store"
)

// loadConfig layers the config file and environment over the defaults.
// Each source starts from DefaultSource before its own settings apply.
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	var raw []map[string]any
	if err := viper.UnmarshalKey("sources", &raw); err != nil {
		return cfg, fmt.Errorf("decode sources: %w", err)
	}
	cfg.Sources = make([]model.SourceConfig, 0, len(raw))
	for i, m := range raw {
		sub := viper.New()
		if err := sub.MergeConfigMap(m); err != nil {
			return cfg, fmt.Errorf("source %d: %w", i, err)
		}
		src := model.DefaultSource()
		if err := sub.Unmarshal(&src); err != nil {
			return cfg, fmt.Errorf("source %d: %w", i, err)
		}
		cfg.Sources = append(cfg.Sources, src)
	}

	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg model.Config) (logging.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// runtime holds what the long-running commands share
type runtime struct {
	cfg      model.Config
	logger   logging.Logger
	store    store.Store
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
}

// openRuntime loads config, opens the store and builds a pipeline
func openRuntime(ctx context.Context, m *metrics.Metrics) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	var ref enrich.ReferenceData
	if cfg.Reference.Path != "" {
		table, err := enrich.LoadTable(cfg.Reference.Path)
		if err != nil {
			return nil, fmt.Errorf("load reference data: %w", err)
		}
		ref = table
	}

	var digester pipeline.Digester
	if cfg.LLM.Provider != "" {
		d, err := digest.NewDigester(cfg.LLM, nil, logger.With(logging.String("component", "digest")))
		if err != nil {
			return nil, fmt.Errorf("configure digest: %w", err)
		}
		digester = d
	}

	st, err := store.Open(ctx, cfg.Store, logger.With(logging.String("component", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	p, err := pipeline.New(cfg, pipeline.Deps{
		Store:     st,
		Reference: ref,
		Digester:  digester,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, store: st, metrics: m, pipeline: p}, nil
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("closing store", logging.Err(err))
	}
	_ = rt.logger.Sync()
}

// signalContext is canceled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
