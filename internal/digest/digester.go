package digest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

// ErrUnavailable is returned when the configured provider cannot be reached
var ErrUnavailable = errors.New("digest provider unavailable")

// NewProvider creates the provider named by config.Provider. An empty name
// disables the digest and returns nil.
func NewProvider(config model.LLMConfig, transport http.RoundTripper, logger logging.Logger) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIProvider(config, logger)
	case "ollama":
		return NewOllamaProvider(config, transport, logger)
	default:
		return nil, fmt.Errorf("unknown digest provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// Digester turns a run's accepted deals into a short prose digest
type Digester struct {
	provider Provider
	config   model.LLMConfig
	logger   logging.Logger
}

// NewDigester builds a Digester; it is disabled when no provider is configured
func NewDigester(config model.LLMConfig, transport http.RoundTripper, logger logging.Logger) (*Digester, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	provider, err := NewProvider(config, transport, logger)
	if err != nil {
		return nil, err
	}
	return &Digester{provider: provider, config: config, logger: logger}, nil
}

// NewWithProvider wraps an existing provider
func NewWithProvider(provider Provider, config model.LLMConfig, logger logging.Logger) *Digester {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Digester{provider: provider, config: config, logger: logger}
}

// IsEnabled reports whether a provider is configured
func (d *Digester) IsEnabled() bool {
	return d != nil && d.provider != nil
}

// ProviderName returns the provider name or ""
func (d *Digester) ProviderName() string {
	if !d.IsEnabled() {
		return ""
	}
	return d.provider.Name()
}

// Digest summarizes the high-band survivors among deals. It returns "" when
// disabled or when there is nothing to summarize. deals is not modified.
func (d *Digester) Digest(ctx context.Context, deals []model.ExtractedDeal) (string, error) {
	if !d.IsEnabled() {
		return "", nil
	}

	var accepted []model.ExtractedDeal
	for _, deal := range deals {
		if deal.Band == model.BandHigh && deal.DuplicateOf == nil {
			accepted = append(accepted, deal)
		}
	}
	if len(accepted) == 0 {
		return "", nil
	}
	slices.SortStableFunc(accepted, func(a, b model.ExtractedDeal) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if !d.provider.IsAvailable(ctx) {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, d.provider.Name())
	}

	resp, err := d.provider.Summarize(ctx, Request{
		Deals:      accepted,
		SourceURLs: SourceURLs(accepted),
		Model:      d.config.Model,
		MaxTokens:  d.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	d.logger.Info("digest generated",
		logging.String("provider", d.provider.Name()),
		logging.String("model", resp.Model),
		logging.Int("deals", len(accepted)),
		logging.Int("tokens", resp.TokensUsed))
	return resp.Summary, nil
}
