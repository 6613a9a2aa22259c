package validate

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/worker"
)

const probeMaxAttempts = 3

// probeSleepFunc waits between probe retries; tests replace it
var probeSleepFunc = func(ctx context.Context, d time.Duration) error {
	return worker.RealClock{}.Sleep(ctx, d)
}

// ProbeResult is the reachability of one source URL
type ProbeResult struct {
	SourceID    string        `json:"source_id"`
	URL         string        `json:"url"`
	StatusCode  int           `json:"status_code,omitempty"`
	Reachable   bool          `json:"reachable"`
	RedirectURL string        `json:"redirect_url,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	Attempts    int           `json:"attempts"`
	Error       string        `json:"error,omitempty"`
}

// Prober checks that each source's base URLs answer. Every request goes
// through the source's RateGate like any other fetch.
type Prober struct {
	client     *http.Client
	gates      *worker.Registry
	maxWorkers int64
	userAgent  string
}

// NewProber creates a prober. transport may be nil.
func NewProber(gates *worker.Registry, transport http.RoundTripper, timeout time.Duration, maxWorkers int, userAgent string) *Prober {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		gates:      gates,
		maxWorkers: int64(maxWorkers),
		userAgent:  userAgent,
	}
}

// Probe checks every base URL of sources concurrently. Results are sorted
// by source id, then URL.
func (p *Prober) Probe(ctx context.Context, sources []model.SourceConfig) []ProbeResult {
	type target struct {
		sourceID string
		url      string
	}
	var targets []target
	for _, src := range sources {
		for _, u := range src.BaseURLs {
			targets = append(targets, target{src.ID, u})
		}
	}

	results := make([]ProbeResult, len(targets))
	sem := semaphore.NewWeighted(p.maxWorkers)
	var wg sync.WaitGroup

	for i, t := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = ProbeResult{SourceID: t.sourceID, URL: t.url, Error: "context canceled"}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.probeWithRetry(ctx, t.sourceID, t.url)
		}()
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SourceID != results[j].SourceID {
			return results[i].SourceID < results[j].SourceID
		}
		return results[i].URL < results[j].URL
	})
	return results
}

func (p *Prober) probeWithRetry(ctx context.Context, sourceID, rawURL string) ProbeResult {
	var result ProbeResult
	for attempt := 1; attempt <= probeMaxAttempts; attempt++ {
		result = p.probe(ctx, sourceID, rawURL)
		result.Attempts = attempt
		if !retryable(result) || attempt == probeMaxAttempts {
			return result
		}
		if err := probeSleepFunc(ctx, time.Duration(1<<uint(attempt-1))*time.Second); err != nil {
			return result
		}
	}
	return result
}

func (p *Prober) probe(ctx context.Context, sourceID, rawURL string) ProbeResult {
	result := ProbeResult{SourceID: sourceID, URL: rawURL}

	permit, err := p.gates.Acquire(ctx, sourceID)
	if err != nil {
		result.Error = fmt.Sprintf("rate gate: %v", err)
		return result
	}

	started := time.Now()
	resp, err := p.do(ctx, http.MethodHead, rawURL)
	// Some sites refuse HEAD outright
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		_ = resp.Body.Close()
		resp, err = p.do(ctx, http.MethodGet, rawURL)
	}
	result.Elapsed = time.Since(started)

	if err != nil {
		permit.Release(worker.OutcomeFailure)
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	permit.Release(worker.OutcomeForStatus(resp.StatusCode))

	result.StatusCode = resp.StatusCode
	result.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 400
	if final := resp.Request.URL.String(); final != rawURL {
		result.RedirectURL = final
	}
	return result
}

func (p *Prober) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	return p.client.Do(req)
}

// retryable reports transient probe failures: 5xx, 429 and timeouts or
// refused connections
func retryable(r ProbeResult) bool {
	if r.StatusCode == http.StatusTooManyRequests || (r.StatusCode >= 500 && r.StatusCode < 600) {
		return true
	}
	s := strings.ToLower(r.Error)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
