package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRenderUnavailable means the headless path cannot serve the request;
// callers fall back to a static fetch
var ErrRenderUnavailable = errors.New("render service unavailable")

// Renderer produces the post-script HTML of a page
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// RenderRequest is what the render service needs to load a page as the
// session's identity
type RenderRequest struct {
	URL       string            `json:"url"`
	UserAgent string            `json:"userAgent"`
	Headers   map[string]string `json:"setExtraHTTPHeaders,omitempty"`
	WaitFor   string            `json:"waitForSelector,omitempty"`
}

// RenderService talks to an HTTP browser-rendering endpoint that accepts a
// JSON page request and answers with the rendered HTML
type RenderService struct {
	endpoint string
	client   *http.Client
	maxBytes int64
}

// NewRenderService creates a client for the render endpoint
func NewRenderService(endpoint string, timeout time.Duration, maxBytes int64) *RenderService {
	if maxBytes <= 0 {
		maxBytes = 4_000_000
	}
	return &RenderService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Render posts req to the service
func (r *RenderService) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRenderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read render body: %w", err)
	}
	return body, nil
}
