package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultURLTemplate queries CelesTrak one catalog number at a time.
	DefaultURLTemplate = "https://celestrak.org/NORAD/elements/gp.php?CATNR={id}&FORMAT=tle"

	// maxBodyBytes caps a single response.
	maxBodyBytes = 10 << 20
)

// Fetcher retrieves raw element sets for a list of catalog numbers.
//
// The URL template holds either "{ids}", replaced by a comma-joined list and
// fetched in one request, or "{id}", fetched once per catalog number. Requests
// are paced by a token-bucket limiter.
type Fetcher struct {
	template   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithRateLimit sets the request rate. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewFetcher creates a Fetcher for the given URL template.
func NewFetcher(template string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if template == "" {
		template = DefaultURLTemplate
	}
	f := &Fetcher{
		template: template,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source returns the configured URL template.
func (f *Fetcher) Source() string {
	return f.template
}

// Fetch downloads element sets for ids and returns the concatenated bodies.
// In per-id mode a failing id is logged and skipped; the call fails only when
// every request fails.
func (f *Fetcher) Fetch(ctx context.Context, ids []CatalogNumber) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	if strings.Contains(f.template, "{ids}") {
		joined := make([]string, len(ids))
		for i, id := range ids {
			joined[i] = string(id)
		}
		return f.get(ctx, strings.ReplaceAll(f.template, "{ids}", strings.Join(joined, ",")))
	}

	var (
		buf     bytes.Buffer
		lastErr error
		okCount int
	)
	for _, id := range ids {
		body, err := f.get(ctx, strings.ReplaceAll(f.template, "{id}", string(id)))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("TLE fetch failed", "catalog_number", id, "error", err)
			lastErr = err
			continue
		}
		okCount++
		buf.Write(body)
		if len(body) > 0 && body[len(body)-1] != '\n' {
			buf.WriteString("\r\n")
		}
	}
	if okCount == 0 {
		return nil, fmt.Errorf("fetching %d catalog numbers: %w", len(ids), lastErr)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	return body, nil
}
