// Package fetch retrieves single pages and reduces them to plain text.
// No link-following: one URL in, one page of text out, or a failure the
// caller is expected to absorb.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"deepscout/internal/config"
)

// Page is the text content extracted from one fetched URL.
type Page struct {
	URL   string
	Title string
	Text  string
	Words int
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// ErrTooThin marks pages below the minimum word threshold, typically
// pure navigation or consent walls.
var ErrTooThin = errors.New("fetch: page content too thin")

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	minWords  int
	logger    *zap.Logger
}

// NewHTTPFetcher creates a fetcher from configuration.
func NewHTTPFetcher(cfg config.FetchConfig, logger *zap.Logger) *HTTPFetcher {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: config.Duration(cfg.Timeout, 20*time.Second),
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		minWords:  cfg.MinWords,
		logger:    logger,
	}
}

// Fetch GETs the URL and returns its extracted text. Network errors,
// non-200 statuses, unparsable HTML, and too-thin content are all
// returned as errors; none of them should abort a cycle.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Page{}, err
	}

	return f.pageFromHTML(url, string(body))
}

// pageFromHTML runs the shared HTML-to-text pipeline and applies the
// minimum word gate.
func (f *HTTPFetcher) pageFromHTML(url, rawHTML string) (Page, error) {
	title, text, err := extractText(rawHTML)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: parse html: %w", err)
	}

	words := len(strings.Fields(text))
	if words < f.minWords {
		f.logger.Debug("page below word threshold",
			zap.String("url", url),
			zap.Int("words", words),
			zap.Int("min_words", f.minWords))
		return Page{}, ErrTooThin
	}

	return Page{URL: url, Title: title, Text: text, Words: words}, nil
}
