package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"deepscout/internal/config"
)

// BrowserFetcher renders pages in a headless browser before extracting
// text. Needed for sites whose content only exists after script
// execution; the HTTP fetcher sees an empty shell there.
type BrowserFetcher struct {
	timeout  time.Duration
	minWords int
	logger   *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher creates a browser-backed fetcher. The browser is
// launched lazily on first fetch.
func NewBrowserFetcher(cfg config.FetchConfig, logger *zap.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		timeout:  config.Duration(cfg.Timeout, 20*time.Second),
		minWords: cfg.MinWords,
		logger:   logger,
	}
}

// ensureBrowser launches and connects the shared browser instance.
func (f *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	f.browser = browser
	return browser, nil
}

// Fetch renders the URL and extracts its text through the same pipeline
// as the HTTP fetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	browser, err := f.ensureBrowser()
	if err != nil {
		return Page{}, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return Page{}, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(f.timeout)
	if err := page.Navigate(url); err != nil {
		return Page{}, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return Page{}, fmt.Errorf("wait load: %w", err)
	}

	rawHTML, err := page.HTML()
	if err != nil {
		return Page{}, fmt.Errorf("read html: %w", err)
	}

	title, text, err := extractText(rawHTML)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: parse html: %w", err)
	}

	words := len(strings.Fields(text))
	if words < f.minWords {
		f.logger.Debug("rendered page below word threshold",
			zap.String("url", url),
			zap.Int("words", words))
		return Page{}, ErrTooThin
	}

	return Page{URL: url, Title: title, Text: text, Words: words}, nil
}

// Close shuts down the shared browser instance.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
