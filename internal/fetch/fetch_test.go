package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deepscout/internal/config"
)

func newTestFetcher(t *testing.T, minWords int, handler http.HandlerFunc) (*HTTPFetcher, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewHTTPFetcher(config.FetchConfig{
		UserAgent: "deepscout-test",
		MinWords:  minWords,
	}, zap.NewNop())
	return f, srv.URL
}

func TestFetchExtractsText(t *testing.T) {
	body := `<html><head><title>Company Report</title></head><body>
		<nav>Home About Contact</nav>
		<div class="cookie-banner">We use cookies to improve your experience</div>
		<article>Mercari expanded its Tokyo engineering team. The company hired
		forty engineers from overseas and runs an internal language program.</article>
		<script>trackPageView()</script>
		<footer>Copyright 2025</footer>
	</body></html>`

	f, url := newTestFetcher(t, 10, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "deepscout-test", r.Header.Get("User-Agent"))
		w.Write([]byte(body))
	})

	page, err := f.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "Company Report", page.Title)
	assert.Contains(t, page.Text, "Mercari expanded")
	// boilerplate subtrees stripped
	assert.NotContains(t, page.Text, "cookies")
	assert.NotContains(t, page.Text, "trackPageView")
	assert.NotContains(t, page.Text, "Copyright")
	assert.NotContains(t, page.Text, "Home About")
	assert.Equal(t, len(strings.Fields(page.Text)), page.Words)
}

func TestFetchTooThin(t *testing.T) {
	f, url := newTestFetcher(t, 50, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>almost nothing here</p></body></html>`))
	})

	_, err := f.Fetch(context.Background(), url)
	require.ErrorIs(t, err, ErrTooThin)
}

func TestFetchNon200(t *testing.T) {
	f, url := newTestFetcher(t, 1, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := f.Fetch(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchNetworkError(t *testing.T) {
	f := NewHTTPFetcher(config.FetchConfig{MinWords: 1}, zap.NewNop())
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	assert.Error(t, err)
}

func TestExtractTextCollapsesWhitespace(t *testing.T) {
	_, text, err := extractText("<html><body><p>one\n\n  two\t three</p></body></html>")
	require.NoError(t, err)
	assert.Equal(t, "one two three", text)
}

func TestExtractTextDropsOverlays(t *testing.T) {
	raw := `<html><body>
		<div id="newsletter-modal">Subscribe now</div>
		<div class="consent-overlay">Accept all</div>
		<p>real content survives</p>
	</body></html>`
	_, text, err := extractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "real content survives", text)
}
