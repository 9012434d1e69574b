// Package search turns query strings into ranked URL candidates. A
// primary provider does the real work; a deterministic fallback list
// keeps the pipeline moving when the provider is missing or failing.
package search

import "context"

// Candidate is one search hit, normalized across provider shapes.
type Candidate struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Provider executes a single search query.
type Provider interface {
	Search(ctx context.Context, query string, count int) ([]Candidate, error)
}
