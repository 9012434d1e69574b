package research

import (
	"context"
	"errors"

	"deepscout/internal/fetch"
	"deepscout/internal/llm"
	"deepscout/internal/search"
)

// fakeLLM dispatches on prompt content so one stub can serve every
// pipeline step in an engine test.
type fakeLLM struct {
	fn      func(prompt string) (string, error)
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.fn == nil {
		return "", errors.New("no response scripted")
	}
	return f.fn(prompt)
}

func (f *fakeLLM) Name() string { return "fake:test" }

// replyWith returns a stub that always answers the same text.
func replyWith(text string) *fakeLLM {
	return &fakeLLM{fn: func(string) (string, error) { return text, nil }}
}

// failingLLM always errors.
func failingLLM() *fakeLLM {
	return &fakeLLM{fn: func(string) (string, error) { return "", errors.New("model offline") }}
}

// fakeProvider returns scripted candidates, or an error.
type fakeProvider struct {
	candidates []search.Candidate
	err        error
	queries    []string
}

func (p *fakeProvider) Search(ctx context.Context, query string, count int) ([]search.Candidate, error) {
	p.queries = append(p.queries, query)
	if p.err != nil {
		return nil, p.err
	}
	return p.candidates, nil
}

// fakeFetcher maps URLs to page text; missing URLs fail.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	text, ok := f.pages[url]
	if !ok {
		return fetch.Page{}, errors.New("unreachable")
	}
	return fetch.Page{URL: url, Title: "Page " + url, Text: text, Words: len(text) / 5}, nil
}
