package search

import "strings"

// fallbackSources maps topic keywords to known-good reference sites.
// Entries are checked in declaration order and the first match wins.
var fallbackSources = []struct {
	keywords   []string
	candidates []Candidate
}{
	{
		keywords: []string{"japan", "japanese", "tokyo", "osaka"},
		candidates: []Candidate{
			{URL: "https://japan-dev.com/blog", Title: "Japan Dev Blog", Description: "Articles on working at Japanese tech companies"},
			{URL: "https://www.tokyodev.com/articles", Title: "TokyoDev Articles", Description: "Developer life and hiring in Japan"},
		},
	},
	{
		keywords: []string{"startup", "funding", "grant", "venture"},
		candidates: []Candidate{
			{URL: "https://www.crunchbase.com/discover/organization.companies", Title: "Crunchbase Companies", Description: "Company funding and profile data"},
			{URL: "https://techcrunch.com/category/startups/", Title: "TechCrunch Startups", Description: "Startup news and funding announcements"},
		},
	},
	{
		keywords: []string{"hiring", "job", "salary", "engineer"},
		candidates: []Candidate{
			{URL: "https://www.levels.fyi", Title: "Levels.fyi", Description: "Compensation data for tech roles"},
			{URL: "https://news.ycombinator.com", Title: "Hacker News", Description: "Tech industry discussion"},
		},
	},
}

// generalFallback is used when no topic keyword matches.
var generalFallback = []Candidate{
	{URL: "https://en.wikipedia.org/wiki/Main_Page", Title: "Wikipedia", Description: "General reference"},
	{URL: "https://news.ycombinator.com", Title: "Hacker News", Description: "Tech industry discussion"},
}

// FallbackCandidates returns a small deterministic candidate list keyed
// on the query's topic. Always non-empty, so a dead or unconfigured
// provider never stalls a cycle.
func FallbackCandidates(query string) []Candidate {
	lower := strings.ToLower(query)
	for _, src := range fallbackSources {
		for _, kw := range src.keywords {
			if strings.Contains(lower, kw) {
				out := make([]Candidate, len(src.candidates))
				copy(out, src.candidates)
				return out
			}
		}
	}
	out := make([]Candidate, len(generalFallback))
	copy(out, generalFallback)
	return out
}
