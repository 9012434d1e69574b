package research

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"deepscout/internal/llm"
)

// Gate scores fetched pages for relevance before the expensive
// extraction step runs. It is the pipeline's primary cost control.
type Gate struct {
	llm            llm.Client
	threshold      int
	trustedDomains []string
	logger         *zap.Logger
}

// NewGate creates a relevance gate with the given threshold in [1,10].
func NewGate(client llm.Client, threshold int, trustedDomains []string, logger *zap.Logger) *Gate {
	return &Gate{llm: client, threshold: threshold, trustedDomains: trustedDomains, logger: logger}
}

const scorePromptTemplate = `Rate how useful this page is for the research query.

Query: %s
Page title: %s
Page preview:
%s

Consider topical relevance, substantive content, and source credibility.
Respond with ONLY a single number from 1 to 10.`

// defaultScore is used when the response carries no digits. Lenient on
// purpose: the rubric prompt is tuned for recall over precision.
const defaultScore = 5

const previewLimit = 500

// Score rates a (preview, query, title) triple 1 to 10. Model errors
// score the default rather than dropping the page.
func (g *Gate) Score(ctx context.Context, preview, query, title string) int {
	preview = truncateAtRune(preview, previewLimit)
	prompt := fmt.Sprintf(scorePromptTemplate, query, title, preview)

	raw, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("relevance call failed, scoring default", zap.Error(err))
		return defaultScore
	}
	return ParseScore(raw)
}

var digitRun = regexp.MustCompile(`\d+`)

// ParseScore extracts the first run of digits from raw model output and
// clamps it to [1,10], defaulting to 5 when no digit appears.
func ParseScore(raw string) int {
	match := digitRun.FindString(raw)
	if match == "" {
		return defaultScore
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		// Digit runs longer than an int only happen on garbage output.
		return 10
	}
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// ShouldExtract applies the threshold, lowered by 2 for trusted domains.
func (g *Gate) ShouldExtract(score int, url string) bool {
	threshold := g.threshold
	if g.isTrusted(url) {
		threshold -= 2
		if threshold < 1 {
			threshold = 1
		}
	}
	return score >= threshold
}

func (g *Gate) isTrusted(url string) bool {
	lower := strings.ToLower(url)
	for _, domain := range g.trustedDomains {
		if strings.Contains(lower, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}
