package research

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"deepscout/internal/llm"
)

// Extractor asks the model to reduce page text to the fixed
// ExtractedData schema. Parsing is defensive throughout: the schema is
// not enforced at the model boundary, so correctness is best effort and
// bad output degrades to an empty record, never an error.
type Extractor struct {
	llm    llm.Client
	logger *zap.Logger
}

// NewExtractor creates a structured-data extractor.
func NewExtractor(client llm.Client, logger *zap.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

const extractPromptTemplate = `Extract factual research findings from this page.

Research query: %s
Source URL: %s

Page text:
%s

Respond with ONLY a JSON object in this exact shape (use empty arrays
for anything the page does not mention):
{
  "companies": [{"name": "", "location": "", "size": ""}],
  "challenges": [""],
  "current_solutions": [""],
  "decision_makers": [""],
  "expansion_info": [""],
  "employee_feedback": [""],
  "budget_info": [""],
  "key_insights": [""],
  "relevant_findings": true
}`

// extractTextLimit caps how much page text goes into the prompt.
const extractTextLimit = 6000

// extractTemperature runs cold to favor factual consistency.
const extractTemperature = 0.1

// Extract produces an ExtractedData record from page text. Never
// returns an error: unparsable output yields an empty record with
// RelevantFindings false.
func (e *Extractor) Extract(ctx context.Context, text, query, url string) ExtractedData {
	text = truncateAtRune(text, extractTextLimit)
	prompt := fmt.Sprintf(extractPromptTemplate, query, url, text)

	raw, err := e.llm.Generate(ctx, prompt, llm.WithTemperature(extractTemperature))
	if err != nil {
		e.logger.Error("extraction call failed",
			zap.String("url", url),
			zap.Error(err))
		return NewExtractedData()
	}

	return e.parse(raw, url)
}

// parse applies the two-stage fallback: isolate the JSON substring,
// then fill defaults and derive the relevance flag if absent.
func (e *Extractor) parse(raw, url string) ExtractedData {
	obj := isolateJSONObject(raw)
	if obj == "" {
		e.logger.Error("extraction response contains no JSON object",
			zap.String("url", url),
			zap.String("excerpt", excerpt(raw)))
		return NewExtractedData()
	}

	// Decode the relevance flag separately so "absent" is
	// distinguishable from "false".
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &probe); err != nil {
		e.logger.Error("extraction response unparsable",
			zap.String("url", url),
			zap.Error(err),
			zap.String("excerpt", excerpt(raw)))
		return NewExtractedData()
	}

	var data ExtractedData
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		e.logger.Error("extraction schema mismatch",
			zap.String("url", url),
			zap.Error(err),
			zap.String("excerpt", excerpt(raw)))
		return NewExtractedData()
	}
	data.FillDefaults()

	if _, ok := probe["relevant_findings"]; !ok {
		data.RelevantFindings = data.HasFindings()
	}
	return data
}
