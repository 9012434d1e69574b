package research

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternTracker spots trends across findings: location clusters,
// recency bursts, and recurring challenges. It is a plain value object
// owned by the engine and passed explicitly; observations cross into the
// external voice layer only through the engine's observation hook.
type PatternTracker struct {
	CompaniesByLocation map[string]int
	ChallengeCounts     map[string]int
	RecentSignals       int

	emitted  map[string]bool
	detected int
}

// observationThreshold is how many hits a pattern needs before it is
// worth mentioning.
const observationThreshold = 3

// NewPatternTracker creates an empty pattern tracker.
func NewPatternTracker() *PatternTracker {
	return &PatternTracker{
		CompaniesByLocation: map[string]int{},
		ChallengeCounts:     map[string]int{},
		emitted:             map[string]bool{},
	}
}

var recentYearPattern = regexp.MustCompile(`\b20(2[4-9]|3\d)\b`)

// Observe folds one finding's data into the counters and returns any
// newly crossed-threshold observations. Each observation fires once.
func (p *PatternTracker) Observe(data ExtractedData) []string {
	var observations []string

	for _, c := range data.Companies {
		loc := strings.TrimSpace(strings.ToLower(c.Location))
		if loc == "" {
			continue
		}
		p.CompaniesByLocation[loc]++
		if p.CompaniesByLocation[loc] >= observationThreshold && !p.emitted["loc:"+loc] {
			p.emitted["loc:"+loc] = true
			p.detected++
			observations = append(observations, fmt.Sprintf(
				"Seeing a cluster of companies in %s (%d so far).", c.Location, p.CompaniesByLocation[loc]))
		}
	}

	for _, ch := range data.Challenges {
		key := strings.TrimSpace(strings.ToLower(ch))
		if key == "" {
			continue
		}
		p.ChallengeCounts[key]++
		if p.ChallengeCounts[key] >= observationThreshold && !p.emitted["ch:"+key] {
			p.emitted["ch:"+key] = true
			p.detected++
			observations = append(observations, fmt.Sprintf(
				"The challenge %q keeps coming up (%d mentions).", ch, p.ChallengeCounts[key]))
		}
	}

	for _, info := range data.ExpansionInfo {
		if recentYearPattern.MatchString(info) {
			p.RecentSignals++
		}
	}
	if p.RecentSignals >= observationThreshold && !p.emitted["recent"] {
		p.emitted["recent"] = true
		p.detected++
		observations = append(observations, fmt.Sprintf(
			"Multiple recent expansion signals (%d dated items). This space is moving now.", p.RecentSignals))
	}

	return observations
}

// Detected returns how many patterns have crossed their threshold.
func (p *PatternTracker) Detected() int {
	return p.detected
}
