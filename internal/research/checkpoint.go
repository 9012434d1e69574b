package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Checkpointer writes one JSON snapshot per (assignment, cycle) pair.
// Files are never overwritten, so every cycle of every run stays
// independently recoverable and inspectable.
type Checkpointer struct {
	dir    string
	runID  string
	logger *zap.Logger
}

// NewCheckpointer creates a checkpointer rooted at dir.
func NewCheckpointer(dir, runID string, logger *zap.Logger) *Checkpointer {
	return &Checkpointer{dir: dir, runID: runID, logger: logger}
}

// Save persists the full run state after a cycle and returns the file
// path. The filename is a truncated assignment title plus the cycle
// index; collisions from earlier runs get a timestamp suffix instead of
// clobbering the existing file.
func (c *Checkpointer) Save(a Assignment, findings []Finding, entities EntityState, cycle int) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint dir: %w", err)
	}

	cp := Checkpoint{
		Assignment:    a,
		Findings:      findings,
		FoundEntities: entities,
		Cycle:         cycle,
		Timestamp:     time.Now().UTC(),
		RunID:         c.runID,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}

	base := fmt.Sprintf("%s_%d", slugify(a.Title, 30), cycle)
	path := filepath.Join(c.dir, base+".json")
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(c.dir, fmt.Sprintf("%s_%d.json", base, time.Now().UnixNano()))
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}

	c.logger.Info("checkpoint saved",
		zap.String("path", path),
		zap.Int("cycle", cycle),
		zap.Int("findings", len(findings)))
	return path, nil
}

// LoadCheckpoint reads a checkpoint file back.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases the title, replaces runs of non-alphanumerics with
// underscores, and cuts to maxLen.
func slugify(title string, maxLen int) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(title), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "assignment"
	}
	if len(s) > maxLen {
		s = strings.Trim(s[:maxLen], "_")
	}
	return s
}
