package analysis

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// StudyConfig is the per-study TOML configuration shared by the pipeline
// binaries: the section vocabulary, seed themes, an optional sentiment
// vocabulary override, and zero or more codebooks.
type StudyConfig struct {
	Name string `toml:"name"`

	// Sections is the ordered product screen/section vocabulary (row labels).
	Sections []string `toml:"sections"`

	// Themes seeds the emergent theme list; themes found on quotes but not
	// listed here are appended in first-seen order by the caller.
	Themes []string `toml:"themes"`

	// Sentiments overrides SentimentLabels when non-empty.
	Sentiments []string `toml:"sentiments"`

	// TopSignals truncates the ranked signal list (0 = DefaultTopSignals).
	TopSignals int `toml:"top_signals"`

	Codebooks []Codebook `toml:"codebook"`
}

// SentimentVocabulary returns the study's sentiment labels, falling back to
// the fixed default vocabulary.
func (c StudyConfig) SentimentVocabulary() []string {
	if len(c.Sentiments) > 0 {
		return c.Sentiments
	}
	return SentimentLabels
}

// Validate checks the study configuration for the fields every analysis needs.
func (c StudyConfig) Validate() error {
	if len(c.Sections) == 0 {
		return errors.New("study config: sections is empty")
	}
	if c.TopSignals < 0 {
		return errors.New("study config: top_signals must be >= 0")
	}
	seen := make(map[string]string)
	for _, cb := range c.Codebooks {
		if cb.Name == "" {
			return errors.New("study config: codebook missing name")
		}
		if len(cb.Groups) == 0 {
			return fmt.Errorf("study config: codebook %q has no groups", cb.Name)
		}
		for _, g := range cb.Groups {
			if g.Name == "" {
				return fmt.Errorf("study config: codebook %q has a group without a name", cb.Name)
			}
			for _, t := range g.Tags {
				key := cb.Name + "/" + t
				if prev, ok := seen[key]; ok {
					return fmt.Errorf("study config: tag %q appears in groups %q and %q of codebook %q", t, prev, g.Name, cb.Name)
				}
				seen[key] = g.Name
			}
		}
	}
	return nil
}

// LoadStudyConfig reads and validates a study TOML file.
func LoadStudyConfig(path string) (StudyConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return StudyConfig{}, fmt.Errorf("LoadStudyConfig: read: %w", err)
	}
	var cfg StudyConfig
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return StudyConfig{}, fmt.Errorf("LoadStudyConfig: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return StudyConfig{}, err
	}
	return cfg, nil
}

// ThemeLabels merges the configured seed themes with the themes present on
// quotes, preserving seed order and then first appearance.
func ThemeLabels(seed []string, quotes []Quote) []string {
	labels := append([]string(nil), seed...)
	seen := make(map[string]struct{}, len(labels))
	for _, t := range labels {
		seen[t] = struct{}{}
	}
	for _, q := range quotes {
		if q.Theme == "" {
			continue
		}
		if _, ok := seen[q.Theme]; ok {
			continue
		}
		seen[q.Theme] = struct{}{}
		labels = append(labels, q.Theme)
	}
	return labels
}
