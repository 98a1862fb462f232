package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath    string
	OutDir    string
	StudyPath string
	Model     string
	APIKey    string
	IndexPath string
	StorePath string

	Pretty    bool
	Overwrite bool

	Resume  bool
	Reindex bool

	MaxSessions int
	Concurrency int
	BatchSize   int

	MaxTranscriptChars int
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing -in")
	}
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.StudyPath == "" {
		return errors.New("missing -study")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.MaxSessions < 0 {
		return errors.New("max-sessions must be >= 0")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.BatchSize < 0 {
		return errors.New("batch-size must be >= 0")
	}
	if c.MaxTranscriptChars < 0 {
		return errors.New("max-transcript-chars must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:             filepath.FromSlash("study/sessions"),
		OutDir:             filepath.FromSlash("study/quotes"),
		StudyPath:          filepath.FromSlash("study/study.toml"),
		Model:              "gpt-5-mini",
		Resume:             true,
		Reindex:            true,
		Concurrency:        4,
		BatchSize:          25,
		MaxTranscriptChars: 60_000,
	}
}
