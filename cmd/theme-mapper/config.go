package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath        string
	OutDir        string
	StudyPath     string
	Model         string
	APIKey        string
	ProposalsPath string
	ThemesPath    string
	StorePath     string

	Pretty    bool
	Overwrite bool
	Resume    bool

	Accept string
	Reject string

	Concurrency int
	BatchSize   int

	MaxQuotesPerCall int
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
	if (c.Accept != "" || c.Reject != "") && c.StorePath == "" {
		return errors.New("-accept/-reject require -store")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency must be >= 0")
	}
	if c.BatchSize < 0 {
		return errors.New("batch-size must be >= 0")
	}
	if c.MaxQuotesPerCall < 0 {
		return errors.New("max-quotes-per-call must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:           filepath.FromSlash("study/quotes"),
		OutDir:           filepath.FromSlash("study/mapped"),
		StudyPath:        filepath.FromSlash("study/study.toml"),
		Model:            "gpt-5-mini",
		Resume:           true,
		Concurrency:      4,
		BatchSize:        25,
		MaxQuotesPerCall: 80,
	}
}
