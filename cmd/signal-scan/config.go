package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InPath        string
	OutDir        string
	StudyPath     string
	StorePath     string
	ProposalsPath string
	AnalysisPath  string
	ReportPath    string

	Pretty  bool
	SaveRun bool
	NoTable bool

	TopSignals int
}

func (c Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("missing -out")
	}
	if c.StudyPath == "" {
		return errors.New("missing -study")
	}
	if c.InPath == "" && c.StorePath == "" {
		return errors.New("need -in or -store")
	}
	if c.SaveRun && c.StorePath == "" {
		return errors.New("-save-run requires -store")
	}
	if c.TopSignals < 0 {
		return errors.New("top-signals must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath:    filepath.FromSlash("study/mapped"),
		OutDir:    filepath.FromSlash("study/analysis"),
		StudyPath: filepath.FromSlash("study/study.toml"),
	}
}
