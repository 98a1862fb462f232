package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fieldnotehq/quote-loom/analysis"
	"github.com/fieldnotehq/quote-loom/analysis/fileutils"
	"github.com/fieldnotehq/quote-loom/analysis/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	study, err := analysis.LoadStudyConfig(cfg.StudyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}

	quotes, links, err := loadInputs(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if len(quotes) == 0 {
		fmt.Fprintln(os.Stderr, "no quotes to analyze")
		os.Exit(1)
	}

	topN := cfg.TopSignals
	if topN == 0 {
		topN = study.TopSignals
	}
	themes := analysis.ThemeLabels(study.Themes, quotes)

	results := []analysis.NamedResult{
		{Name: "sentiment", Result: analysis.AnalyzeSentiment(
			quotes, study.Sections, themes, study.SentimentVocabulary(), topN)},
	}
	for _, cb := range study.Codebooks {
		results = append(results, analysis.NamedResult{
			Name: cb.Name,
			Result: analysis.AnalyzeCodebook(
				quotes, links, cb, study.Sections, themes, topN),
		})
	}

	analysisPath := cfg.AnalysisPath
	if analysisPath == "" {
		analysisPath = filepath.Join(cfg.OutDir, "analysis.json")
	}
	reportPath := cfg.ReportPath
	if reportPath == "" {
		reportPath = filepath.Join(cfg.OutDir, "report.md")
	}

	artifact := analysisArtifact{Study: study.Name, Results: results}
	if err := fileutils.WriteJSONFileAtomic(analysisPath, artifact, cfg.Pretty); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	report := analysis.RenderMarkdownReport(study.Name, results)
	if err := fileutils.WriteFileAtomicSameDir(reportPath, []byte(report), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("write report: %w", err).Error())
		os.Exit(1)
	}

	if !cfg.NoTable {
		for _, nr := range results {
			if len(nr.Result.Signals) == 0 {
				continue
			}
			fmt.Fprintln(os.Stdout, signalSummaryTable(nr.Name, nr.Result))
		}
	}

	var runIDs []string
	if cfg.SaveRun {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		for _, nr := range results {
			id, err := st.SaveRun(ctx, nr.Name, nr.Result)
			if err != nil {
				_ = st.Close()
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
			runIDs = append(runIDs, id)
		}
		if err := st.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	totalSignals := 0
	for _, nr := range results {
		totalSignals += len(nr.Result.Signals)
	}
	fmt.Fprintf(os.Stdout, "analyses=%d signals=%d quotes=%d analysis_out=%s report=%s runs=%s\n",
		len(results), totalSignals, len(quotes), analysisPath, reportPath, strings.Join(runIDs, ","))
}

// analysisArtifact is the serialized shape of one scan. No timestamps: the
// same inputs must produce a byte-identical artifact.
type analysisArtifact struct {
	Study   string                 `json:"study"`
	Results []analysis.NamedResult `json:"results"`
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Directory of .enriched.json / .quotes.json artifacts (or a single artifact)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for analysis.json + report.md")
	fs.StringVar(&cfg.StudyPath, "study", cfg.StudyPath, "Path to the study TOML")
	fs.StringVar(&cfg.StorePath, "store", "", "SQLite study database to load quotes and tag links from (overrides -in)")
	fs.StringVar(&cfg.ProposalsPath, "proposals", "", "Optional tag_proposals.jsonl to merge with artifact proposals")
	fs.StringVar(&cfg.AnalysisPath, "analysis", "", "Optional path for analysis.json (default: <out>/analysis.json)")
	fs.StringVar(&cfg.ReportPath, "report", "", "Optional path for report.md (default: <out>/report.md)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print analysis.json")
	fs.BoolVar(&cfg.SaveRun, "save-run", false, "Persist each analysis result to the store (requires -store)")
	fs.BoolVar(&cfg.NoTable, "no-table", false, "Suppress the stdout signal summary tables")
	fs.IntVar(&cfg.TopSignals, "top-signals", 0, "Keep only the top N ranked signals per analysis (0 = study setting or default)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.InPath != "" {
		cfg.InPath = filepath.Clean(cfg.InPath)
	}
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	cfg.StudyPath = filepath.Clean(cfg.StudyPath)
	if cfg.StorePath != "" {
		cfg.StorePath = filepath.Clean(cfg.StorePath)
	}
	if cfg.ProposalsPath != "" {
		cfg.ProposalsPath = filepath.Clean(cfg.ProposalsPath)
	}
	return cfg, nil
}

// loadInputs gathers the immutable snapshot the scan runs over: every quote
// and every tag link, from the store or from artifact files.
func loadInputs(ctx context.Context, cfg Config) ([]analysis.Quote, []analysis.TagLink, error) {
	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		defer st.Close()

		quotes, err := st.ListQuotes(ctx)
		if err != nil {
			return nil, nil, err
		}
		links, err := st.ListTagLinks(ctx)
		if err != nil {
			return nil, nil, err
		}
		return quotes, links, nil
	}

	quotes, links, err := loadArtifacts(cfg.InPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ProposalsPath != "" {
		extra, err := fileutils.ReadJSONL[analysis.TagLink](cfg.ProposalsPath)
		if err != nil {
			return nil, nil, err
		}
		links = append(links, extra...)
	}
	return quotes, links, nil
}

type enrichedArtifact struct {
	SessionID string             `json:"session_id"`
	Quotes    []analysis.Quote   `json:"quotes"`
	Proposals []analysis.TagLink `json:"proposals"`
}

// loadArtifacts reads enriched artifacts first, then plain quote artifacts
// for any session the enriched pass has not covered.
func loadArtifacts(inPath string) ([]analysis.Quote, []analysis.TagLink, error) {
	enrichedPaths, quotePaths, err := collectArtifacts(inPath)
	if err != nil {
		return nil, nil, err
	}
	if len(enrichedPaths) == 0 && len(quotePaths) == 0 {
		return nil, nil, fmt.Errorf("no quote artifacts under %s", inPath)
	}

	var quotes []analysis.Quote
	var links []analysis.TagLink
	seen := map[string]bool{}

	for _, p := range enrichedPaths {
		var art enrichedArtifact
		if err := fileutils.ReadJSONFile(p, &art); err != nil {
			return nil, nil, err
		}
		quotes = append(quotes, art.Quotes...)
		links = append(links, art.Proposals...)
		seen[art.SessionID] = true
	}
	for _, p := range quotePaths {
		var qs analysis.QuoteSet
		if err := fileutils.ReadJSONFile(p, &qs); err != nil {
			return nil, nil, err
		}
		if seen[qs.SessionID] {
			continue
		}
		quotes = append(quotes, qs.Quotes...)
	}
	return quotes, links, nil
}

func collectArtifacts(inPath string) (enriched, plain []string, err error) {
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, nil, fmt.Errorf("stat -in: %w", err)
	}
	if !fi.IsDir() {
		lp := strings.ToLower(inPath)
		switch {
		case strings.HasSuffix(lp, ".enriched.json"):
			return []string{inPath}, nil, nil
		case strings.HasSuffix(lp, ".quotes.json"):
			return nil, []string{inPath}, nil
		default:
			return nil, nil, fmt.Errorf("input file must be a .enriched.json or .quotes.json artifact: %s", inPath)
		}
	}

	err = filepath.WalkDir(inPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lp := strings.ToLower(path)
		switch {
		case strings.HasSuffix(lp, ".enriched.json"):
			enriched = append(enriched, path)
		case strings.HasSuffix(lp, ".quotes.json"):
			plain = append(plain, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk input dir: %w", err)
	}
	sort.Strings(enriched)
	sort.Strings(plain)
	return enriched, plain, nil
}
