package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/fieldnotehq/quote-loom/analysis"
	"github.com/fieldnotehq/quote-loom/analysis/fileutils"
	"github.com/fieldnotehq/quote-loom/analysis/provider"
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

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
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

	transcriptFiles, err := collectTranscriptFiles(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(transcriptFiles) == 0 {
		fmt.Fprintln(os.Stderr, "no transcript .json files found")
		os.Exit(2)
	}
	if cfg.MaxSessions > 0 && len(transcriptFiles) > cfg.MaxSessions {
		transcriptFiles = transcriptFiles[:cfg.MaxSessions]
	}

	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(cfg.OutDir, "quote_index.jsonl")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	extractor := openAIQuoteExtractor{
		client:       &client,
		model:        cfg.Model,
		instructions: composeExtractionInstructions(study.Sections, study.SentimentVocabulary()),
	}

	if cfg.BatchSize == 0 {
		cfg.BatchSize = len(transcriptFiles)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}

	var processed int64
	var mu sync.Mutex
	var forStore []analysis.Quote

	for bstart := 0; bstart < len(transcriptFiles); bstart += cfg.BatchSize {
		bend := bstart + cfg.BatchSize
		if bend > len(transcriptFiles) {
			bend = len(transcriptFiles)
		}
		batch := transcriptFiles[bstart:bend]

		sem := make(chan struct{}, cfg.Concurrency)
		errCh := make(chan error, len(batch))

		wg := sync.WaitGroup{}
		for _, trPath := range batch {
			wg.Add(1)
			go func(trPath string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}

				outPath := quoteSetOutPath(cfg.InPath, cfg.OutDir, trPath)
				if cfg.Resume && fileutils.FileExists(outPath) {
					if cfg.StorePath != "" {
						var existing analysis.QuoteSet
						if err := fileutils.ReadJSONFile(outPath, &existing); err == nil {
							mu.Lock()
							forStore = append(forStore, existing.Quotes...)
							mu.Unlock()
						}
					}
					return
				}

				transcript, err := readTranscriptFile(trPath)
				if err != nil {
					errCh <- fmt.Errorf("read transcript %s: %w", trPath, err)
					return
				}

				resp, err := extractor.ExtractQuotes(ctx, transcript, promptOptions{MaxTranscriptChars: cfg.MaxTranscriptChars})
				if err != nil {
					resp, err = extractor.ExtractQuotes(ctx, transcript, promptOptions{MaxTranscriptChars: cfg.MaxTranscriptChars / 2})
					if err != nil {
						errCh <- fmt.Errorf("extract quotes %s: %w", trPath, err)
						return
					}
				}

				qs := quoteSetFrom(transcript, study, resp)
				if err := writeQuoteSetFile(outPath, qs, cfg.Pretty, cfg.Overwrite); err != nil {
					if !(cfg.Resume && strings.Contains(err.Error(), "already exists")) {
						errCh <- err
						return
					}
				}

				if cfg.StorePath != "" {
					mu.Lock()
					forStore = append(forStore, qs.Quotes...)
					mu.Unlock()
				}

				atomic.AddInt64(&processed, 1)
			}(trPath)
		}

		wg.Wait()
		close(errCh)

		for err := range errCh {
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
		}
	}

	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if err := st.UpsertQuotes(ctx, forStore); err != nil {
			_ = st.Close()
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if err := st.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	if cfg.Reindex {
		if err := rebuildQuoteIndex(cfg.OutDir, indexPath); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	} else {
		fmt.Fprintln(os.Stderr, "warning: -reindex=false may produce an incomplete index when -resume=true")
	}

	fmt.Fprintf(os.Stdout, "sessions_processed=%d quotes_out=%s index=%s store=%s\n", processed, cfg.OutDir, indexPath, cfg.StorePath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to transcript JSON file OR directory of transcript JSON files (recursively)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for quote artifacts + index")
	fs.StringVar(&cfg.StudyPath, "study", cfg.StudyPath, "Path to the study TOML (sections, themes, sentiment vocabulary)")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use (e.g. gpt-5-mini)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print quote JSON artifacts")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing quote artifacts")
	fs.StringVar(&cfg.IndexPath, "index", "", "Optional path for quote_index.jsonl (default: <out>/quote_index.jsonl)")
	fs.StringVar(&cfg.StorePath, "store", "", "Optional SQLite study database to upsert quotes into")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", 0, "Process only the first N sessions (0 = all)")
	fs.BoolVar(&cfg.Resume, "resume", cfg.Resume, "Skip transcripts that already have a quote artifact")
	fs.BoolVar(&cfg.Reindex, "reindex", cfg.Reindex, "Rebuild quote_index.jsonl from existing artifacts at end of run (recommended with -resume)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Max concurrent session inferences within a batch")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Batch size for session fan-out (0 = all)")
	fs.IntVar(&cfg.MaxTranscriptChars, "max-transcript-chars", cfg.MaxTranscriptChars, "Max transcript chars per prompt before truncation (0 disables)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	cfg.StudyPath = filepath.Clean(cfg.StudyPath)
	if cfg.IndexPath != "" {
		cfg.IndexPath = filepath.Clean(cfg.IndexPath)
	}
	if cfg.StorePath != "" {
		cfg.StorePath = filepath.Clean(cfg.StorePath)
	}
	return cfg, nil
}

// Transcript is one moderated session as delivered by the transcription step.
type Transcript struct {
	SessionID  string      `json:"session_id"`
	StudyName  string      `json:"study_name,omitempty"`
	Utterances []Utterance `json:"utterances"`
}

type Utterance struct {
	ParticipantID  string  `json:"participant_id"`
	StartTime      float64 `json:"start_time"`
	SegmentOrdinal int     `json:"segment_ordinal"`
	Text           string  `json:"text"`
}

func collectTranscriptFiles(inPath string) ([]string, error) {
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, fmt.Errorf("stat -in: %w", err)
	}
	if !fi.IsDir() {
		if strings.ToLower(filepath.Ext(inPath)) != ".json" {
			return nil, fmt.Errorf("input file must be .json: %s", inPath)
		}
		return []string{inPath}, nil
	}

	var files []string
	err = filepath.WalkDir(inPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if strings.EqualFold(name, "quotes") || strings.EqualFold(name, "analysis") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".json" {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".quotes.json") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func readTranscriptFile(path string) (Transcript, error) {
	var t Transcript
	if err := fileutils.ReadJSONFile(path, &t); err != nil {
		return Transcript{}, err
	}
	if t.SessionID == "" {
		t.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(t.Utterances) == 0 {
		return Transcript{}, errors.New("not a transcript file (no utterances)")
	}
	return t, nil
}

func quoteSetOutPath(inRoot, outRoot, trPath string) string {
	rel := trPath
	if fi, err := os.Stat(inRoot); err == nil && fi.IsDir() {
		if r, err := filepath.Rel(inRoot, trPath); err == nil {
			rel = r
		}
	}
	base := strings.TrimSuffix(rel, filepath.Ext(rel)) + ".quotes.json"
	return filepath.Join(outRoot, base)
}

// quoteSetFrom converts model output into a persisted QuoteSet: IDs assigned,
// off-vocabulary labels dropped, intensities clamped to 1..3.
func quoteSetFrom(t Transcript, study analysis.StudyConfig, resp extractResponse) analysis.QuoteSet {
	sections := make(map[string]bool, len(study.Sections))
	for _, s := range study.Sections {
		sections[s] = true
	}
	sentiments := make(map[string]bool)
	for _, s := range study.SentimentVocabulary() {
		sentiments[s] = true
	}

	qs := analysis.QuoteSet{StudyName: study.Name, SessionID: t.SessionID}
	for _, eq := range resp.Quotes {
		text := strings.TrimSpace(eq.Text)
		if text == "" || eq.ParticipantID == "" {
			continue
		}
		if !sections[eq.Section] {
			continue
		}
		sentiment := strings.ToLower(strings.TrimSpace(eq.Sentiment))
		if !sentiments[sentiment] {
			continue
		}
		intensity := eq.Intensity
		if intensity < 1 {
			intensity = 1
		}
		if intensity > 3 {
			intensity = 3
		}
		qs.Quotes = append(qs.Quotes, analysis.Quote{
			ID:             uuid.NewString(),
			SessionID:      t.SessionID,
			ParticipantID:  eq.ParticipantID,
			Text:           text,
			Section:        eq.Section,
			Theme:          strings.TrimSpace(eq.Theme),
			Sentiment:      sentiment,
			Intensity:      intensity,
			StartTime:      eq.StartTime,
			SegmentOrdinal: eq.SegmentOrdinal,
		})
	}
	return qs
}

func writeQuoteSetFile(outPath string, qs analysis.QuoteSet, pretty, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return fmt.Errorf("quote artifact already exists: %s", outPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat quote artifact: %w", err)
		}
	}
	if err := fileutils.WriteJSONFileAtomic(outPath, qs, pretty); err != nil {
		return fmt.Errorf("write quote artifact %s: %w", outPath, err)
	}
	return nil
}

type QuoteIndexRecord struct {
	SessionID    string   `json:"session_id"`
	QuotesPath   string   `json:"quotes_path"`
	QuoteCount   int      `json:"quote_count"`
	Participants []string `json:"participants"`
	Sections     []string `json:"sections"`
}

func rebuildQuoteIndex(outDir, indexPath string) error {
	var artifactPaths []string
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".quotes.json") {
			artifactPaths = append(artifactPaths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reindex: walk quote artifacts: %w", err)
	}
	sort.Strings(artifactPaths)

	var records []QuoteIndexRecord
	for _, p := range artifactPaths {
		var qs analysis.QuoteSet
		if err := fileutils.ReadJSONFile(p, &qs); err != nil {
			continue
		}
		records = append(records, indexRecordFrom(p, qs))
	}
	if err := fileutils.WriteJSONL(indexPath, records); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

func indexRecordFrom(path string, qs analysis.QuoteSet) QuoteIndexRecord {
	participants := map[string]bool{}
	sections := map[string]bool{}
	for _, q := range qs.Quotes {
		participants[q.ParticipantID] = true
		sections[q.Section] = true
	}
	rec := QuoteIndexRecord{
		SessionID:  qs.SessionID,
		QuotesPath: path,
		QuoteCount: len(qs.Quotes),
	}
	for p := range participants {
		rec.Participants = append(rec.Participants, p)
	}
	for s := range sections {
		rec.Sections = append(rec.Sections, s)
	}
	sort.Strings(rec.Participants)
	sort.Strings(rec.Sections)
	return rec
}

type openAIQuoteExtractor struct {
	client       *openai.Client
	model        string
	instructions string
}

var extractSchema = provider.GenerateSchema[extractResponse]()

type promptOptions struct {
	MaxTranscriptChars int
}

type extractResponse struct {
	Quotes []extractedQuote `json:"quotes"`
}

type extractedQuote struct {
	ParticipantID  string  `json:"participant_id"`
	Text           string  `json:"text"`
	Section        string  `json:"section"`
	Theme          string  `json:"theme"`
	Sentiment      string  `json:"sentiment"`
	Intensity      int     `json:"intensity"`
	StartTime      float64 `json:"start_time"`
	SegmentOrdinal int     `json:"segment_ordinal"`
}

func (e openAIQuoteExtractor) ExtractQuotes(ctx context.Context, t Transcript, opt promptOptions) (extractResponse, error) {
	if e.client == nil {
		return extractResponse{}, errors.New("openAIQuoteExtractor: client is nil")
	}
	if e.model == "" {
		return extractResponse{}, errors.New("openAIQuoteExtractor: model is empty")
	}

	input := buildTranscriptPromptInput(t, opt)
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "SessionQuotes",
			Schema:      extractSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Extracted session quotes JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           e.model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(e.instructions),
		ServiceTier:     responses.ResponseNewParamsServiceTierFlex,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := provider.CallWithRetry(ctx, e.client, params)
	if err != nil {
		return extractResponse{}, err
	}

	var out extractResponse
	if err := provider.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return extractResponse{}, fmt.Errorf("unmarshal extracted quotes: %w", err)
	}
	return out, nil
}

func buildTranscriptPromptInput(t Transcript, opt promptOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SESSION: %s\n", t.SessionID)
	if t.StudyName != "" {
		fmt.Fprintf(&b, "STUDY: %s\n", t.StudyName)
	}
	b.WriteString("\nTRANSCRIPT (JSON):\n")

	blob, err := json.Marshal(t.Utterances)
	if err != nil {
		blob = []byte("[]")
	}
	body := string(blob)
	if opt.MaxTranscriptChars > 0 && len(body) > opt.MaxTranscriptChars {
		body = body[:opt.MaxTranscriptChars]
	}
	b.WriteString(body)
	return b.String()
}
