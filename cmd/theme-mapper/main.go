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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Researcher edit mode needs no model access.
	if cfg.Accept != "" || cfg.Reject != "" {
		applied, err := applyResearcherEdits(ctx, cfg.StorePath, cfg.Accept, cfg.Reject)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "edits_applied=%d store=%s\n", applied, cfg.StorePath)
		return
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}

	study, err := analysis.LoadStudyConfig(cfg.StudyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(study.Codebooks) == 0 {
		fmt.Fprintln(os.Stderr, "study has no codebooks; nothing to map")
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}

	artifactFiles, err := collectQuoteArtifacts(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if len(artifactFiles) == 0 {
		fmt.Fprintln(os.Stderr, "no .quotes.json artifacts found")
		os.Exit(2)
	}

	proposalsPath := cfg.ProposalsPath
	if proposalsPath == "" {
		proposalsPath = filepath.Join(cfg.OutDir, "tag_proposals.jsonl")
	}
	themesPath := cfg.ThemesPath
	if themesPath == "" {
		themesPath = filepath.Join(cfg.OutDir, "themes.json")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	mapper := openAIThemeMapper{
		client:       &client,
		model:        cfg.Model,
		instructions: composeMappingInstructions(study.Themes, study.Codebooks),
	}
	validTags := codebookTagSet(study.Codebooks)

	if cfg.BatchSize == 0 {
		cfg.BatchSize = len(artifactFiles)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}

	var processed int64
	var mu sync.Mutex
	var allQuotes []analysis.Quote
	var allLinks []analysis.TagLink

	for bstart := 0; bstart < len(artifactFiles); bstart += cfg.BatchSize {
		bend := bstart + cfg.BatchSize
		if bend > len(artifactFiles) {
			bend = len(artifactFiles)
		}
		batch := artifactFiles[bstart:bend]

		sem := make(chan struct{}, cfg.Concurrency)
		errCh := make(chan error, len(batch))

		wg := sync.WaitGroup{}
		for _, artPath := range batch {
			wg.Add(1)
			go func(artPath string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}

				outPath := enrichedOutPath(cfg.InPath, cfg.OutDir, artPath)
				if cfg.Resume && fileutils.FileExists(outPath) {
					var existing enrichedArtifact
					if err := fileutils.ReadJSONFile(outPath, &existing); err == nil {
						mu.Lock()
						allQuotes = append(allQuotes, existing.Quotes...)
						allLinks = append(allLinks, existing.Proposals...)
						mu.Unlock()
					}
					return
				}

				var qs analysis.QuoteSet
				if err := fileutils.ReadJSONFile(artPath, &qs); err != nil {
					errCh <- fmt.Errorf("read quote artifact %s: %w", artPath, err)
					return
				}
				if len(qs.Quotes) == 0 {
					return
				}

				links, err := mapArtifact(ctx, mapper, &qs, validTags, cfg.MaxQuotesPerCall)
				if err != nil {
					errCh <- fmt.Errorf("map themes %s: %w", artPath, err)
					return
				}

				enriched := enrichedArtifact{
					SessionID: qs.SessionID,
					Quotes:    qs.Quotes,
					Proposals: links,
				}
				if err := writeEnrichedFile(outPath, enriched, cfg.Pretty, cfg.Overwrite); err != nil {
					if !(cfg.Resume && strings.Contains(err.Error(), "already exists")) {
						errCh <- err
						return
					}
				}

				mu.Lock()
				allQuotes = append(allQuotes, qs.Quotes...)
				allLinks = append(allLinks, links...)
				mu.Unlock()

				atomic.AddInt64(&processed, 1)
			}(artPath)
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

	sortTagLinks(allLinks)
	if err := fileutils.WriteJSONL(proposalsPath, allLinks); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	themes := analysis.ThemeLabels(study.Themes, allQuotes)
	if err := fileutils.WriteJSONFileAtomic(themesPath, themes, true); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		// Proposed state never overwrites researcher edits; the store enforces it.
		if err := st.UpsertQuotes(ctx, allQuotes); err == nil {
			err = st.UpsertTagLinks(ctx, allLinks)
		}
		if err != nil {
			_ = st.Close()
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		if err := st.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stdout, "sessions_processed=%d proposals=%d proposals_out=%s themes=%s store=%s\n",
		processed, len(allLinks), proposalsPath, themesPath, cfg.StorePath)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Path to a .quotes.json artifact OR directory of artifacts (recursively)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Output directory for enriched artifacts + proposals")
	fs.StringVar(&cfg.StudyPath, "study", cfg.StudyPath, "Path to the study TOML (themes, codebooks)")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "OpenAI model to use (e.g. gpt-5-mini)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print enriched JSON artifacts")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing enriched artifacts")
	fs.BoolVar(&cfg.Resume, "resume", cfg.Resume, "Skip artifacts that already have an enriched output")
	fs.StringVar(&cfg.ProposalsPath, "proposals", "", "Optional path for tag_proposals.jsonl (default: <out>/tag_proposals.jsonl)")
	fs.StringVar(&cfg.ThemesPath, "themes", "", "Optional path for themes.json (default: <out>/themes.json)")
	fs.StringVar(&cfg.StorePath, "store", "", "Optional SQLite study database to upsert quotes and proposals into")
	fs.StringVar(&cfg.Accept, "accept", "", "Accept tag links: comma-separated quoteID/tag pairs (requires -store; skips mapping)")
	fs.StringVar(&cfg.Reject, "reject", "", "Reject tag links: comma-separated quoteID/tag pairs (requires -store; skips mapping)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Max concurrent session inferences within a batch")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Batch size for session fan-out (0 = all)")
	fs.IntVar(&cfg.MaxQuotesPerCall, "max-quotes-per-call", cfg.MaxQuotesPerCall, "Max quotes per model call (0 = all at once)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	cfg.StudyPath = filepath.Clean(cfg.StudyPath)
	if cfg.ProposalsPath != "" {
		cfg.ProposalsPath = filepath.Clean(cfg.ProposalsPath)
	}
	if cfg.ThemesPath != "" {
		cfg.ThemesPath = filepath.Clean(cfg.ThemesPath)
	}
	if cfg.StorePath != "" {
		cfg.StorePath = filepath.Clean(cfg.StorePath)
	}
	return cfg, nil
}

type enrichedArtifact struct {
	SessionID string             `json:"session_id"`
	Quotes    []analysis.Quote   `json:"quotes"`
	Proposals []analysis.TagLink `json:"proposals"`
}

func collectQuoteArtifacts(inPath string) ([]string, error) {
	fi, err := os.Stat(inPath)
	if err != nil {
		return nil, fmt.Errorf("stat -in: %w", err)
	}
	if !fi.IsDir() {
		if !strings.HasSuffix(strings.ToLower(inPath), ".quotes.json") {
			return nil, fmt.Errorf("input file must be a .quotes.json artifact: %s", inPath)
		}
		return []string{inPath}, nil
	}

	var files []string
	err = filepath.WalkDir(inPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".quotes.json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func enrichedOutPath(inRoot, outRoot, artPath string) string {
	rel := artPath
	if fi, err := os.Stat(inRoot); err == nil && fi.IsDir() {
		if r, err := filepath.Rel(inRoot, artPath); err == nil {
			rel = r
		}
	}
	base := strings.TrimSuffix(rel, ".quotes.json") + ".enriched.json"
	return filepath.Join(outRoot, base)
}

func writeEnrichedFile(outPath string, art enrichedArtifact, pretty, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(outPath); err == nil {
			return fmt.Errorf("enriched artifact already exists: %s", outPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat enriched artifact: %w", err)
		}
	}
	if err := fileutils.WriteJSONFileAtomic(outPath, art, pretty); err != nil {
		return fmt.Errorf("write enriched artifact %s: %w", outPath, err)
	}
	return nil
}

func codebookTagSet(codebooks []analysis.Codebook) map[string]bool {
	tags := map[string]bool{}
	for _, cb := range codebooks {
		for _, g := range cb.Groups {
			for _, t := range g.Tags {
				tags[t] = true
			}
		}
	}
	return tags
}

// mapArtifact runs the model over one session's quotes, in slices when the
// session exceeds the per-call limit, and applies assignments in place.
func mapArtifact(ctx context.Context, mapper openAIThemeMapper, qs *analysis.QuoteSet, validTags map[string]bool, maxPerCall int) ([]analysis.TagLink, error) {
	if maxPerCall <= 0 || maxPerCall > len(qs.Quotes) {
		maxPerCall = len(qs.Quotes)
	}

	var links []analysis.TagLink
	for start := 0; start < len(qs.Quotes); start += maxPerCall {
		end := start + maxPerCall
		if end > len(qs.Quotes) {
			end = len(qs.Quotes)
		}
		resp, err := mapper.MapThemes(ctx, qs.Quotes[start:end])
		if err != nil {
			return nil, err
		}
		links = append(links, applyAssignments(qs.Quotes[start:end], resp, validTags)...)
	}
	return links, nil
}

// applyAssignments writes themes back onto the quotes and converts proposals
// into proposed-state tag links. Unknown quote IDs and off-codebook tags are
// dropped silently.
func applyAssignments(quotes []analysis.Quote, resp mapResponse, validTags map[string]bool) []analysis.TagLink {
	byID := make(map[string]*analysis.Quote, len(quotes))
	for i := range quotes {
		byID[quotes[i].ID] = &quotes[i]
	}

	var links []analysis.TagLink
	for _, a := range resp.Assignments {
		q, ok := byID[a.QuoteID]
		if !ok {
			continue
		}
		if theme := strings.ToLower(strings.TrimSpace(a.Theme)); theme != "" {
			q.Theme = theme
		}
		for _, p := range a.Proposals {
			if !validTags[p.Tag] {
				continue
			}
			links = append(links, analysis.TagLink{
				QuoteID:    q.ID,
				Tag:        p.Tag,
				State:      analysis.TagProposed,
				Confidence: p.Confidence,
			})
		}
	}
	return links
}

func sortTagLinks(links []analysis.TagLink) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].QuoteID != links[j].QuoteID {
			return links[i].QuoteID < links[j].QuoteID
		}
		return links[i].Tag < links[j].Tag
	})
}

// parseEditPairs splits "q1/dead-end,q2/price-doubt" into tag-link edits.
func parseEditPairs(s string) ([][2]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var pairs [][2]string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		quoteID, tag, ok := strings.Cut(part, "/")
		if !ok || quoteID == "" || tag == "" {
			return nil, fmt.Errorf("bad edit pair %q (want quoteID/tag)", part)
		}
		pairs = append(pairs, [2]string{quoteID, tag})
	}
	return pairs, nil
}

func applyResearcherEdits(ctx context.Context, storePath, accept, reject string) (int, error) {
	accepts, err := parseEditPairs(accept)
	if err != nil {
		return 0, err
	}
	rejects, err := parseEditPairs(reject)
	if err != nil {
		return 0, err
	}

	st, err := store.Open(storePath)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	applied := 0
	for _, p := range accepts {
		if err := st.SetTagState(ctx, p[0], p[1], analysis.TagAccepted); err != nil {
			return applied, err
		}
		applied++
	}
	for _, p := range rejects {
		if err := st.SetTagState(ctx, p[0], p[1], analysis.TagRejected); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

type openAIThemeMapper struct {
	client       *openai.Client
	model        string
	instructions string
}

var mapSchema = provider.GenerateSchema[mapResponse]()

type mapResponse struct {
	Assignments []themeAssignment `json:"assignments"`
}

type themeAssignment struct {
	QuoteID   string        `json:"quote_id"`
	Theme     string        `json:"theme"`
	Proposals []tagProposal `json:"proposals"`
}

type tagProposal struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

func (m openAIThemeMapper) MapThemes(ctx context.Context, quotes []analysis.Quote) (mapResponse, error) {
	if m.client == nil {
		return mapResponse{}, errors.New("openAIThemeMapper: client is nil")
	}
	if m.model == "" {
		return mapResponse{}, errors.New("openAIThemeMapper: model is empty")
	}

	input := buildQuotesPromptInput(quotes)
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "ThemeAssignments",
			Schema:      mapSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Theme and tag assignment JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           m.model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(m.instructions),
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

	resp, err := provider.CallWithRetry(ctx, m.client, params)
	if err != nil {
		return mapResponse{}, err
	}

	var out mapResponse
	if err := provider.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return mapResponse{}, fmt.Errorf("unmarshal theme assignments: %w", err)
	}
	return out, nil
}

type promptQuote struct {
	ID        string `json:"id"`
	Section   string `json:"section"`
	Sentiment string `json:"sentiment"`
	Text      string `json:"text"`
}

func buildQuotesPromptInput(quotes []analysis.Quote) string {
	pq := make([]promptQuote, 0, len(quotes))
	for _, q := range quotes {
		pq = append(pq, promptQuote{ID: q.ID, Section: q.Section, Sentiment: q.Sentiment, Text: q.Text})
	}
	blob, err := json.Marshal(pq)
	if err != nil {
		blob = []byte("[]")
	}
	return "QUOTES (JSON):\n" + string(blob)
}
