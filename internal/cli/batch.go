package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/venedict/inquest/internal/model"
	"github.com/venedict/inquest/internal/pipeline"
	"github.com/venedict/inquest/internal/render"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Research multiple questions from a file in parallel",
	Long: `Batch runs the research pipeline for several questions concurrently:
- Read questions from the input file (one per line, # for comments)
- Run research in parallel with a configurable worker count
- Write an individual JSON and Markdown report per question

Example:
  inquest batch questions.txt
  inquest batch questions.txt --concurrency 2 --output-dir ./reports
  inquest batch questions.txt --depth quick --timeout 20m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of questions researched at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./inquest-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")

	batchCmd.Flags().StringVar(&depth, "depth", "standard", "research depth (quick, standard, deep)")
	batchCmd.Flags().IntVar(&maxSources, "max-sources", 0, "max sources per question (0 = config default)")
	batchCmd.Flags().StringVar(&style, "style", "apa", "citation style (apa, mla, chicago, ieee, harvard)")
	batchCmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip claim verification calls")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetches)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	questions, err := readQuestions(args[0])
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions found in %s", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	cfg.Output.Verbose = verbose

	logger, err := newLogger(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	// One orchestrator for the whole batch: provider rate limits and
	// health tracking are shared across questions
	orch, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "Researching %d questions with %d workers\n\n", len(questions), concurrency)

	opts := pipeline.Options{
		MaxSources:    maxSources,
		Depth:         depth,
		VerifyClaims:  !noVerify,
		CitationStyle: model.CitationStyle(style),
	}

	type batchResult struct {
		question string
		result   *model.ResearchResult
		err      error
	}

	sem := make(chan struct{}, concurrency)
	results := make([]batchResult, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := orch.Research(ctx, q, opts)
			results[i] = batchResult{question: q, result: result, err: err}
		}(i, q)
	}
	wg.Wait()

	r := render.NewRenderer(false)
	successCount := 0
	failureCount := 0
	for _, br := range results {
		if br.err != nil && br.result == nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", br.question, br.err)
			continue
		}

		slug := sanitizeFilename(br.question)
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")
		if err := r.RenderJSON(br.result, jsonPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: write JSON: %v\n", br.question, err)
			continue
		}
		if err := r.RenderMarkdown(br.result, mdPath); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: write Markdown: %v\n", br.question, err)
			continue
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%s, confidence %.2f)\n",
			br.question, br.result.Status, br.result.OverallConfidence)
	}

	fmt.Fprintf(os.Stderr, "\nBatch complete: %d ok, %d failed, output in %s\n",
		successCount, failureCount, outputDir)

	return nil
}

// readQuestions loads one question per line, skipping blanks and comments
func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return questions, nil
}

// sanitizeFilename turns a question into a safe, bounded file stem
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "question"
	}
	return slug
}
