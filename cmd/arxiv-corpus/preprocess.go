package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/embedding"
	"github.com/bull/arxiv-corpus/internal/enrich"
	"github.com/bull/arxiv-corpus/internal/metadata"
	"github.com/bull/arxiv-corpus/internal/pdfcache"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Enrich pending raw batches",
	Long: `Enriches every raw batch in data_dir/raw, oldest first:

1. Detects the abstract language
2. Downloads the PDF into data_dir/pdf_cache and reads its first page
3. Asks the LLM for summary and keywords (and affiliations when the first
   page was read)

Each processed batch is written to data_dir/processed under the same name and
its raw input is moved to data_dir/archive. A batch that fails stays in raw
for the next run; per-record failures only leave fields empty.`,
	RunE: runPreprocess,
}

func init() {
	preprocessCmd.Flags().Int("concurrency", 0, "records enriched in parallel within one batch")
	preprocessCmd.Flags().Bool("force-pdf", false, "re-download PDFs already in the cache")

	flagBindings["preprocess"] = map[string]string{
		"enrich.concurrency": "concurrency",
		"pdf.force":          "force-pdf",
	}
	rootCmd.AddCommand(preprocessCmd)
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	store, err := corpus.NewDirStore(cfg.DataDir)
	if err != nil {
		return err
	}

	fetcher, err := pdfcache.NewFetcher(pdfcache.Options{
		CacheDir:       store.CacheDir(),
		ConnectTimeout: cfg.PDF.ConnectTimeout,
		ReadTimeout:    cfg.PDF.ReadTimeout,
		Timeout:        cfg.PDF.Timeout,
		UserAgent:      cfg.Crawl.UserAgent,
		Force:          cfg.PDF.Force,
	}, logger)
	if err != nil {
		return fmt.Errorf("Failed to create PDF fetcher: %w", err)
	}

	llmClient, err := embedding.NewClient(embedding.ClientOptions{BaseURL: cfg.LLM.BaseURL})
	if err != nil {
		return fmt.Errorf("Failed to create LLM client: %w", err)
	}

	prompts := metadata.DefaultPrompts()
	if cfg.LLM.PromptFile != "" {
		prompts, err = metadata.LoadPrompts(cfg.LLM.PromptFile)
		if err != nil {
			return err
		}
	}
	generator := metadata.NewGenerator(
		metadata.NewOpenAICompleter(llmClient.Client(), cfg.LLM.Model),
		prompts,
		cfg.LLM.MaxTokens,
		logger,
	)

	enricher := enrich.NewEnricher(store, fetcher, generator, enrich.Options{
		Concurrency: cfg.Enrich.Concurrency,
		Progress:    progressWriter(cmd),
	}, logger)

	result, err := enricher.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("preprocess failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Preprocess complete!")
	fmt.Printf("  Files: %d processed, %d failed\n", result.Processed, result.Failed)
	var records, pdfText, degraded, rejected int
	for _, f := range result.Files {
		records += f.Records
		pdfText += f.PDFText
		degraded += f.Degraded
		rejected += f.Rejected
	}
	fmt.Printf("  Records: %d (PDF text %d, LLM degraded %d, rejected %d)\n", records, pdfText, degraded, rejected)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))

	if result.Failed > 0 {
		fmt.Println()
		fmt.Println("Failed files (left in raw for retry):")
		for _, f := range result.Files {
			if f.Err != nil {
				fmt.Printf("  - %s: %v\n", f.Name, f.Err)
			}
		}
	}
	return nil
}
