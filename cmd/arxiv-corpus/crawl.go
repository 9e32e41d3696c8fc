package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/arxiv-corpus/internal/arxiv"
	"github.com/bull/arxiv-corpus/internal/corpus"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Harvest arXiv listings into a raw batch",
	Long: `Pages through the arXiv query API, newest submissions first, and writes
one raw batch named <timestamp>_<categories>.jsonl into data_dir/raw.

Entries are deduplicated by arXiv id (first seen wins). A failing page ends
paging and keeps what was collected so far.`,
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringSlice("categories", nil, "arXiv categories to harvest, e.g. cs.AI,cs.CL")
	crawlCmd.Flags().String("query", "", "additional arXiv search_query expression")
	crawlCmd.Flags().Int("max-results", 0, "maximum number of entries to fetch")
	crawlCmd.Flags().Duration("delay", 0, "pause between feed pages")

	flagBindings["crawl"] = map[string]string{
		"crawl.categories":  "categories",
		"crawl.query":       "query",
		"crawl.max_results": "max-results",
		"crawl.delay":       "delay",
	}
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	store, err := corpus.NewDirStore(cfg.DataDir)
	if err != nil {
		return err
	}

	harvester := arxiv.NewHarvester(store, arxiv.Options{
		Endpoint:  cfg.Crawl.Endpoint,
		UserAgent: cfg.Crawl.UserAgent,
		Delay:     cfg.Crawl.Delay,
		Timeout:   cfg.Crawl.Timeout,
		Progress:  progressWriter(cmd),
	}, logger)

	fmt.Printf("Harvesting %s (max %d)...\n", arxiv.BuildQuery(cfg.Crawl.Categories, cfg.Crawl.Query), cfg.Crawl.MaxResults)
	result, err := harvester.Harvest(cmd.Context(), arxiv.Request{
		Categories: cfg.Crawl.Categories,
		Query:      cfg.Crawl.Query,
		MaxResults: cfg.Crawl.MaxResults,
	})
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Crawl complete!")
	fmt.Printf("  Records: %d (fetched %d, duplicates %d)\n", result.Count, result.Fetched, result.Duplicates)
	fmt.Printf("  Pages: %d\n", result.Pages)
	fmt.Printf("  Batch: %s\n", filepath.Join(cfg.DataDir, string(corpus.StageRaw), result.Name))
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	return nil
}
