// Package arxiv harvests paper metadata from the arXiv Atom query API into
// raw staging batches.
package arxiv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/progress"
	"github.com/bull/arxiv-corpus/internal/record"
)

const (
	// DefaultEndpoint is the arXiv query API.
	DefaultEndpoint = "https://export.arxiv.org/api/query"

	// MaxPageSize is the largest page the API serves in one response.
	MaxPageSize = 2000

	// DefaultDelay is the pause after every non-empty page.
	DefaultDelay = 4 * time.Second

	// MinDelay is the shortest pause the API terms of use allow between
	// requests. Shorter delays are raised to it.
	MinDelay = 3 * time.Second

	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 60 * time.Second

	// DefaultUserAgent identifies the harvester to the API.
	DefaultUserAgent = "arxiv-corpus/1.0"
)

// Options configures a Harvester. Zero values fall back to the defaults above.
type Options struct {
	Endpoint  string
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	// Progress receives a progress bar while paging. Nil disables it.
	Progress io.Writer
}

// Request describes one harvest run.
type Request struct {
	Categories []string
	Query      string
	MaxResults int
}

// Result summarizes a harvest run.
type Result struct {
	// Count is the number of records written after deduplication.
	Count int
	// Name is the raw batch file written to the corpus store.
	Name string
	// Fetched is the number of feed entries received before deduplication.
	Fetched    int
	Pages      int
	Duplicates int
	Duration   time.Duration
}

// Harvester pages through the arXiv API and writes one raw batch per run.
type Harvester struct {
	client *http.Client
	store  corpus.Store
	opts   Options
	logger *slog.Logger

	// sleep and now are replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewHarvester creates a Harvester writing into store.
func NewHarvester(store corpus.Store, opts Options, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	switch {
	case opts.Delay <= 0:
		opts.Delay = DefaultDelay
	case opts.Delay < MinDelay:
		logger.Warn("Raising page delay to API minimum", "requested", opts.Delay, "delay", MinDelay)
		opts.Delay = MinDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Harvester{
		client: &http.Client{Timeout: opts.Timeout},
		store:  store,
		opts:   opts,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Harvest fetches up to req.MaxResults entries, deduplicates them by id and
// writes them as one raw batch. Upstream failures end paging early and keep
// what was collected; only cancellation and local write failures are returned.
func (h *Harvester) Harvest(ctx context.Context, req Request) (*Result, error) {
	start := h.now()
	result := &Result{Name: BatchName(start, req.Categories)}
	crawlDate := CrawlDate(start)

	query := BuildQuery(req.Categories, req.Query)
	h.logger.Info("Starting harvest", "query", query, "max_results", req.MaxResults, "batch", result.Name)

	// 1. Page the feed
	entries, err := h.fetchAll(ctx, query, req.MaxResults, result)
	if err != nil {
		return nil, err
	}
	result.Fetched = len(entries)

	// 2. Convert and dedup
	docs := make([]record.RawDocument, 0, len(entries))
	for _, e := range entries {
		doc := EntryToRaw(e, crawlDate)
		if err := doc.Validate(); err != nil {
			h.logger.Warn("Dropping feed entry", "entry_id", e.ID, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	deduped := record.DedupByID(docs)
	result.Duplicates = len(docs) - len(deduped)
	result.Count = len(deduped)

	// 3. Persist the complete batch in one write
	if err := corpus.WriteRecords(h.store, corpus.StageRaw, result.Name, deduped); err != nil {
		return nil, fmt.Errorf("write batch: %w", err)
	}

	result.Duration = h.now().Sub(start)
	h.logger.Info("Harvest complete",
		"written", result.Count,
		"fetched", result.Fetched,
		"duplicates", result.Duplicates,
		"pages", result.Pages,
		"batch", result.Name,
		"duration", result.Duration,
	)
	return result, nil
}

func (h *Harvester) fetchAll(ctx context.Context, query string, maxResults int, result *Result) ([]*atom.Entry, error) {
	bar := progress.New(h.opts.Progress, maxResults, "Fetching")
	defer bar.Finish()

	var entries []*atom.Entry
	for len(entries) < maxResults {
		ask := min(MaxPageSize, maxResults-len(entries))

		feed, err := h.fetchPage(ctx, query, len(entries), ask)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("harvest cancelled: %w", ctx.Err())
			}
			h.logger.Warn("Stopping harvest early", "start", len(entries), "error", err)
			break
		}
		result.Pages++

		if result.Pages == 1 {
			h.logger.Debug("Feed totals",
				"total_results", extensionValue(feed.Extensions, opensearchPrefix, "totalResults"),
				"items_per_page", extensionValue(feed.Extensions, opensearchPrefix, "itemsPerPage"),
				"got", len(feed.Entries),
			)
		}

		if len(feed.Entries) == 0 {
			h.logger.Info("Feed exhausted", "start", len(entries))
			break
		}

		entries = append(entries, feed.Entries...)
		bar.Add(len(feed.Entries))

		// Mandatory politeness delay, including after the last page.
		if err := h.sleep(ctx, h.opts.Delay); err != nil {
			return nil, fmt.Errorf("harvest cancelled: %w", err)
		}
	}
	return entries, nil
}

func (h *Harvester) fetchPage(ctx context.Context, query string, start, size int) (*atom.Feed, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(size))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.opts.UserAgent)
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	h.logger.Debug("Fetched page", "start", start, "size", size, "status", resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	fp := &atom.Parser{}
	feed, err := fp.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
