// Package enrich turns raw harvested batches into enriched batches: language
// detection, first-page PDF text and model-derived metadata per record.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/metadata"
	"github.com/bull/arxiv-corpus/internal/progress"
	"github.com/bull/arxiv-corpus/internal/record"
)

// PDFSource yields the first-page text of the PDF at url.
type PDFSource interface {
	FirstPageText(ctx context.Context, url string) (string, error)
}

// Extractor derives structured metadata. It reports failures inside the
// result rather than as an error.
type Extractor interface {
	Generate(ctx context.Context, req metadata.Request) metadata.Result
}

// Options configures an Enricher.
type Options struct {
	// Concurrency is the number of records enriched in parallel within one
	// file. Output order never depends on it.
	Concurrency int
	// Progress receives one progress bar per file. Nil disables it.
	Progress io.Writer
}

// FileResult reports the outcome of one raw batch.
type FileResult struct {
	Name     string
	Records  int
	Rejected int
	PDFText  int
	Degraded int
	// Err is set when the file could not be enriched. Such files stay in the
	// raw area for a later retry.
	Err error
}

// RunResult summarizes one enrichment run over every pending raw batch.
type RunResult struct {
	Files     []FileResult
	Processed int
	Failed    int
	Duration  time.Duration
}

// Enricher processes raw batches from a corpus store.
type Enricher struct {
	store     corpus.Store
	pdf       PDFSource
	extractor Extractor
	opts      Options
	logger    *slog.Logger

	// detect is replaced in tests.
	detect func(string) string
}

// NewEnricher creates an Enricher. A nil pdf source disables PDF fetching so
// every record takes the abstract-only path.
func NewEnricher(store corpus.Store, pdf PDFSource, extractor Extractor, opts Options, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Enricher{
		store:     store,
		pdf:       pdf,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
		detect:    DetectLanguage,
	}
}

// Run enriches every pending raw batch in name order. A failing file is
// reported in the result and never stops the others; Run itself only fails
// when the pending list cannot be read.
func (e *Enricher) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	names, err := e.store.ListPending(corpus.StageRaw)
	if err != nil {
		return nil, fmt.Errorf("list raw batches: %w", err)
	}
	result := &RunResult{}
	if len(names) == 0 {
		e.logger.Info("No raw batches to process")
		return result, nil
	}
	e.logger.Info("Starting enrichment", "files", len(names), "concurrency", e.opts.Concurrency)

	for _, name := range names {
		fr := e.EnrichFile(ctx, name)
		result.Files = append(result.Files, fr)
		if fr.Err != nil {
			result.Failed++
			e.logger.Warn("Failed to process file", "file", name, "error", fr.Err)
			continue
		}
		result.Processed++
		e.logger.Info("Processed and archived file",
			"file", name,
			"records", fr.Records,
			"pdf_text", fr.PDFText,
			"degraded", fr.Degraded,
			"rejected", fr.Rejected,
		)
	}

	result.Duration = time.Since(start)
	e.logger.Info("Enrichment complete",
		"processed", result.Processed,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, nil
}

// docOutcome carries per-record counters back from the workers.
type docOutcome struct {
	pdfText  bool
	degraded bool
}

// EnrichFile enriches one raw batch, writes the processed batch under the
// same name and archives the input. The input is archived only after the
// output is fully written.
func (e *Enricher) EnrichFile(ctx context.Context, name string) FileResult {
	fr := FileResult{Name: name}

	raws, err := corpus.ReadRecords[record.RawDocument](e.store, corpus.StageRaw, name)
	if err != nil {
		fr.Err = fmt.Errorf("read: %w", err)
		return fr
	}

	valid := make([]record.RawDocument, 0, len(raws))
	for i, raw := range raws {
		if err := raw.Validate(); err != nil {
			e.logger.Warn("Rejecting raw record", "file", name, "line", i+1, "error", err)
			fr.Rejected++
			continue
		}
		valid = append(valid, raw)
	}

	out := make([]record.EnrichedDocument, len(valid))
	outcomes := make([]docOutcome, len(valid))

	bar := progress.New(e.opts.Progress, len(valid), "Enriching "+name)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, raw := range valid {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("record %s: panic: %v", raw.ID, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i], outcomes[i] = e.enrichDocument(gctx, raw)
			bar.Add(1)
			return nil
		})
	}
	err = g.Wait()
	bar.Finish()
	if err != nil {
		fr.Err = err
		return fr
	}

	for i := range out {
		if err := out[i].Validate(); err != nil {
			fr.Err = fmt.Errorf("enriched record %s: %w", out[i].ID, err)
			return fr
		}
		if outcomes[i].pdfText {
			fr.PDFText++
		}
		if outcomes[i].degraded {
			fr.Degraded++
		}
	}
	fr.Records = len(out)

	if err := corpus.WriteRecords(e.store, corpus.StageProcessed, name, out); err != nil {
		fr.Err = fmt.Errorf("write: %w", err)
		return fr
	}
	if err := e.store.Archive(name); err != nil {
		fr.Err = fmt.Errorf("archive: %w", err)
		return fr
	}
	return fr
}

// enrichDocument never fails: each sub-step falls back to its default value.
func (e *Enricher) enrichDocument(ctx context.Context, raw record.RawDocument) (record.EnrichedDocument, docOutcome) {
	doc := record.NewEnriched(raw)
	var outcome docOutcome

	// 1. Language from the abstract
	doc.Language = e.detect(doc.Abstract)

	// 2. First-page text
	if url := record.Deref(doc.URLPDF); url != "" && e.pdf != nil {
		text, err := e.pdf.FirstPageText(ctx, url)
		if err != nil {
			e.logger.Warn("PDF text unavailable", "id", doc.ID, "url", url, "error", err)
		} else {
			doc.PDFRaw = text
			outcome.pdfText = text != ""
		}
	}

	// 3. Structured metadata, with text when we have it
	res := e.extractor.Generate(ctx, metadata.NewRequest(doc.ID, doc.PDFRaw, doc.Abstract))
	if !res.OK() {
		e.logger.Warn("Metadata extraction degraded", "id", doc.ID, "variant", res.Variant.String(), "error", res.Degraded)
		outcome.degraded = true
		return doc, outcome
	}
	doc.Summary = res.Summary
	doc.Keywords = res.Keywords
	if res.Variant == metadata.WithSourceText {
		doc.Affiliations = res.Affiliations
	}
	doc.Normalize()

	e.logger.Debug("Enriched record", "id", doc.ID, "language", doc.Language, "variant", res.Variant.String())
	return doc, outcome
}
