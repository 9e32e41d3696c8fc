package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/arxiv-corpus/internal/progress"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// Abstracts are longer than search queries, so batches stay well below the
	// API maximum of 2048 inputs.
	DefaultBatchSize = 256
)

// Options configures an Embedder.
type Options struct {
	Model     string
	BatchSize int
	// Dimensions requests shortened vectors from models that support it.
	// Zero keeps the model's native size.
	Dimensions int
	// Progress receives a progress bar for multi-batch runs. Nil disables it.
	Progress io.Writer
}

// Embedder turns texts into unit-length vectors, so inner product equals
// cosine similarity. It batches requests and retries rate-limited calls with
// exponential backoff.
type Embedder struct {
	client *Client
	opts   Options
}

// NewEmbedder creates a new Embedder with the given client and options.
func NewEmbedder(client *Client, opts Options) *Embedder {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Embedder{client: client, opts: opts}
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string { return e.opts.Model }

// GenerateEmbeddings returns one normalized vector per text, in input order.
// Empty texts are embedded as a single space because the API rejects empty input.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	var bar progress.Bar = progress.New(nil, 0, "")
	if len(texts) > e.opts.BatchSize {
		bar = progress.New(e.opts.Progress, len(texts), "Embedding")
	}
	defer bar.Finish()

	for i := 0; i < len(texts); i += e.opts.BatchSize {
		end := min(i+e.opts.BatchSize, len(texts))
		batch := make([]string, end-i)
		for j, t := range texts[i:end] {
			if strings.TrimSpace(t) == "" {
				t = " "
			}
			batch[j] = t
		}

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("batch %d-%d: got %d embeddings for %d texts", i, end, len(embeddings), len(batch))
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
		bar.Add(len(batch))
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.opts.Model),
		}
		if e.opts.Dimensions > 0 {
			params.Dimensions = openai.Int(int64(e.opts.Dimensions))
		}

		resp, err := e.client.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err // Will retry with backoff
			}
			return backoff.Permanent(err)
		}

		// The API may return items out of order; place them by index.
		embeddings = make([][]float32, len(texts))
		for _, data := range resp.Data {
			if data.Index < 0 || int(data.Index) >= len(texts) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
			}
			embeddings[data.Index] = Normalize(toFloat32(data.Embedding))
		}
		for i, v := range embeddings {
			if v == nil {
				return backoff.Permanent(fmt.Errorf("missing embedding for input %d", i))
			}
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// Normalize scales v to unit Euclidean length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return v
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
