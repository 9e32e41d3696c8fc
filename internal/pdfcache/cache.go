// Package pdfcache downloads paper PDFs into an on-disk cache and extracts
// plain text from their first page.
package pdfcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultTimeout        = 60 * time.Second
	DefaultUserAgent      = "arxiv-corpus/1.0"
)

var (
	ErrInvalidURL = errors.New("invalid PDF URL")
	// ErrReadTimeout reports a download that received no bytes for longer
	// than the read timeout.
	ErrReadTimeout = errors.New("PDF read timed out")
)

// Options configures a Fetcher.
type Options struct {
	// CacheDir holds downloaded PDFs, one file per cache key.
	CacheDir string
	// ConnectTimeout bounds dialing. ReadTimeout bounds the wait for response
	// headers and every gap between received body bytes. Timeout bounds the
	// whole download.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Timeout        time.Duration
	UserAgent      string
	// Force re-downloads even when the cache already holds the file.
	Force bool
}

// Fetcher downloads PDFs through the cache. Concurrent fetches of the same
// URL are safe: each download lands in its own temp file and is renamed into
// place, so readers never observe a partial PDF.
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

// NewFetcher creates the cache directory and an HTTP client with bounded
// connect, header and total timeouts. Body reads get an idle deadline of
// ReadTimeout per download.
func NewFetcher(opts Options, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("pdf cache directory not set")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pdf cache: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = opts.ReadTimeout

	return &Fetcher{
		client: &http.Client{Transport: transport, Timeout: opts.Timeout},
		opts:   opts,
		logger: logger,
	}, nil
}

var arxivPDFPath = regexp.MustCompile(`/pdf/(\d{4}\.\d{4,5}(?:v\d+)?)(?:\.pdf)?$`)

// CacheKey derives the cache file stem for a PDF URL: the arXiv id (with
// version) when the URL is a standard arXiv PDF link, otherwise the first 12
// hex digits of the URL's SHA-256.
func CacheKey(rawURL string) string {
	if m := arxivPDFPath.FindStringSubmatch(strings.TrimSpace(rawURL)); m != nil {
		return m[1]
	}
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:12]
}

// Path returns the cache location for rawURL.
func (f *Fetcher) Path(rawURL string) string {
	return filepath.Join(f.opts.CacheDir, CacheKey(rawURL)+".pdf")
}

// Download returns the cached file for rawURL, fetching it first when it is
// not cached yet or Force is set.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	dest := f.Path(rawURL)
	if !f.opts.Force {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			f.logger.Debug("PDF cache hit", "url", rawURL, "path", dest)
			return dest, nil
		}
	}

	if err := f.fetch(ctx, rawURL, dest); err != nil {
		return "", err
	}
	f.logger.Debug("Downloaded PDF", "url", rawURL, "path", dest)
	return dest, nil
}

// FirstPageText downloads (or reuses) the PDF and returns its first-page text.
func (f *Fetcher) FirstPageText(ctx context.Context, rawURL string) (string, error) {
	path, err := f.Download(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	text, err := ExtractFirstPage(path)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	return text, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, dest string) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".pdf-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// The idle timer starts once headers arrive and restarts on every read
	// that returns data. Firing cancels the request, which unblocks Read.
	idle := time.AfterFunc(f.opts.ReadTimeout, func() { cancel(ErrReadTimeout) })
	defer idle.Stop()

	_, copyErr := io.Copy(tmpFile, &idleReader{r: resp.Body, timer: idle, timeout: f.opts.ReadTimeout})
	closeErr := tmpFile.Close()
	if copyErr != nil && errors.Is(context.Cause(ctx), ErrReadTimeout) {
		copyErr = fmt.Errorf("%w after %s", ErrReadTimeout, f.opts.ReadTimeout)
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}
