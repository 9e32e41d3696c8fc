// Package config loads arxiv-corpus settings from a YAML file, ARXIV_CORPUS_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bull/arxiv-corpus/internal/arxiv"
	"github.com/bull/arxiv-corpus/internal/retrieval"
)

// EnvPrefix prefixes every environment override: crawl.max_results is read
// from ARXIV_CORPUS_CRAWL_MAX_RESULTS.
const EnvPrefix = "ARXIV_CORPUS"

// ConfigName is the config file base name searched for in . and
// ~/.config/arxiv-corpus.
const ConfigName = "arxiv-corpus"

type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	IndexDir  string          `mapstructure:"index_dir"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
}

type CrawlConfig struct {
	Categories []string      `mapstructure:"categories"`
	Query      string        `mapstructure:"query"`
	MaxResults int           `mapstructure:"max_results"`
	Delay      time.Duration `mapstructure:"delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	Endpoint   string        `mapstructure:"endpoint"`
}

type PDFConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Force          bool          `mapstructure:"force"`
}

type LLMConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	PromptFile string `mapstructure:"prompt_file"`
}

type EnrichConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type RetrievalConfig struct {
	PoolK         int     `mapstructure:"pool_k"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
	MaxResults    int     `mapstructure:"max_results"`
	// Backend is "local" or "qdrant"; see retrieval.Options.
	Backend string `mapstructure:"backend"`
}

// SetDefaults registers every key with its default. Keys must be registered
// for environment overrides of nested keys to be seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("index_dir", "index/faiss")

	v.SetDefault("crawl.categories", []string{"cs.AI", "cs.CL", "cs.LG"})
	v.SetDefault("crawl.query", "")
	v.SetDefault("crawl.max_results", 5000)
	v.SetDefault("crawl.delay", 4*time.Second)
	v.SetDefault("crawl.timeout", 60*time.Second)
	v.SetDefault("crawl.user_agent", "arxiv-corpus/1.0")
	v.SetDefault("crawl.endpoint", "https://export.arxiv.org/api/query")

	v.SetDefault("pdf.connect_timeout", 10*time.Second)
	v.SetDefault("pdf.read_timeout", 30*time.Second)
	v.SetDefault("pdf.timeout", 60*time.Second)
	v.SetDefault("pdf.force", false)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 16000)
	v.SetDefault("llm.prompt_file", "")

	v.SetDefault("enrich.concurrency", 1)

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 256)
	v.SetDefault("embedding.dimensions", 0)

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "papers")

	v.SetDefault("retrieval.pool_k", 200)
	v.SetDefault("retrieval.min_similarity", 0.40)
	v.SetDefault("retrieval.max_results", 20)
	v.SetDefault("retrieval.backend", retrieval.BackendLocal)
}

// NewViper returns a viper instance with defaults, environment binding and,
// when one is found, the config file. cfgFile overrides the search path and
// must exist.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Crawl.Categories = splitList(cfg.Crawl.Categories)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both YAML lists and comma-separated environment values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings no stage can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.IndexDir == "" {
		errs = append(errs, errors.New("index_dir must be set"))
	}
	if c.Crawl.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("crawl.max_results must not be negative, got %d", c.Crawl.MaxResults))
	}
	if c.Crawl.Delay < arxiv.MinDelay {
		errs = append(errs, fmt.Errorf("crawl.delay must be at least %s, got %s", arxiv.MinDelay, c.Crawl.Delay))
	}
	if c.Enrich.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("enrich.concurrency must be at least 1, got %d", c.Enrich.Concurrency))
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be at least 1, got %d", c.Embedding.BatchSize))
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_similarity must be within [-1, 1], got %g", c.Retrieval.MinSimilarity))
	}
	switch c.Retrieval.Backend {
	case retrieval.BackendLocal:
	case retrieval.BackendQdrant:
		if !c.Qdrant.Enabled {
			errs = append(errs, errors.New("retrieval.backend qdrant requires qdrant.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("retrieval.backend must be %q or %q, got %q", retrieval.BackendLocal, retrieval.BackendQdrant, c.Retrieval.Backend))
	}
	if c.Qdrant.Enabled && (c.Qdrant.Host == "" || c.Qdrant.Port <= 0) {
		errs = append(errs, errors.New("qdrant.host and qdrant.port must be set when qdrant is enabled"))
	}
	return errors.Join(errs...)
}
