package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientOptions points the client at an OpenAI-compatible endpoint.
type ClientOptions struct {
	// BaseURL overrides the API endpoint, for example a local
	// sentence-transformers server exposing /v1/embeddings.
	BaseURL string
	// APIKey overrides OPENAI_API_KEY.
	APIKey string
}

// Client wraps the OpenAI client for embedding generation and chat completions.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client. The API key comes from opts or the
// OPENAI_API_KEY environment variable and is required unless a custom
// BaseURL is set.
func NewClient(opts ClientOptions) (*Client, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	} else {
		// Local OpenAI-compatible servers ignore the key but the SDK sends one.
		reqOpts = append(reqOpts, option.WithAPIKey("unused"))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(reqOpts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., metadata generation).
func (c *Client) Client() *openai.Client {
	return c.client
}
