package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig configures the OpenAI-compatible API client.
type ClientConfig struct {
	// APIKey falls back to OPENAI_API_KEY when empty.
	APIKey string
	// BaseURL targets any OpenAI-compatible server (OpenRouter, vLLM, Ollama).
	// Empty means api.openai.com.
	BaseURL string
}

// Client wraps the OpenAI client shared by embedding and chat completion calls.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client. It returns an error if no API key is available.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled by callers with backoff so attempts stay bounded by their timeouts.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., llm).
func (c *Client) Client() *openai.Client {
	return c.client
}
