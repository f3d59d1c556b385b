package oai

import (
	"net/http"
	"os"

	"github.com/tmc/langchaingo/callbacks"
)

// ModelName identifies an OpenAI-compatible chat model.
type ModelName string

const (
	ModelNameGPT4oMini ModelName = "gpt-4o-mini"
	ModelNameGPT4o     ModelName = "gpt-4o"
	ModelNameGPT41     ModelName = "gpt-4.1"
	ModelNameGPT41Mini ModelName = "gpt-4.1-mini"
)

type options struct {
	apiKey           string
	baseURL          string
	modelName        ModelName
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option configures the client.
type Option func(*options)

// WithAPIKey sets the API key, overriding OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(o *options) {
		o.apiKey = apiKey
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithModel sets the default chat model.
func WithModel(model ModelName) Option {
	return func(o *options) {
		o.modelName = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithCallbacksHandler sets the callbacks handler.
func WithCallbacksHandler(handler callbacks.Handler) Option {
	return func(o *options) {
		o.callbacksHandler = handler
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
