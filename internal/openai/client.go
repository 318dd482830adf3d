// Package openai provides the generative-service clients used by the podcast
// studio: speech synthesis, image synthesis, web news search and script
// writing, all against the OpenAI HTTP API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/podcast-studio/internal/core"
)

// API endpoints and paths.
const (
	apiSpeech      = "/v1/audio/speech"
	apiImages      = "/v1/images/generations"
	apiResponses   = "/v1/responses"
	apiCompletions = "/v1/chat/completions"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// Default values.
const (
	DefaultBaseURL       = "https://api.openai.com"
	DefaultSpeechModel   = "tts-1"
	DefaultImageModel    = "dall-e-3"
	DefaultTextModel     = "gpt-4.1-mini"
	DefaultImageSize     = "1024x1024"
	DefaultImageQuality  = "standard"
	DefaultMaxInputChars = 4096
	DefaultArticleCount  = 5
)

// Error messages.
const (
	errMissingAPIKey         = "OPENAI_API_KEY is not set"
	errFmtServiceErrorDetail = "service returned %s: %s (type: %s)"
	errFmtServiceNonOK       = "service returned %s: %s"
)

// Config captures the runtime settings of the client.
type Config struct {
	APIKey         string
	BaseURL        string
	SpeechModel    string
	ImageModel     string
	TextModel      string
	ImageSize      string
	ImageQuality   string
	MaxInputChars  int
	TimeoutSeconds int
}

// Client talks to the OpenAI HTTP API. A single client implements the
// speech, image, news and script ports.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client. A missing API key is not an error here; every call
// fails with a configuration error before any request is sent instead.
// A zero TimeoutSeconds leaves provider calls unbounded apart from the
// caller's context.
func New(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg:        normalize(cfg),
		httpClient: &http.Client{},
	}

	if cfg.TimeoutSeconds > 0 {
		client.httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// MaxInputChars is the provider's per-request input limit for speech.
func (c *Client) MaxInputChars() int {
	return c.cfg.MaxInputChars
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func normalize(cfg Config) Config {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	cfg.SpeechModel = orDefault(cfg.SpeechModel, DefaultSpeechModel)
	cfg.ImageModel = orDefault(cfg.ImageModel, DefaultImageModel)
	cfg.TextModel = orDefault(cfg.TextModel, DefaultTextModel)
	cfg.ImageSize = orDefault(cfg.ImageSize, DefaultImageSize)
	cfg.ImageQuality = orDefault(cfg.ImageQuality, DefaultImageQuality)

	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}

	return cfg
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}

	return value
}

func (c *Client) checkKey(operation string) error {
	if c.cfg.APIKey == "" {
		return core.Wrap(core.ErrConfiguration, operation, errMissingAPIKey, nil)
	}

	return nil
}

// postJSON sends payload to path and returns the raw response body of a 200
// response. Any other outcome is an upstream error.
func (c *Client) postJSON(ctx context.Context, operation, path string, payload any) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, operation, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.BaseURL+path,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, operation, "failed to create request", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAuthorization, bearerPrefix+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, operation, "failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Wrap(core.ErrUpstream, operation, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.Wrap(core.ErrUpstream, operation, "", parseErrorResponse(resp.Status, body))
	}

	return body, nil
}

// parseErrorResponse decodes the structured error body. If structured parsing
// fails it falls back to the raw body so the diagnostic is preserved.
func parseErrorResponse(status string, body []byte) error {
	var errorResp errorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf(errFmtServiceErrorDetail, status, errorResp.Error.Message, errorResp.Error.Type)
	}

	return fmt.Errorf(errFmtServiceNonOK, status, strings.TrimSpace(string(body)))
}
