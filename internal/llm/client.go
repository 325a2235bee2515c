// Package llm talks to the multimodal recognition services.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/image-ocr/internal/config"
	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/imaging"
	"github.com/spherical/image-ocr/internal/observability"
)

// Client is a Recognizer that can also verify its credentials.
type Client interface {
	domain.Recognizer
	Ping(ctx context.Context) error
}

// Options holds settings shared by every provider client.
type Options struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Retry       RetryConfig
	ResponseDir string // raw responses are saved here when set
	HTTPClient  *http.Client
	Logger      *observability.Logger
}

// NewRecognizer builds the client for the configured provider.
func NewRecognizer(cfg *config.Config, apiKey string, logger *observability.Logger) (Client, error) {
	opts := Options{
		BaseURL: cfg.Service.BaseURL,
		Model:   cfg.Service.Model,
		Timeout: cfg.Service.Timeout,
		Retry: RetryConfig{
			MaxRetries:     cfg.Service.MaxRetries,
			InitialBackoff: initialBackoff,
			MaxBackoff:     maxBackoff,
		},
		Logger: logger,
	}
	if cfg.Debug.SaveAPIResponses {
		opts.ResponseDir = cfg.Debug.Dir
	}

	switch cfg.Service.Provider {
	case "gemini", "":
		return NewGeminiClient(apiKey, opts)
	case "openrouter":
		return NewOpenRouterClient(apiKey, opts)
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown provider: %q", cfg.Service.Provider), nil)
	}
}

// base holds the plumbing common to both providers.
type base struct {
	apiKey      string
	baseURL     string
	model       string
	retry       RetryConfig
	responseDir string
	httpClient  *http.Client
	logger      *observability.Logger
}

func newBase(provider, apiKey, defaultURL, defaultModel string, opts Options) (base, error) {
	if strings.TrimSpace(apiKey) == "" {
		return base{}, domain.ConfigError(fmt.Sprintf("%s API key is empty", provider), nil)
	}

	b := base{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		retry:       opts.Retry,
		responseDir: opts.ResponseDir,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
	}
	if b.baseURL == "" {
		b.baseURL = defaultURL
	}
	if b.model == "" {
		b.model = defaultModel
	}
	if b.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		b.httpClient = &http.Client{Timeout: timeout}
	}
	if b.logger == nil {
		b.logger = observability.Nop()
	}
	b.logger = b.logger.WithOperation(provider)
	return b, nil
}

func (b *base) modelFor(req domain.RecognitionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return b.model
}

// saveResponse writes the raw response body for troubleshooting. Failures
// are logged and otherwise ignored.
func (b *base) saveResponse(sourceName string, body []byte) {
	if b.responseDir == "" {
		return
	}
	if err := os.MkdirAll(b.responseDir, 0o755); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to create debug directory")
		return
	}
	path := filepath.Join(b.responseDir, fmt.Sprintf("response_%s.txt", imaging.SafeName(sourceName)))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		b.logger.Warn().Err(err).Str("path", path).Msg("Failed to save API response")
		return
	}
	b.logger.Debug().Str("path", path).Msg("Saved API response")
}

// apiErrorBody is the error envelope both providers use.
type apiErrorBody struct {
	Error *struct {
		Code    interface{} `json:"code"`
		Message string      `json:"message"`
		Status  string      `json:"status"`
	} `json:"error"`
}

// statusError converts a non-2xx response into an api error.
func statusError(code int, body []byte) error {
	var detail error
	var env apiErrorBody
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
		detail = errors.New(env.Error.Message)
	} else if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > 500 {
			s = s[:500] + "..."
		}
		detail = errors.New(s)
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.APIError(fmt.Sprintf("authentication failed (HTTP %d)", code), detail)
	case http.StatusTooManyRequests:
		return domain.APIError("rate limit exceeded (HTTP 429)", detail)
	default:
		return domain.APIError(fmt.Sprintf("service returned HTTP %d", code), detail)
	}
}
