package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/spherical/image-ocr/internal/domain"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "google/gemini-2.0-flash-001"
)

// OpenRouterClient calls the OpenRouter chat completions API with streaming.
type OpenRouterClient struct {
	base
}

// chatMessage represents a chat message
type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

// contentPart represents a part of message content (text or image)
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Delta        chatDelta `json:"delta"`
	Message      chatDelta `json:"message"`
	FinishReason string    `json:"finish_reason"`
}

type chatDelta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewOpenRouterClient creates an OpenRouter client. An empty key is a config error.
func NewOpenRouterClient(apiKey string, opts Options) (*OpenRouterClient, error) {
	b, err := newBase("openrouter", apiKey, openRouterBaseURL, defaultOpenRouterModel, opts)
	if err != nil {
		return nil, err
	}
	return &OpenRouterClient{base: b}, nil
}

// Recognize streams the completion and returns the accumulated text.
func (c *OpenRouterClient) Recognize(ctx context.Context, req domain.RecognitionRequest) (string, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", domain.APIError("Failed to marshal request", err)
	}

	c.logger.Debug().Str("model", c.modelFor(req)).Str("source", req.SourceName).
		Int("image_bytes", len(req.Image)).Msg("Sending recognition request")

	resp, err := retryWithBackoff(ctx, c.retry, c.logger, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("HTTP-Referer", "https://github.com/spherical/image-ocr")
		httpReq.Header.Set("X-Title", "Image OCR")

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.saveResponse(req.SourceName, bodyBytes)
		return "", statusError(resp.StatusCode, bodyBytes)
	}

	var raw bytes.Buffer
	var stream io.Reader = resp.Body
	if c.responseDir != "" {
		stream = io.TeeReader(resp.Body, &raw)
	}

	var text strings.Builder
	parseErr := NewStreamParser(stream).ParseAll(func(chunk string) {
		text.WriteString(chunk)
	})
	if c.responseDir != "" {
		c.saveResponse(req.SourceName, raw.Bytes())
	}
	if parseErr != nil {
		return "", domain.APIError("Failed to parse stream", parseErr)
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", domain.APIError("no text in response", nil)
	}
	return out, nil
}

// buildRequest constructs the API request with the image as a data URL
func (c *OpenRouterClient) buildRequest(req domain.RecognitionRequest) chatRequest {
	dataURL := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	return chatRequest{
		Model: c.modelFor(req),
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		Stream: true,
	}
}

// Ping checks the credential against the key info endpoint.
func (c *OpenRouterClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/key", nil)
	if err != nil {
		return domain.APIError("Failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.APIError("Failed to reach service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, body)
	}
	return nil
}
