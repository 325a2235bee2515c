package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spherical/image-ocr/internal/domain"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
)

// GeminiClient calls the Google Gemini generateContent endpoint.
type GeminiClient struct {
	base
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// NewGeminiClient creates a Gemini client. An empty key is a config error.
func NewGeminiClient(apiKey string, opts Options) (*GeminiClient, error) {
	b, err := newBase("gemini", apiKey, geminiBaseURL, defaultGeminiModel, opts)
	if err != nil {
		return nil, err
	}
	return &GeminiClient{base: b}, nil
}

// Recognize sends one image with its prompt and returns the extracted text.
func (c *GeminiClient) Recognize(ctx context.Context, req domain.RecognitionRequest) (string, error) {
	model := c.modelFor(req)

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{
					MimeType: req.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0},
	})
	if err != nil {
		return "", domain.APIError("Failed to marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	c.logger.Debug().Str("model", model).Str("source", req.SourceName).
		Int("image_bytes", len(req.Image)).Msg("Sending recognition request")

	resp, err := retryWithBackoff(ctx, c.retry, c.logger, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.APIError("Failed to read response", err)
	}
	c.saveResponse(req.SourceName, respBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp.StatusCode, respBody)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", domain.APIError("Failed to parse response", err)
	}

	return candidateText(result)
}

// candidateText joins the text parts of the first candidate.
func candidateText(result geminiResponse) (string, error) {
	if len(result.Candidates) == 0 {
		if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			return "", domain.APIError(fmt.Sprintf("request blocked: %s", result.PromptFeedback.BlockReason), nil)
		}
		return "", domain.APIError("no candidates in response", nil)
	}

	candidate := result.Candidates[0]
	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
			return "", domain.APIError(fmt.Sprintf("no text in response (finish reason %s)", candidate.FinishReason), nil)
		}
		return "", domain.APIError("no text in response", nil)
	}
	return text, nil
}

// Ping fetches the model resource, which checks both credential and model name.
func (c *GeminiClient) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/models/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.APIError("Failed to build request", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

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
