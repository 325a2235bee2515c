package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/image-ocr/internal/domain"
)

func sse(chunks ...string) string {
	var sb strings.Builder
	sb.WriteString(": OPENROUTER PROCESSING\n\n")
	for _, c := range chunks {
		fmt.Fprintf(&sb, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
	}
	sb.WriteString("data: {\"choices\":[{\"delta\":{\"content\":\"\"},\"finish_reason\":\"stop\"}]}\n\n")
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func TestNewOpenRouterClient_Defaults(t *testing.T) {
	c, err := NewOpenRouterClient("sk-or-test", Options{})
	require.NoError(t, err)
	assert.Equal(t, openRouterBaseURL, c.baseURL)
	assert.Equal(t, defaultOpenRouterModel, c.model)

	_, err = NewOpenRouterClient("", Options{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestOpenRouterClient_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-or-test", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		assert.Equal(t, "gemini-test", body.Model)
		require.Len(t, body.Messages, 1)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "Extract all text", body.Messages[0].Content[0].Text)
		assert.True(t, strings.HasPrefix(body.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse("第一", "コマ", "\nsecond line")))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, err := NewOpenRouterClient("sk-or-test", Options{BaseURL: srv.URL, ResponseDir: dir})
	require.NoError(t, err)

	text, err := c.Recognize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "第一コマ\nsecond line", text)

	saved, err := os.ReadFile(filepath.Join(dir, "response_a.png.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "data: [DONE]")
}

func TestOpenRouterClient_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"No auth credentials found","code":401}}`, "No auth credentials found"},
		{"rate limit", http.StatusTooManyRequests, `{}`, "rate limit"},
		{"empty stream", http.StatusOK, "data: [DONE]\n\n", "no text in response"},
		{"mid-stream error", http.StatusOK, "data: {\"error\":{\"message\":\"provider overloaded\"}}\n\n", "provider overloaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewOpenRouterClient("sk-or-test", Options{BaseURL: srv.URL})
			require.NoError(t, err)
			_, err = c.Recognize(context.Background(), testRequest())
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestOpenRouterClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/key", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"label":"test"}}`))
	}))
	defer srv.Close()

	good, err := NewOpenRouterClient("good", Options{BaseURL: srv.URL})
	require.NoError(t, err)
	assert.NoError(t, good.Ping(context.Background()))

	bad, err := NewOpenRouterClient("bad", Options{BaseURL: srv.URL})
	require.NoError(t, err)
	err = bad.Ping(context.Background())
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestStreamParser(t *testing.T) {
	t.Run("accumulates content and skips noise", func(t *testing.T) {
		input := ": keep-alive\n\nevent: ping\ndata: not json\n\n" + sse("a", "b")
		var got []string
		err := NewStreamParser(strings.NewReader(input)).ParseAll(func(s string) { got = append(got, s) })
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got)
	})

	t.Run("content on the final chunk is kept", func(t *testing.T) {
		input := "data: {\"choices\":[{\"delta\":{\"content\":\"last\"},\"finish_reason\":\"stop\"}]}\n\n"
		var got []string
		require.NoError(t, NewStreamParser(strings.NewReader(input)).ParseAll(func(s string) { got = append(got, s) }))
		assert.Equal(t, []string{"last"}, got)
	})

	t.Run("stream without DONE ends cleanly", func(t *testing.T) {
		input := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"
		var got string
		require.NoError(t, NewStreamParser(strings.NewReader(input)).ParseAll(func(s string) { got += s }))
		assert.Equal(t, "x", got)
	})

	t.Run("non-streamed message body", func(t *testing.T) {
		input := "data: {\"choices\":[{\"message\":{\"content\":\"whole\"},\"finish_reason\":\"stop\"}]}\n"
		chunk, err := NewStreamParser(strings.NewReader(input)).Next()
		require.NoError(t, err)
		assert.Equal(t, "whole", chunk.Content)
		assert.True(t, chunk.Done)
	})
}
