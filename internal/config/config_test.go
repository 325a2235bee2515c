package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/image-ocr/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OCR_API_KEY_ENV", "OCR_PROVIDER", "OCR_MODEL", "OCR_INPUT_DIR", "OCR_OUTPUT_FILE",
		"OCR_PROMPT_STYLE", "OCR_LANGUAGE", "OCR_REQUEST_DELAY", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gemini", cfg.Service.Provider)
	assert.Equal(t, "detailed", cfg.OCR.PromptStyle)
	assert.Equal(t, time.Second, cfg.Processing.RequestDelay)
	assert.Equal(t, 0, cfg.Service.MaxRetries)
	assert.True(t, cfg.Processing.ContinueOnError)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "ocr.yaml")
	content := `
service:
  model: gemini-1.5-pro
  timeout: 30s
ocr:
  prompt_style: structured
  language: Japanese
image:
  max_width: 1024
  max_height: 768
processing:
  request_delay: 250ms
output:
  file: out/report.txt
  include_timestamp: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-1.5-pro", cfg.Service.Model)
	assert.Equal(t, 30*time.Second, cfg.Service.Timeout)
	assert.Equal(t, "structured", cfg.OCR.PromptStyle)
	assert.Equal(t, "Japanese", cfg.OCR.Language)
	assert.Equal(t, 1024, cfg.Image.MaxWidth)
	assert.Equal(t, 768, cfg.Image.MaxHeight)
	assert.Equal(t, 250*time.Millisecond, cfg.Processing.RequestDelay)
	assert.Equal(t, "out/report.txt", cfg.Output.File)
	assert.False(t, cfg.Output.IncludeTimestamp)
	// Untouched keys keep their defaults.
	assert.True(t, cfg.Output.IncludeFilename)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OCR_PROVIDER", "openrouter")
	t.Setenv("OCR_MODEL", "google/gemini-2.5-flash")
	t.Setenv("OCR_REQUEST_DELAY", "2s")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Service.Provider)
	assert.Equal(t, "OPENROUTER_API_KEY", cfg.Service.APIKeyEnv)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Service.Model)
	assert.Equal(t, 2*time.Second, cfg.Processing.RequestDelay)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_ProviderDefaults(t *testing.T) {
	clearEnv(t)

	t.Run("openrouter from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ocr.yaml")
		require.NoError(t, os.WriteFile(path, []byte("service:\n  provider: openrouter\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "openrouter", cfg.Service.Provider)
		assert.Equal(t, "google/gemini-2.0-flash-001", cfg.Service.Model)
		assert.Equal(t, "OPENROUTER_API_KEY", cfg.Service.APIKeyEnv)
	})

	t.Run("explicit settings win", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ocr.yaml")
		content := "service:\n  provider: openrouter\n  model: anthropic/claude-3.5-sonnet\n  api_key_env: MY_ROUTER_KEY\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.Service.Model)
		assert.Equal(t, "MY_ROUTER_KEY", cfg.Service.APIKeyEnv)
	})

	t.Run("gemini by default", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "gemini-2.0-flash", cfg.Service.Model)
		assert.Equal(t, "GOOGLE_API_KEY", cfg.Service.APIKeyEnv)
	})
}

func TestLoad_RedisURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://:s3cret@cache.internal:6380/2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache.internal:6380", cfg.Cache.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Cache.Redis.Password)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)

	t.Setenv("REDIS_URL", "memcached://cache:11211")
	_, err = Load("")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("service: [unclosed"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown prompt style", func(c *Config) { c.OCR.PromptStyle = "poetic" }},
		{"unknown provider", func(c *Config) { c.Service.Provider = "tesseract" }},
		{"empty model", func(c *Config) { c.Service.Model = " " }},
		{"negative delay", func(c *Config) { c.Processing.RequestDelay = -time.Second }},
		{"zero max width", func(c *Config) { c.Image.MaxWidth = 0 }},
		{"bad jpeg quality", func(c *Config) { c.Image.JPEGQuality = 101 }},
		{"bad reading order", func(c *Config) { c.OCR.ReadingOrder = "bottom-up" }},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"too many retries", func(c *Config) { c.Service.MaxRetries = 50 }},
		{"bad translation mode", func(c *Config) {
			c.OCR.Translation.Enabled = true
			c.OCR.Translation.Mode = "interleaved"
		}},
		{"error log without path", func(c *Config) {
			c.Output.SaveErrorLog = true
			c.Output.ErrorLogFile = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
		})
	}
}

func TestAPIKey(t *testing.T) {
	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "from-env")
		cfg := DefaultConfig()
		cfg.Service.APIKey = "from-file"
		key, err := cfg.APIKey()
		require.NoError(t, err)
		assert.Equal(t, "from-file", key)
	})

	t.Run("reads named env var", func(t *testing.T) {
		t.Setenv("MY_OCR_KEY", "secret")
		cfg := DefaultConfig()
		cfg.Service.APIKeyEnv = "MY_OCR_KEY"
		key, err := cfg.APIKey()
		require.NoError(t, err)
		assert.Equal(t, "secret", key)
	})

	t.Run("missing key is a config error", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "")
		cfg := DefaultConfig()
		_, err := cfg.APIKey()
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
		assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
	})
}

func TestLogLevel_DebugRaises(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.LogLevel())
	cfg.Debug.Enabled = true
	assert.Equal(t, "debug", cfg.LogLevel())
	cfg.Debug.Verbose = false
	assert.Equal(t, "info", cfg.LogLevel())
}
