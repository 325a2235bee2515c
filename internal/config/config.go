// Package config provides configuration loading for image-ocr.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/spherical/image-ocr/internal/domain"
)

// Config holds all configuration for a run. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Input         InputConfig         `yaml:"input"`
	OCR           OCRConfig           `yaml:"ocr"`
	Image         ImageConfig         `yaml:"image"`
	Output        OutputConfig        `yaml:"output"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Cache         CacheConfig         `yaml:"cache"`
	Debug         DebugConfig         `yaml:"debug"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds recognition service settings.
type ServiceConfig struct {
	Provider   string        `yaml:"provider"` // gemini or openrouter
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// InputConfig holds input discovery settings.
type InputConfig struct {
	Dir        string `yaml:"dir"`
	ExpandPDF  bool   `yaml:"expand_pdf"`
	PDFQuality int    `yaml:"pdf_quality"`
}

// OCRConfig holds prompt selection settings.
type OCRConfig struct {
	Language     string            `yaml:"language"`
	ReadingOrder string            `yaml:"reading_order"` // left-to-right or right-to-left
	PromptStyle  string            `yaml:"prompt_style"`
	Translation  TranslationConfig `yaml:"translation"`
}

// TranslationConfig holds the optional translation instructions appended to prompts.
type TranslationConfig struct {
	Enabled          bool   `yaml:"enabled"`
	SourceLanguage   string `yaml:"source_language"`
	TargetLanguage   string `yaml:"target_language"`
	Mode             string `yaml:"mode"`  // inline, separate or both
	Style            string `yaml:"style"` // natural, literal or localized
	PreserveOriginal bool   `yaml:"preserve_original"`
}

// ImageConfig holds image preprocessing settings.
type ImageConfig struct {
	Preprocessing    bool    `yaml:"preprocessing"`
	MaxWidth         int     `yaml:"max_width"`
	MaxHeight        int     `yaml:"max_height"`
	EnhanceContrast  bool    `yaml:"enhance_contrast"`
	ContrastFactor   float64 `yaml:"contrast_factor"`
	EnhanceSharpness bool    `yaml:"enhance_sharpness"`
	SharpnessFactor  float64 `yaml:"sharpness_factor"`
	JPEGQuality      int     `yaml:"jpeg_quality"`
}

// OutputConfig holds report formatting and destination settings.
type OutputConfig struct {
	File                string `yaml:"file"`
	IncludeFilename     bool   `yaml:"include_filename"`
	IncludeTimestamp    bool   `yaml:"include_timestamp"`
	SeparatePages       bool   `yaml:"separate_pages"`
	AddPageNumbers      bool   `yaml:"add_page_numbers"`
	SaveErrorLog        bool   `yaml:"save_error_log"`
	ErrorLogFile        string `yaml:"error_log_file"`
	SaveIndividualFiles bool   `yaml:"save_individual_files"`
	IndividualDir       string `yaml:"individual_dir"`
}

// ProcessingConfig holds batch pacing settings.
type ProcessingConfig struct {
	RequestDelay    time.Duration `yaml:"request_delay"`
	ContinueOnError bool          `yaml:"continue_on_error"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DebugConfig holds troubleshooting switches.
type DebugConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Verbose             bool   `yaml:"verbose"`
	SaveAPIResponses    bool   `yaml:"save_api_responses"`
	SaveProcessedImages bool   `yaml:"save_processed_images"`
	Dir                 string `yaml:"dir"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

var (
	validProviders     = []string{"gemini", "openrouter"}
	validReadingOrders = []string{"", "left-to-right", "right-to-left"}
	validModes         = []string{"inline", "separate", "both"}
	validStyles        = []string{"natural", "literal", "localized"}
	validCacheDrivers  = []string{"none", "memory", "redis"}
	validPromptStyles  = []string{"basic", "detailed", "structured", "japanese"}
)

// providerDefaults holds the model and credential variable used when the
// configuration leaves them empty.
var providerDefaults = map[string]struct{ model, apiKeyEnv string }{
	"gemini":     {model: "gemini-2.0-flash", apiKeyEnv: "GOOGLE_API_KEY"},
	"openrouter": {model: "google/gemini-2.0-flash-001", apiKeyEnv: "OPENROUTER_API_KEY"},
}

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path uses defaults plus environment only. Model and credential
// variable defaults follow the provider chosen after both are merged.
func Load(path string) (*Config, error) {
	cfg := baseConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the stock settings.
func DefaultConfig() *Config {
	cfg := baseConfig()
	cfg.applyProviderDefaults()
	return cfg
}

// baseConfig returns the stock settings without the provider-dependent ones.
func baseConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Provider:   "gemini",
			Timeout:    2 * time.Minute,
			MaxRetries: 0,
		},
		Input: InputConfig{
			Dir:        "input",
			ExpandPDF:  false,
			PDFQuality: 90,
		},
		OCR: OCRConfig{
			Language:     "English",
			ReadingOrder: "right-to-left",
			PromptStyle:  "detailed",
			Translation: TranslationConfig{
				SourceLanguage:   "Chinese",
				TargetLanguage:   "English",
				Mode:             "inline",
				Style:            "natural",
				PreserveOriginal: true,
			},
		},
		Image: ImageConfig{
			Preprocessing:    true,
			MaxWidth:         1920,
			MaxHeight:        1920,
			EnhanceContrast:  true,
			ContrastFactor:   1.2,
			EnhanceSharpness: true,
			SharpnessFactor:  1.1,
			JPEGQuality:      95,
		},
		Output: OutputConfig{
			File:             filepath.Join("output", "extracted_text.txt"),
			IncludeFilename:  true,
			IncludeTimestamp: true,
			SeparatePages:    true,
			AddPageNumbers:   true,
			SaveErrorLog:     true,
			ErrorLogFile:     filepath.Join("output", "logs", "ocr_errors.log"),
			IndividualDir:    filepath.Join("output", "individual_pages"),
		},
		Processing: ProcessingConfig{
			RequestDelay:    time.Second,
			ContinueOnError: true,
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "ocr:",
			},
		},
		Debug: DebugConfig{
			Verbose: true,
			Dir:     filepath.Join("output", "debug"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// applyProviderDefaults fills an empty model or credential variable from the
// provider's defaults. Unknown providers are left for Validate to reject.
func (c *Config) applyProviderDefaults() {
	d, ok := providerDefaults[c.Service.Provider]
	if !ok {
		return
	}
	if strings.TrimSpace(c.Service.Model) == "" {
		c.Service.Model = d.model
	}
	if c.Service.APIKeyEnv == "" {
		c.Service.APIKeyEnv = d.apiKeyEnv
	}
}

// Validate checks the configuration for errors. Credentials are checked
// separately by APIKey so that offline commands keep working without one.
func (c *Config) Validate() error {
	if !oneOf(c.Service.Provider, validProviders) {
		return domain.ConfigError(fmt.Sprintf("invalid provider: %q", c.Service.Provider), nil)
	}

	if strings.TrimSpace(c.Service.Model) == "" {
		return domain.ConfigError("model must not be empty", nil)
	}

	if c.Service.MaxRetries < 0 || c.Service.MaxRetries > 10 {
		return domain.ConfigError("max_retries must be between 0 and 10", nil)
	}

	if !oneOf(c.OCR.PromptStyle, validPromptStyles) {
		return domain.ConfigError(fmt.Sprintf("unknown prompt style: %q", c.OCR.PromptStyle), nil)
	}

	if !oneOf(c.OCR.ReadingOrder, validReadingOrders) {
		return domain.ConfigError(fmt.Sprintf("invalid reading order: %q", c.OCR.ReadingOrder), nil)
	}

	if c.OCR.Translation.Enabled {
		if !oneOf(c.OCR.Translation.Mode, validModes) {
			return domain.ConfigError(fmt.Sprintf("invalid translation mode: %q", c.OCR.Translation.Mode), nil)
		}
		if !oneOf(c.OCR.Translation.Style, validStyles) {
			return domain.ConfigError(fmt.Sprintf("invalid translation style: %q", c.OCR.Translation.Style), nil)
		}
	}

	if c.Image.MaxWidth < 1 || c.Image.MaxHeight < 1 {
		return domain.ConfigError("max image dimensions must be positive", nil)
	}

	if c.Image.ContrastFactor < 0 || c.Image.SharpnessFactor < 0 {
		return domain.ConfigError("enhancement factors must not be negative", nil)
	}

	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return domain.ConfigError("jpeg_quality must be between 1 and 100", nil)
	}

	if c.Input.ExpandPDF && (c.Input.PDFQuality < 1 || c.Input.PDFQuality > 100) {
		return domain.ConfigError("pdf_quality must be between 1 and 100", nil)
	}

	if c.Processing.RequestDelay < 0 {
		return domain.ConfigError("request_delay must not be negative", nil)
	}

	if strings.TrimSpace(c.Output.File) == "" {
		return domain.ConfigError("output file must not be empty", nil)
	}

	if c.Output.SaveErrorLog && strings.TrimSpace(c.Output.ErrorLogFile) == "" {
		return domain.ConfigError("error_log_file must be set when save_error_log is enabled", nil)
	}

	if !oneOf(c.Cache.Driver, validCacheDrivers) {
		return domain.ConfigError(fmt.Sprintf("invalid cache driver: %q", c.Cache.Driver), nil)
	}

	return nil
}

// APIKey resolves the service credential: an explicit api_key wins, otherwise
// the environment variable named by api_key_env is read.
func (c *Config) APIKey() (string, error) {
	if key := strings.TrimSpace(c.Service.APIKey); key != "" {
		return key, nil
	}

	envName := c.Service.APIKeyEnv
	if envName == "" {
		envName = providerDefaults["gemini"].apiKeyEnv
		if d, ok := providerDefaults[c.Service.Provider]; ok {
			envName = d.apiKeyEnv
		}
	}

	key := strings.TrimSpace(os.Getenv(envName))
	if key == "" {
		return "", domain.ConfigError(fmt.Sprintf("%s not set; set it in the environment, .env or service.api_key", envName), nil)
	}
	return key, nil
}

// LogLevel returns the effective log level. Debug mode raises it to debug
// unless debug.verbose is off.
func (c *Config) LogLevel() string {
	if c.Debug.Enabled && c.Debug.Verbose {
		return "debug"
	}
	return c.Observability.LogLevel
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("OCR_API_KEY_ENV"); v != "" {
		cfg.Service.APIKeyEnv = v
	}

	if v := os.Getenv("OCR_PROVIDER"); v != "" {
		cfg.Service.Provider = v
	}

	if v := os.Getenv("OCR_MODEL"); v != "" {
		cfg.Service.Model = v
	}

	if v := os.Getenv("OCR_INPUT_DIR"); v != "" {
		cfg.Input.Dir = v
	}

	if v := os.Getenv("OCR_OUTPUT_FILE"); v != "" {
		cfg.Output.File = v
	}

	if v := os.Getenv("OCR_PROMPT_STYLE"); v != "" {
		cfg.OCR.PromptStyle = v
	}

	if v := os.Getenv("OCR_LANGUAGE"); v != "" {
		cfg.OCR.Language = v
	}

	if v := os.Getenv("OCR_REQUEST_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Processing.RequestDelay = d
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		opts, err := redis.ParseURL(v)
		if err != nil {
			return domain.ConfigError("parse REDIS_URL", err)
		}
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = opts.Addr
		cfg.Cache.Redis.Password = opts.Password
		cfg.Cache.Redis.DB = opts.DB
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	return nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
