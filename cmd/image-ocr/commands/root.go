// Package commands implements the image-ocr command tree.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical/image-ocr/cmd/image-ocr/ui"
	"github.com/spherical/image-ocr/internal/config"
	"github.com/spherical/image-ocr/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "image-ocr",
	Short: "Extract text from a directory of images with a multimodal model",
	Long: `image-ocr sends every image in a directory to a hosted vision model
(Google Gemini or OpenRouter) with a configurable prompt and collects the
returned text into a single report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine.
		_ = godotenv.Load()
		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the logger for cfg. --verbose forces debug level.
func newLogger(cfg *config.Config) *observability.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = "debug"
	}
	return newLoggerAt(cfg, level)
}

func newLoggerAt(cfg *config.Config, level string) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "image-ocr",
	})
}
