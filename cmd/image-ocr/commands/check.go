package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/image-ocr/cmd/image-ocr/ui"
	"github.com/spherical/image-ocr/internal/cache"
	"github.com/spherical/image-ocr/internal/llm"
)

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and test the service credentials",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "timeout for the connectivity check")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLoggerAt(cfg, "warn")

	ui.Section("Configuration")
	ui.Table(cmd.OutOrStdout(), []string{"Setting", "Value"}, [][]string{
		{"Provider", cfg.Service.Provider},
		{"Model", cfg.Service.Model},
		{"Credential", cfg.Service.APIKeyEnv},
		{"Input", cfg.Input.Dir},
		{"Output", cfg.Output.File},
		{"Prompt style", cfg.OCR.PromptStyle},
		{"Request delay", cfg.Processing.RequestDelay.String()},
		{"Cache", cfg.Cache.Driver},
	})
	ui.Newline()

	apiKey, err := cfg.APIKey()
	if err != nil {
		return err
	}
	ui.Success("Credential found in %s", cfg.Service.APIKeyEnv)

	client, err := llm.NewRecognizer(cfg, apiKey, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	spin := ui.NewSpinner(fmt.Sprintf("Contacting %s...", cfg.Service.Provider))
	spin.Start()
	err = client.Ping(ctx)
	spin.Stop()
	if err != nil {
		ui.Error("Service check failed")
		return err
	}
	ui.Success("%s accepted the credential for model %s", cfg.Service.Provider, cfg.Service.Model)

	if cfg.Cache.Driver != "none" {
		c, err := cache.New(cfg.Cache, logger)
		if err != nil {
			ui.Warning("Cache unavailable, runs will proceed without it: %v", err)
			return nil
		}
		if c != nil {
			defer c.Close()
		}
		ui.Success("Cache %s reachable", cfg.Cache.Driver)
	}
	return nil
}
