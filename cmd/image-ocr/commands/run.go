package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/image-ocr/cmd/image-ocr/ui"
	"github.com/spherical/image-ocr/internal/cache"
	"github.com/spherical/image-ocr/internal/config"
	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/extract"
	"github.com/spherical/image-ocr/internal/imaging"
	"github.com/spherical/image-ocr/internal/llm"
	"github.com/spherical/image-ocr/internal/observability"
	"github.com/spherical/image-ocr/internal/pdf"
	"github.com/spherical/image-ocr/internal/prompt"
	"github.com/spherical/image-ocr/internal/report"
)

var (
	runOutput      string
	runModel       string
	runPromptStyle string
	runExpandPDF   bool
)

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Extract text from every image in a directory",
	Long: `Processes each supported image in the input directory in file name
order, sends it to the recognition service and writes the aggregated
report. The directory defaults to input.dir from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "report file (overrides output.file)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model identifier (overrides service.model)")
	runCmd.Flags().StringVarP(&runPromptStyle, "prompt-style", "p", "", "prompt style (overrides ocr.prompt_style)")
	runCmd.Flags().BoolVar(&runExpandPDF, "expand-pdf", false, "also process each page of PDF files")
	rootCmd.AddCommand(runCmd)
}

type batchOutcome struct {
	batch *domain.BatchResult
	err   error
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg, args); err != nil {
		return err
	}

	showProgress := !verbose && !cfg.Debug.Enabled
	logger := newLogger(cfg)
	if showProgress {
		logger = newLoggerAt(cfg, "warn")
	}

	promptText, err := prompt.Compose(cfg.OCR)
	if err != nil {
		return err
	}

	apiKey, err := cfg.APIKey()
	if err != nil {
		return err
	}

	client, err := llm.NewRecognizer(cfg, apiKey, logger)
	if err != nil {
		return err
	}
	var recognizer domain.Recognizer = client

	if cfg.Cache.Driver != "none" {
		c, err := cache.New(cfg.Cache, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Cache unavailable, continuing without it")
		} else if c != nil {
			defer c.Close()
			recognizer = llm.NewCachedRecognizer(client, c, cfg.Service.Provider, cfg.Cache.TTL, logger)
		}
	}

	svc := newService(cfg, recognizer, promptText, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Section("Image OCR")
	ui.Info("Input: %s", cfg.Input.Dir)
	ui.Info("Model: %s (%s), prompt style %s", cfg.Service.Model, cfg.Service.Provider, cfg.OCR.PromptStyle)

	eventCh := make(chan domain.StreamEvent, 100)
	outcomeCh := make(chan batchOutcome, 1)
	go func() {
		batch, err := svc.Process(ctx, cfg.Input.Dir, eventCh)
		close(eventCh)
		outcomeCh <- batchOutcome{batch: batch, err: err}
	}()

	var bar *ui.ProgressBar
	for event := range eventCh {
		switch event.Type {
		case domain.EventStart:
			if showProgress && event.Total > 0 {
				bar = ui.NewProgressBar(int64(event.Total), "Extracting")
			}
		case domain.EventPageProcessing:
			if bar != nil {
				bar.Describe(fmt.Sprintf("%d/%d %v", event.PageNumber, event.Total, event.Payload))
			}
		case domain.EventPageComplete:
			if bar != nil {
				bar.Set(int64(event.PageNumber))
			}
		case domain.EventError:
			if bar == nil && event.PageNumber > 0 {
				ui.Error("Page %d: %v", event.PageNumber, event.Payload)
			}
		case domain.EventComplete:
			if bar != nil {
				bar.Finish()
			}
		}
	}

	outcome := <-outcomeCh
	if outcome.batch == nil {
		return outcome.err
	}
	if outcome.err != nil {
		ui.Warning("Batch stopped early: %v", outcome.err)
	}

	if err := writeOutputs(cfg, outcome.batch, logger); err != nil {
		return err
	}

	printSummary(cmd, cfg, outcome.batch)
	return outcome.err
}

// applyRunFlags folds positional and flag overrides into cfg and revalidates it.
func applyRunFlags(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.Input.Dir = args[0]
	}
	if runOutput != "" {
		cfg.Output.File = runOutput
	}
	if runModel != "" {
		cfg.Service.Model = runModel
	}
	if runPromptStyle != "" {
		cfg.OCR.PromptStyle = runPromptStyle
	}
	if runExpandPDF {
		cfg.Input.ExpandPDF = true
	}
	return cfg.Validate()
}

func newService(cfg *config.Config, recognizer domain.Recognizer, promptText string, logger *observability.Logger) *extract.Service {
	loader := imaging.NewLoader(cfg.Image.MaxWidth, cfg.Image.MaxHeight, logger)

	var enhancer extract.Enhancer
	if e := imaging.NewEnhancer(cfg.Image); e.Enabled() {
		enhancer = e
	}

	var converter domain.Converter
	if cfg.Input.ExpandPDF {
		converter = pdf.NewConverter(logger)
	}

	opts := extract.Options{
		Provider:        cfg.Service.Provider,
		Model:           cfg.Service.Model,
		PromptStyle:     cfg.OCR.PromptStyle,
		Prompt:          promptText,
		RequestDelay:    cfg.Processing.RequestDelay,
		JPEGQuality:     cfg.Image.JPEGQuality,
		ExpandPDF:       cfg.Input.ExpandPDF,
		PDFQuality:      cfg.Input.PDFQuality,
		ContinueOnError: cfg.Processing.ContinueOnError,
	}
	if cfg.Debug.SaveProcessedImages {
		opts.ProcessedDir = cfg.Debug.Dir
	}

	return extract.NewService(loader, enhancer, recognizer, converter, opts, logger)
}

// writeOutputs persists the report and the optional side files. Any failure
// here is fatal.
func writeOutputs(cfg *config.Config, batch *domain.BatchResult, logger *observability.Logger) error {
	writer := report.NewWriter(cfg.Output, logger)

	if err := writer.WriteReport(cfg.Output.File, batch.Summary, batch.Results); err != nil {
		return err
	}

	if cfg.Output.SaveErrorLog {
		if err := writer.WriteErrorLog(cfg.Output.ErrorLogFile, batch.Results); err != nil {
			return err
		}
	}

	if cfg.Output.SaveIndividualFiles {
		if _, err := writer.WriteIndividual(cfg.Output.IndividualDir, batch.Results); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(cmd *cobra.Command, cfg *config.Config, batch *domain.BatchResult) {
	sum := batch.Summary

	ui.Section("Summary")
	ui.Table(cmd.OutOrStdout(), []string{"Metric", "Value"}, [][]string{
		{"Run ID", sum.RunID},
		{"Images", fmt.Sprintf("%d", sum.Total)},
		{"Successful", fmt.Sprintf("%d", sum.Successes)},
		{"Failed", fmt.Sprintf("%d", sum.Errors)},
		{"Duration", ui.FormatDuration(sum.Duration())},
	})
	ui.Newline()

	switch {
	case sum.Total == 0:
		ui.Warning("No supported images found in %s", cfg.Input.Dir)
	case sum.Successes == 0:
		ui.Warning("No text was extracted from any image")
	}

	for _, r := range batch.Failed() {
		ui.Error("%s: %s: %s", r.FileName, r.ErrorKind, r.ErrorMessage)
	}
	if sum.Errors > 0 && cfg.Output.SaveErrorLog {
		ui.Info("Error details appended to %s", cfg.Output.ErrorLogFile)
	}

	ui.Success("Report saved to %s", cfg.Output.File)
}
