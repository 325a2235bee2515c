// Package extract runs a directory of images through the recognition service.
package extract

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/imaging"
	"github.com/spherical/image-ocr/internal/observability"
	"github.com/spherical/image-ocr/internal/pdf"
)

// Enhancer adjusts a decoded image before it is encoded for upload.
type Enhancer interface {
	Enhance(img image.Image) (image.Image, error)
}

// Options control a batch run. They are fixed for the lifetime of a Service.
type Options struct {
	Provider        string
	Model           string
	PromptStyle     string
	Prompt          string
	RequestDelay    time.Duration
	JPEGQuality     int
	ExpandPDF       bool
	PDFQuality      int
	ContinueOnError bool
	ProcessedDir    string // processed images are saved here when set
}

// Service orchestrates a batch: load, enhance, encode, recognize, record.
type Service struct {
	loader     domain.ImageLoader
	enhancer   Enhancer
	recognizer domain.Recognizer
	converter  domain.Converter
	opts       Options
	logger     *observability.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a new batch service. enhancer and converter may be nil;
// without a converter PDFs are never expanded.
func NewService(loader domain.ImageLoader, enhancer Enhancer, recognizer domain.Recognizer, converter domain.Converter, opts Options, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 95
	}
	if opts.PDFQuality <= 0 {
		opts.PDFQuality = 90
	}
	return &Service{
		loader:     loader,
		enhancer:   enhancer,
		recognizer: recognizer,
		converter:  converter,
		opts:       opts,
		logger:     logger.WithOperation("extract"),
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// task is one planned unit of work. A task with err set is recorded as a
// failure without touching the service.
type task struct {
	path string
	name string
	err  error
}

// Process runs every supported file in dir through the pipeline, in file
// name order. Per-file failures become failed results. The returned
// BatchResult is never nil once the directory has been read, including when
// the run stops early on cancellation or with continue_on_error disabled.
func (s *Service) Process(ctx context.Context, dir string, eventCh chan<- domain.StreamEvent) (*domain.BatchResult, error) {
	runID := uuid.NewString()
	logger := s.logger.WithRun(runID)

	batch := &domain.BatchResult{
		Summary: domain.RunSummary{
			RunID:       runID,
			Provider:    s.opts.Provider,
			Model:       s.opts.Model,
			PromptStyle: s.opts.PromptStyle,
			InputDir:    dir,
			StartedAt:   s.now(),
		},
	}

	files, err := Discover(dir, s.opts.ExpandPDF && s.converter != nil)
	if err != nil {
		s.emitError(eventCh, 0, err)
		return nil, err
	}

	tasks := s.plan(ctx, files, logger)
	if s.converter != nil {
		defer func() {
			if err := s.converter.Cleanup(); err != nil {
				logger.Warn().Err(err).Msg("Failed to clean up PDF pages")
			}
		}()
	}

	total := len(tasks)
	logger.Info().Str("dir", dir).Int("images", total).Msg("Starting batch")
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Total:     total,
		Payload:   fmt.Sprintf("Found %d images in %s", total, dir),
		Timestamp: s.now(),
	})

	called := false
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			return s.finish(batch, eventCh, logger, err)
		}

		page := i + 1
		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			PageNumber: page,
			Total:      total,
			Payload:    t.name,
			Timestamp:  s.now(),
		})

		text, err := s.processTask(ctx, t, page, &called, logger)
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
			return s.finish(batch, eventCh, logger, ctxErr)
		}

		imageTask := domain.ImageTask{SourcePath: t.path, Name: t.name, PageNumber: page}
		var result domain.ExtractionResult
		if err != nil {
			result = domain.NewFailureResult(imageTask, err, s.now())
			logger.Error().Err(err).Int("page", page).Str("file", t.name).Msg("Failed to process image")
			s.emitError(eventCh, page, err)
		} else {
			result = domain.NewSuccessResult(imageTask, text, s.now())
			logger.Info().Int("page", page).Str("file", t.name).Int("chars", len(text)).Msg("Extracted text")
		}

		batch.Results = append(batch.Results, result)
		batch.Summary.Record(result)

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageComplete,
			PageNumber: page,
			Total:      total,
			Payload:    result,
			Timestamp:  s.now(),
		})

		if err != nil && !s.opts.ContinueOnError {
			return s.finish(batch, eventCh, logger, fmt.Errorf("stopped at %s: %w", t.name, err))
		}
	}

	return s.finish(batch, eventCh, logger, nil)
}

func (s *Service) finish(batch *domain.BatchResult, eventCh chan<- domain.StreamEvent, logger *observability.Logger, err error) (*domain.BatchResult, error) {
	batch.Summary.FinishedAt = s.now()
	sum := batch.Summary

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:  domain.EventComplete,
		Total: sum.Total,
		Payload: fmt.Sprintf("Batch complete: %d/%d images successful in %v",
			sum.Successes, sum.Total, sum.Duration().Round(time.Millisecond)),
		Timestamp: sum.FinishedAt,
	})

	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Int("successful", sum.Successes).Int("failed", sum.Errors).
		Dur("duration", sum.Duration()).Msg("Batch finished")

	return batch, err
}

// plan turns discovered files into tasks, expanding PDFs into one task per
// page. A PDF that cannot be rendered becomes a single failed task.
func (s *Service) plan(ctx context.Context, files []string, logger *observability.Logger) []task {
	tasks := make([]task, 0, len(files))
	for _, path := range files {
		name := filepath.Base(path)
		if !pdf.IsPDF(path) {
			tasks = append(tasks, task{path: path, name: name})
			continue
		}

		pages, err := s.converter.Convert(ctx, path, s.opts.PDFQuality)
		if err != nil {
			logger.Error().Err(err).Str("file", name).Msg("Failed to expand PDF")
			tasks = append(tasks, task{path: path, name: name, err: err})
			continue
		}
		logger.Info().Str("file", name).Int("pages", len(pages)).Msg("Expanded PDF")
		for _, p := range pages {
			tasks = append(tasks, task{
				path: p.ImagePath,
				name: fmt.Sprintf("%s#%d", name, p.PageNumber),
			})
		}
	}
	return tasks
}

// processTask prepares one image and submits it. The inter-request delay is
// applied before every recognition call except the first.
func (s *Service) processTask(ctx context.Context, t task, page int, called *bool, logger *observability.Logger) (string, error) {
	if t.err != nil {
		return "", t.err
	}

	img, err := s.loader.Load(t.path)
	if err != nil {
		return "", err
	}

	if s.enhancer != nil {
		if img, err = s.enhancer.Enhance(img); err != nil {
			return "", err
		}
	}

	data, err := imaging.Encode(img, s.opts.JPEGQuality)
	if err != nil {
		return "", err
	}

	if s.opts.ProcessedDir != "" {
		if path, err := imaging.SaveProcessed(s.opts.ProcessedDir, t.name, data); err != nil {
			logger.Warn().Err(err).Str("file", t.name).Msg("Failed to save processed image")
		} else {
			logger.Debug().Str("path", path).Msg("Saved processed image")
		}
	}

	if *called && s.opts.RequestDelay > 0 {
		logger.Debug().Dur("delay", s.opts.RequestDelay).Msg("Waiting before next request")
		if err := s.sleep(ctx, s.opts.RequestDelay); err != nil {
			return "", err
		}
	}
	*called = true

	logger.Debug().Int("page", page).Str("file", t.name).Int("bytes", len(data)).Msg("Submitting image")
	return s.recognizer.Recognize(ctx, domain.RecognitionRequest{
		Image:      data,
		MIMEType:   imaging.EncodedMIMEType,
		Prompt:     s.opts.Prompt,
		Model:      s.opts.Model,
		SourceName: t.name,
	})
}

// Discover lists the supported files in dir, sorted by name. PDFs are
// included only when withPDF is set. A missing path or a non-directory is a
// config error.
func Discover(dir string, withPDF bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ConfigError(fmt.Sprintf("input directory not found: %s", dir), nil)
		}
		return nil, domain.ConfigError(fmt.Sprintf("cannot access input directory %s", dir), err)
	}
	if !info.IsDir() {
		return nil, domain.ConfigError(fmt.Sprintf("input path is not a directory: %s", dir), nil)
	}

	// ReadDir returns entries sorted by file name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("cannot read input directory %s", dir), err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if !imaging.IsSupported(name) && !(withPDF && pdf.IsPDF(name)) {
			continue
		}
		path := filepath.Join(dir, name)
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, page int, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:       domain.EventError,
		PageNumber: page,
		Payload:    err.Error(),
		Timestamp:  s.now(),
	})
}
