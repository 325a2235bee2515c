// Package report formats batch results into the text report and error log.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/image-ocr/internal/config"
	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/imaging"
	"github.com/spherical/image-ocr/internal/observability"
)

const timeFormat = time.DateTime

var (
	pageRule    = strings.Repeat("=", 80)
	sectionRule = strings.Repeat("-", 40)
)

// Writer renders and persists reports according to the output settings.
type Writer struct {
	cfg    config.OutputConfig
	logger *observability.Logger
}

// NewWriter creates a report writer.
func NewWriter(cfg config.OutputConfig, logger *observability.Logger) *Writer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Writer{cfg: cfg, logger: logger.WithOperation("report")}
}

// Render formats the full report. It reads no clock, so equal inputs always
// render to equal bytes.
func (w *Writer) Render(summary domain.RunSummary, results []domain.ExtractionResult) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Image OCR Results - Generated on %s\n", summary.FinishedAt.Format(timeFormat))
	if summary.RunID != "" {
		fmt.Fprintf(&buf, "Run ID: %s\n", summary.RunID)
	}
	fmt.Fprintf(&buf, "Model: %s\n", summary.Model)
	if summary.PromptStyle != "" {
		fmt.Fprintf(&buf, "Prompt Style: %s\n", summary.PromptStyle)
	}
	fmt.Fprintf(&buf, "Total Images Processed: %d\n", summary.Total)
	fmt.Fprintf(&buf, "Successful Extractions: %d\n", summary.Successes)
	fmt.Fprintf(&buf, "Errors: %d\n", summary.Errors)
	buf.WriteString(pageRule + "\n\n")

	sections := make([]string, 0, len(results))
	for _, r := range results {
		sections = append(sections, w.section(r))
	}
	buf.WriteString(strings.Join(sections, "\n"))

	return buf.Bytes()
}

// section formats one result. Every section ends with a newline.
func (w *Writer) section(r domain.ExtractionResult) string {
	var parts []string

	if w.cfg.SeparatePages && r.PageNumber > 1 {
		parts = append(parts, "\n"+pageRule)
	}
	if w.cfg.IncludeFilename {
		parts = append(parts, "File: "+r.FileName)
	}
	if w.cfg.AddPageNumbers {
		parts = append(parts, fmt.Sprintf("Page: %d", r.PageNumber))
	}
	if w.cfg.IncludeTimestamp {
		parts = append(parts, "Processed: "+r.ProcessedAt.Format(timeFormat))
	}
	parts = append(parts, sectionRule)

	if r.Success {
		parts = append(parts, r.Text)
	} else {
		parts = append(parts, fmt.Sprintf("[FAILED] %s: %s", r.ErrorKind, r.ErrorMessage))
	}

	return strings.Join(parts, "\n") + "\n"
}

// WriteReport renders the report and replaces path with it. The file is
// written under a temporary name and renamed, so a failed write leaves any
// previous report intact.
func (w *Writer) WriteReport(path string, summary domain.RunSummary, results []domain.ExtractionResult) error {
	if err := writeFileAtomic(path, w.Render(summary, results)); err != nil {
		return err
	}
	w.logger.Info().Str("path", path).Int("sections", len(results)).Msg("Report written")
	return nil
}

// RenderErrorLog formats one line per failed result.
func (w *Writer) RenderErrorLog(results []domain.ExtractionResult) []byte {
	var buf bytes.Buffer
	for _, r := range results {
		if r.Success {
			continue
		}
		fmt.Fprintf(&buf, "%s - ERROR - page %d (%s): %s: %s\n",
			r.ProcessedAt.Format(timeFormat), r.PageNumber, r.FileName, r.ErrorKind, r.ErrorMessage)
	}
	return buf.Bytes()
}

// WriteErrorLog appends the failed results to the error log at path.
// Nothing is written when every result succeeded.
func (w *Writer) WriteErrorLog(path string, results []domain.ExtractionResult) error {
	data := w.RenderErrorLog(results)
	if len(data) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.IOError("Failed to create log directory", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return domain.IOError("Failed to open error log", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return domain.IOError("Failed to write error log", err)
	}
	if err := f.Close(); err != nil {
		return domain.IOError("Failed to close error log", err)
	}

	w.logger.Info().Str("path", path).Msg("Error log written")
	return nil
}

// WriteIndividual writes each successful result to dir as <name>.txt and
// returns the paths written.
func (w *Writer) WriteIndividual(dir string, results []domain.ExtractionResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.IOError("Failed to create individual pages directory", err)
	}

	var paths []string
	for _, r := range results {
		if !r.Success {
			continue
		}
		path := filepath.Join(dir, imaging.SafeName(r.FileName)+".txt")
		if err := os.WriteFile(path, []byte(r.Text+"\n"), 0o644); err != nil {
			return paths, domain.IOError(fmt.Sprintf("Failed to write %s", filepath.Base(path)), err)
		}
		paths = append(paths, path)
	}

	w.logger.Debug().Str("dir", dir).Int("files", len(paths)).Msg("Individual pages written")
	return paths, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.IOError("Failed to create output directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return domain.IOError("Failed to create temporary report", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.IOError("Failed to write report", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.IOError("Failed to write report", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return domain.IOError("Failed to write report", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return domain.IOError("Failed to replace report", err)
	}
	return nil
}
