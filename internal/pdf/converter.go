// Package pdf renders PDF pages to images so they can join an OCR batch.
package pdf

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/observability"
)

// Converter implements PDF to image conversion using go-fitz
type Converter struct {
	tempDirs  []string
	validator *Validator
	logger    *observability.Logger
}

// NewConverter creates a new PDF converter instance
func NewConverter(logger *observability.Logger) *Converter {
	if logger == nil {
		logger = observability.Nop()
	}
	logger = logger.WithOperation("pdf")
	return &Converter{
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// Convert renders every page of a PDF file to a JPG in a fresh temporary
// directory. Files stay on disk until Cleanup.
func (c *Converter) Convert(ctx context.Context, pdfPath string, quality int) ([]domain.PageImage, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateQuality(quality); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	tempDir, err := os.MkdirTemp("", "image-ocr-pdf-*")
	if err != nil {
		return nil, domain.IOError("Failed to create temp directory", err)
	}
	c.tempDirs = append(c.tempDirs, tempDir)

	images := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to convert page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.jpg", pageNum+1))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("Failed to create output file for page %d", pageNum+1), err)
		}

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: quality})
		outputFile.Close()
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", pageNum+1), err)
		}

		bounds := img.Bounds()
		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			ImagePath:  outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	c.logger.Info().Str("file", filepath.Base(pdfPath)).Int("pages", len(images)).Msg("Rendered PDF pages")

	return images, nil
}

// Cleanup removes every temporary directory created by Convert
func (c *Converter) Cleanup() error {
	var errs []error

	for _, dir := range c.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	c.tempDirs = nil

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	return nil
}
