package domain

import (
	"context"
	"image"
)

// Converter defines the interface for converting PDF to images
type Converter interface {
	// Convert turns a PDF into a slice of page images
	Convert(ctx context.Context, pdfPath string, quality int) ([]PageImage, error)

	// Cleanup removes temporary files created during conversion
	Cleanup() error
}

// ImageLoader opens an image file and returns it normalized for recognition.
type ImageLoader interface {
	Load(path string) (image.Image, error)
}

// Recognizer submits one image with a prompt to the text-recognition service.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognitionRequest) (string, error)
}
