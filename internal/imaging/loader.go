// Package imaging loads, normalizes and enhances page images before recognition.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spherical/image-ocr/internal/domain"
	"github.com/spherical/image-ocr/internal/observability"
)

// SupportedExtensions lists the image file extensions picked up from an input directory.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp", ".gif", ".webp"}

// IsSupported reports whether path has a supported image extension, ignoring case.
func IsSupported(path string) bool {
	return MIMEType(path) != ""
}

// MIMEType returns the MIME type for a supported image path, or "" otherwise.
func MIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tiff", ".tif":
		return "image/tiff"
	default:
		return ""
	}
}

// Loader decodes image files into RGBA images no larger than a maximum size.
type Loader struct {
	maxWidth  int
	maxHeight int
	logger    *observability.Logger
}

// NewLoader creates a loader that downscales anything beyond maxWidth x maxHeight.
func NewLoader(maxWidth, maxHeight int, logger *observability.Logger) *Loader {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Loader{
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		logger:    logger.WithOperation("load"),
	}
}

// Load opens and decodes path. The result is always an opaque *image.RGBA.
func (l *Loader) Load(path string) (image.Image, error) {
	if !IsSupported(path) {
		return nil, domain.LoadError(fmt.Sprintf("unsupported image format: %s", filepath.Ext(path)), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, domain.LoadError(fmt.Sprintf("cannot open %s", filepath.Base(path)), err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return nil, domain.LoadError(fmt.Sprintf("cannot decode %s", filepath.Base(path)), err)
	}

	img := ToRGBA(src)
	b := img.Bounds()
	l.logger.Debug().Str("file", filepath.Base(path)).Str("format", format).
		Int("width", b.Dx()).Int("height", b.Dy()).Msg("Decoded image")

	w, h, resize := FitWithin(b.Dx(), b.Dy(), l.maxWidth, l.maxHeight)
	if !resize {
		return img, nil
	}

	l.logger.Info().Str("file", filepath.Base(path)).
		Str("from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy())).
		Str("to", fmt.Sprintf("%dx%d", w, h)).
		Msg("Resized image")

	return Resize(img, w, h), nil
}

// FitWithin computes the size of a w x h image scaled down to fit inside
// maxW x maxH with its aspect ratio preserved. It reports false when the
// image already fits.
func FitWithin(w, h, maxW, maxH int) (int, int, bool) {
	if w <= maxW && h <= maxH {
		return w, h, false
	}

	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := clampDim(int(math.Round(float64(w)*scale)), maxW)
	nh := clampDim(int(math.Round(float64(h)*scale)), maxH)

	return nw, nh, true
}

func clampDim(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// Resize scales img to exactly w x h using Catmull-Rom resampling.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToRGBA flattens img onto an opaque white background with its origin at 0,0.
// Transparent regions become white so they read as paper rather than ink.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
