package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/image-ocr/internal/domain"
)

// EncodedMIMEType is the MIME type of everything Encode produces.
const EncodedMIMEType = "image/jpeg"

// Encode serializes img as JPEG at the given quality for upload.
func Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, domain.LoadError("cannot encode image", err)
	}
	return buf.Bytes(), nil
}

// SaveProcessed writes a processed image to dir as processed_<name>.jpg and
// returns the path written. The source extension is kept in <name>.
func SaveProcessed(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.IOError("Failed to create debug directory", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("processed_%s.jpg", SafeName(name)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", domain.IOError("Failed to write processed image", err)
	}
	return path, nil
}

// SafeName makes a display name usable as a file name, e.g. "scan.pdf#2" -> "scan.pdf_p2".
func SafeName(name string) string {
	r := strings.NewReplacer("#", "_p", "/", "_", "\\", "_", ":", "_")
	return r.Replace(filepath.Base(name))
}
