package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/image-ocr/internal/domain"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("scan.pdf"))
	assert.True(t, IsPDF("SCAN.PDF"))
	assert.False(t, IsPDF("scan.png"))
	assert.False(t, IsPDF("pdf"))
}

func TestValidator_ValidatePDFPath(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(nil)

	good := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(good, []byte("%PDF-1.4"), 0o644))
	assert.NoError(t, v.ValidatePDFPath(good))

	notPDF := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(notPDF, []byte("text"), 0o644))

	tests := map[string]string{
		"empty":     " ",
		"missing":   filepath.Join(dir, "missing.pdf"),
		"directory": dir,
		"extension": notPDF,
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			err := v.ValidatePDFPath(path)
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
		})
	}
}

func TestValidator_ValidateQuality(t *testing.T) {
	v := NewValidator(nil)
	assert.NoError(t, v.ValidateQuality(1))
	assert.NoError(t, v.ValidateQuality(100))
	assert.Error(t, v.ValidateQuality(0))
	assert.Error(t, v.ValidateQuality(101))
}

func TestConverter_RejectsInvalidInput(t *testing.T) {
	c := NewConverter(nil)
	defer c.Cleanup()

	_, err := c.Convert(t.Context(), filepath.Join(t.TempDir(), "missing.pdf"), 85)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	assert.Empty(t, c.tempDirs)
}
