package imaging

import (
	"image"

	"github.com/spherical/image-ocr/internal/config"
	"github.com/spherical/image-ocr/internal/domain"
)

// Enhancer applies the optional contrast and sharpness adjustments.
//
// Both operators blend the image with a degenerate version of itself:
// out = degenerate + factor*(in - degenerate). A factor of 1 returns the
// input unchanged, 0 returns the degenerate image. For contrast the
// degenerate image is flat mean-luminance gray; for sharpness it is a 3x3
// smoothed copy.
type Enhancer struct {
	cfg config.ImageConfig
}

// NewEnhancer creates an enhancer for the given image settings.
func NewEnhancer(cfg config.ImageConfig) *Enhancer {
	return &Enhancer{cfg: cfg}
}

// Enabled reports whether Enhance would change anything.
func (e *Enhancer) Enabled() bool {
	return e.cfg.Preprocessing && (e.cfg.EnhanceContrast || e.cfg.EnhanceSharpness)
}

// Enhance returns a new image of the same size with the configured
// adjustments applied. When nothing is enabled img is returned as is.
func (e *Enhancer) Enhance(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, domain.LoadError("no image to enhance", nil)
	}
	if !e.Enabled() {
		return img, nil
	}

	out := ToRGBA(img)
	if e.cfg.EnhanceContrast {
		out = Contrast(out, e.cfg.ContrastFactor)
	}
	if e.cfg.EnhanceSharpness {
		out = Sharpness(out, e.cfg.SharpnessFactor)
	}
	return out, nil
}

// Contrast scales each channel's distance from the mean luminance by factor.
func Contrast(img *image.RGBA, factor float64) *image.RGBA {
	mean := meanLuminance(img)
	out := image.NewRGBA(img.Bounds())

	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			out.Pix[i+c] = blend(mean, float64(img.Pix[i+c]), factor)
		}
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

// Sharpness scales each pixel's distance from its smoothed neighbourhood by
// factor. Edge pixels have no full neighbourhood and are copied unchanged.
func Sharpness(img *image.RGBA, factor float64) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(b)
	copy(out.Pix, img.Pix)

	if w < 3 || h < 3 {
		return out
	}

	// Smoothing kernel: centre weight 5, neighbours 1, total 13.
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*img.Stride + x*4
			for c := 0; c < 3; c++ {
				sum := 0
				for dy := -1; dy <= 1; dy++ {
					row := (y+dy)*img.Stride + c
					for dx := -1; dx <= 1; dx++ {
						sum += int(img.Pix[row+(x+dx)*4])
					}
				}
				centre := int(img.Pix[i+c])
				smooth := float64(sum+4*centre) / 13
				out.Pix[i+c] = blend(smooth, float64(centre), factor)
			}
		}
	}
	return out
}

func meanLuminance(img *image.RGBA) float64 {
	n := len(img.Pix) / 4
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
	}
	return float64(int(sum/float64(n) + 0.5))
}

// luminance uses the ITU-R 601-2 weights.
func luminance(r, g, b uint8) float64 {
	return float64(r)*0.299 + float64(g)*0.587 + float64(b)*0.114
}

func blend(degenerate, v, factor float64) uint8 {
	out := degenerate + factor*(v-degenerate)
	switch {
	case out <= 0:
		return 0
	case out >= 255:
		return 255
	default:
		return uint8(out + 0.5)
	}
}
