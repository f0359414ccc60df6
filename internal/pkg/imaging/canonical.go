// Package imaging normalizes arbitrary image input into a canonical form
// so that re-encoded or resized copies of the same picture converge to
// the same (or a very close) perceptual fingerprint.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
)

// MaxEdge bounds the longer edge of a canonical image. Images are never
// upscaled beyond their original size.
const MaxEdge = 256

// Canonicalize decodes raw image bytes and produces the canonical byte
// buffer that is the only input ever passed to the hash primitive.
// Steps, in order: bounded aspect-preserving resize, grayscale
// conversion, contrast stretch to the full intensity range, and a
// deterministic PNG encode.
func Canonicalize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	canonical := CanonicalImage(img)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, canonical); err != nil {
		return nil, fmt.Errorf("failed to encode canonical image: %w", err)
	}
	return buf.Bytes(), nil
}

// CanonicalImage applies the canonicalization steps to a decoded image.
func CanonicalImage(img image.Image) *image.Gray {
	// Thumbnail scales down preserving aspect ratio and never upscales.
	scaled := resize.Thumbnail(MaxEdge, MaxEdge, img, resize.Lanczos3)
	gray := toGray(scaled)
	stretchContrast(gray)
	return gray
}

func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return gray
}

// stretchContrast remaps pixel intensities so the darkest pixel becomes 0
// and the brightest 255. Flat images are left untouched.
func stretchContrast(gray *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, p := range gray.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if lo >= hi {
		return
	}
	span := int(hi) - int(lo)
	for i, p := range gray.Pix {
		gray.Pix[i] = uint8((int(p) - int(lo)) * 255 / span)
	}
}
