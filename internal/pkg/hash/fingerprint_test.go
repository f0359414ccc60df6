package hash

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a simple test image.
func createTestImage(width, height int, fill color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

// createGradientImage creates a gradient test image.
func createGradientImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func TestFingerprinter_FixedLength(t *testing.T) {
	f := NewFingerprinter()
	img := createGradientImage(100, 100)

	fp, err := f.Fingerprint(img)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if len(fp) != FingerprintLen {
		t.Errorf("fingerprint length = %d; want %d", len(fp), FingerprintLen)
	}
}

func TestFingerprinter_Deterministic(t *testing.T) {
	f := NewFingerprinter()
	img := createGradientImage(100, 100)

	fp1, err := f.Fingerprint(img)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	fp2, err := f.Fingerprint(img)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fp1 != fp2 {
		t.Error("same image should produce identical fingerprint")
	}
}

func TestFingerprinter_DifferentImagesDiffer(t *testing.T) {
	f := NewFingerprinter()

	gradient := createGradientImage(100, 100)
	inverse := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			gray := uint8(255 - (x+y)*255/200)
			inverse.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}

	fp1, _ := f.Fingerprint(gradient)
	fp2, _ := f.Fingerprint(inverse)
	if fp1 == fp2 {
		t.Error("different images should produce different fingerprints")
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected int
	}{
		{
			name:     "identical",
			a:        "deadbeef",
			b:        "deadbeef",
			expected: 0,
		},
		{
			name:     "one substitution",
			a:        "deadbeef",
			b:        "deadbeaf",
			expected: 1,
		},
		{
			name:     "completely different",
			a:        "aaaa",
			b:        "bbbb",
			expected: 4,
		},
		{
			name:     "empty left",
			a:        "",
			b:        "abc",
			expected: 3,
		},
		{
			name:     "empty right",
			a:        "abc",
			b:        "",
			expected: 3,
		},
		{
			name:     "insertion",
			a:        "abc",
			b:        "abxc",
			expected: 1,
		},
		{
			name:     "classic kitten",
			a:        "kitten",
			b:        "sitting",
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EditDistance(tt.a, tt.b)
			if result != tt.expected {
				t.Errorf("EditDistance(%q, %q) = %d; want %d", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestEditDistance_Symmetric(t *testing.T) {
	a, b := "0123456789abcdef", "0123456789abcdff"
	if EditDistance(a, b) != EditDistance(b, a) {
		t.Error("edit distance should be symmetric")
	}
}

func BenchmarkFingerprint(b *testing.B) {
	f := NewFingerprinter()
	img := createGradientImage(256, 256)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fingerprint(img)
	}
}

func BenchmarkEditDistance(b *testing.B) {
	x := "deadbeef12345678deadbeef12345678deadbeef12345678deadbeef12345678"
	y := "cafebabe87654321cafebabe87654321cafebabe87654321cafebabe87654321"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EditDistance(x, y)
	}
}
