package hash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

// Fingerprint dimensions for the extended perceptual hash. 16x16 DCT
// blocks yield a 256-bit hash, encoded as a 64-char hex string. All
// fingerprints produced by one algorithm version have the same length;
// distance comparison is only defined between equal-length fingerprints.
const (
	fingerprintHashW = 16
	fingerprintHashH = 16

	// FingerprintLen is the length of the hex-encoded fingerprint string.
	FingerprintLen = fingerprintHashW * fingerprintHashH / 4
)

// Fingerprinter computes perceptual fingerprints from image bytes.
type Fingerprinter struct{}

// NewFingerprinter creates a new Fingerprinter.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// Fingerprint computes the perceptual fingerprint of an image.
func (f *Fingerprinter) Fingerprint(img image.Image) (string, error) {
	h, err := goimagehash.ExtPerceptionHash(img, fingerprintHashW, fingerprintHashH)
	if err != nil {
		return "", fmt.Errorf("failed to compute perception hash: %w", err)
	}
	var sb bytes.Buffer
	for _, word := range h.GetHash() {
		fmt.Fprintf(&sb, "%016x", word)
	}
	return sb.String(), nil
}

// FingerprintBytes decodes image bytes and computes their fingerprint.
func (f *Fingerprinter) FingerprintBytes(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return f.Fingerprint(img)
}

// EditDistance returns the Levenshtein distance between two strings.
// For equal-length fingerprints this degenerates into a cheap two-row
// dynamic program; 0 means identical.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
