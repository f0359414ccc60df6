package matcher

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalize brings text into NFC form so that visually identical
// sequences compare equal regardless of how the platform encoded them.
func normalize(s string) string {
	return norm.NFC.String(s)
}

// fold normalizes and case-folds text. Folding is Unicode-aware, so the
// case-insensitivity toggle treats both sides of a comparison the same
// way for non-ASCII scripts too.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
