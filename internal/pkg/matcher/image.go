package matcher

import (
	"groupguard/internal/pkg/hash"
)

// MatchFingerprints compares candidate fingerprints against rule
// fingerprints. A pair matches when both have the same length and their
// edit distance divided by that length is at most thresholdRatio. Pairs
// of unequal length are never compared; the distance is only meaningful
// between fingerprints of one algorithm version. The first matching pair
// short-circuits the scan, returning the rule fingerprint that matched.
//
// A ratio of 0 accepts near-exact fingerprints only; 1 accepts any
// equal-length pair.
func MatchFingerprints(candidates, rules []string, thresholdRatio float64) (string, bool) {
	for _, rf := range rules {
		if rf == "" {
			continue
		}
		for _, cf := range candidates {
			if len(cf) != len(rf) {
				continue
			}
			d := hash.EditDistance(rf, cf)
			if float64(d)/float64(len(rf)) <= thresholdRatio {
				return rf, true
			}
		}
	}
	return "", false
}
