package data

import (
	"groupguard/internal/biz"
	"groupguard/internal/conf"
	"groupguard/internal/pkg/matcher"

	"github.com/go-kratos/kratos/v2/log"
)

// NewPatternCache creates the process-lifetime compiled-pattern cache.
func NewPatternCache(logger log.Logger) *matcher.PatternCache {
	return matcher.NewPatternCache(logger)
}

// NewTextMatcher wires the configured text toggles into the matcher.
func NewTextMatcher(c *conf.Filter, patterns *matcher.PatternCache) *matcher.TextMatcher {
	return matcher.NewTextMatcher(matcher.TextOptions{
		Exact:         c.ExactMatch,
		CaseSensitive: c.CaseSensitive,
	}, patterns)
}

// NewFilterOptions maps configuration onto the matching-engine options.
func NewFilterOptions(c *conf.Filter) biz.FilterOptions {
	threshold := c.ImageThreshold
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return biz.FilterOptions{
		Text: matcher.TextOptions{
			Exact:         c.ExactMatch,
			CaseSensitive: c.CaseSensitive,
		},
		ImageThreshold: threshold,
		FailClosed:     c.FailClosed,
	}
}
