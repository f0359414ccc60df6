package matcher

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
)

// TextOptions controls literal text comparison. Both toggles are global:
// they apply identically to the candidate and to every rule value.
type TextOptions struct {
	// Exact switches literal comparison from substring containment to
	// full equality.
	Exact bool
	// CaseSensitive disables case folding before comparison.
	CaseSensitive bool
}

// TextMatcher evaluates literal and compiled-pattern rules against
// message text.
type TextMatcher struct {
	opts     TextOptions
	patterns *PatternCache
}

// NewTextMatcher creates a new TextMatcher.
func NewTextMatcher(opts TextOptions, patterns *PatternCache) *TextMatcher {
	return &TextMatcher{
		opts:     opts,
		patterns: patterns,
	}
}

// MatchText reports whether candidate matches a literal rule value.
func (m *TextMatcher) MatchText(candidate, value string) bool {
	c, v := m.canonical(candidate), m.canonical(value)
	if m.opts.Exact {
		return c == v
	}
	return strings.Contains(c, v)
}

// MatchRegex reports whether candidate matches a pattern rule. Patterns
// that fail to compile are skipped here and on every later evaluation
// until process restart.
func (m *TextMatcher) MatchRegex(candidate, source string) bool {
	re := m.patterns.Get(source)
	if re == nil {
		return false
	}
	return re.MatchString(normalize(candidate))
}

func (m *TextMatcher) canonical(s string) string {
	if m.opts.CaseSensitive {
		return normalize(s)
	}
	return fold(s)
}

// PatternCache caches compiled patterns by their source string for the
// lifetime of the process. Rules are immutable once created, so entries
// are never invalidated. Sources that fail to compile are remembered and
// skipped without recompiling.
type PatternCache struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
	broken   map[string]struct{}
	log      *log.Helper
}

// NewPatternCache creates a new PatternCache.
func NewPatternCache(logger log.Logger) *PatternCache {
	return &PatternCache{
		compiled: make(map[string]*regexp.Regexp),
		broken:   make(map[string]struct{}),
		log:      log.NewHelper(logger),
	}
}

// Get returns the compiled form of source, compiling it on first use.
// It returns nil for sources that do not compile.
func (c *PatternCache) Get(source string) *regexp.Regexp {
	c.mu.RLock()
	re, ok := c.compiled[source]
	if ok {
		c.mu.RUnlock()
		return re
	}
	if _, bad := c.broken[source]; bad {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	re, err := regexp.Compile(translatePattern(source))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.broken[source] = struct{}{}
		c.log.Warnf("skipping uncompilable pattern %q: %v", source, err)
		return nil
	}
	if cached, ok := c.compiled[source]; ok {
		// Lost a compile race for the same source; both results are
		// identical, keep the first.
		return cached
	}
	c.compiled[source] = re
	return re
}

// translatePattern maps the /pattern/flags delimiter convention onto Go
// regexp flag syntax. A source without the delimiters is used as-is with
// default flags. Unsupported flag letters are dropped.
func translatePattern(source string) string {
	if len(source) > 1 && source[0] == '/' {
		if end := strings.LastIndexByte(source[1:], '/'); end >= 0 {
			pattern := source[1 : end+1]
			var flags strings.Builder
			for _, r := range source[end+2:] {
				switch r {
				case 'i', 'm', 's':
					flags.WriteRune(r)
				}
			}
			if flags.Len() > 0 {
				return "(?" + flags.String() + ")" + pattern
			}
			return pattern
		}
	}
	return source
}
