package biz

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"groupguard/internal/pkg/hash"
	"groupguard/internal/pkg/imaging"
	"groupguard/internal/pkg/matcher"

	"github.com/go-kratos/kratos/v2/log"
)

// fakeRuleRepo serves a fixed per-group rule set.
type fakeRuleRepo struct {
	byGroup map[int64][]*Rule
	err     error
}

func (f *fakeRuleRepo) FindByMatchable(context.Context, RuleKind, string) (*Rule, error) {
	return nil, nil
}

func (f *fakeRuleRepo) Create(_ context.Context, r *Rule) (*Rule, error) { return r, nil }

func (f *fakeRuleRepo) ListForGroup(ctx context.Context, group int64, _, _ int32) ([]*Rule, error) {
	return f.ListAllForGroup(ctx, group)
}

func (f *fakeRuleRepo) ListAllForGroup(_ context.Context, group int64) ([]*Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byGroup[group], nil
}

func (f *fakeRuleRepo) CountForGroup(_ context.Context, group int64) (int64, error) {
	return int64(len(f.byGroup[group])), nil
}

func (f *fakeRuleRepo) DeleteOrphans(context.Context, []uint64) ([]*Rule, error) {
	return nil, nil
}

// fakeFingerprintCache serves preloaded fingerprints and falls through
// to compute on a miss.
type fakeFingerprintCache struct {
	mu      sync.Mutex
	entries map[string]string
	hits    int
}

func (c *fakeFingerprintCache) GetOrCompute(ctx context.Context, identity string, compute func(ctx context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	fp, ok := c.entries[identity]
	if ok {
		c.hits++
	}
	c.mu.Unlock()
	if ok {
		return fp, nil
	}
	return compute(ctx)
}

func newFilterHarness(rules *fakeRuleRepo, cache FingerprintCache, opts FilterOptions) *FilterUsecase {
	logger := log.NewStdLogger(io.Discard)
	text := matcher.NewTextMatcher(opts.Text, matcher.NewPatternCache(logger))
	return NewFilterUsecase(rules, cache, text, opts, logger)
}

func gradientPNG(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Pix[y*img.Stride+x] = uint8(x*4) ^ uint8(y)*seed
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode gradient: %v", err)
	}
	return buf.Bytes()
}

func fingerprintOf(t *testing.T, data []byte) string {
	t.Helper()
	canonical, err := imaging.Canonicalize(data)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	fp, err := hash.NewFingerprinter().FingerprintBytes(canonical)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return fp
}

func staticFetch(data []byte, calls *atomic.Int32) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) {
		if calls != nil {
			calls.Add(1)
		}
		return data, nil
	}
}

func TestCheck_TextRulePerGroup(t *testing.T) {
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {{ID: 1, Kind: RuleKindText, Matchable: "spamlink"}},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{})
	ctx := context.Background()

	verdict, err := uc.Check(ctx, &Message{Group: 1, Texts: []string{"click this spamlink now"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Matched || verdict.Rule == nil || verdict.Rule.ID != 1 {
		t.Errorf("group 1 should match rule 1, got %+v", verdict)
	}

	// The same message in an unbound group passes.
	verdict, err = uc.Check(ctx, &Message{Group: 2, Texts: []string{"click this spamlink now"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Matched {
		t.Errorf("group 2 has no rules and must pass, got %+v", verdict)
	}
}

func TestCheck_EmptyRuleSetPasses(t *testing.T) {
	uc := newFilterHarness(&fakeRuleRepo{}, nil, FilterOptions{})
	verdict, err := uc.Check(context.Background(), &Message{Group: 5, Texts: []string{"anything"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Matched {
		t.Error("no rules bound, message must pass")
	}
}

func TestCheck_LiteralWinsOverRegex(t *testing.T) {
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {
			{ID: 1, Kind: RuleKindRegex, Matchable: "sp.m"},
			{ID: 2, Kind: RuleKindText, Matchable: "spam"},
		},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{})

	verdict, err := uc.Check(context.Background(), &Message{Group: 1, Texts: []string{"spam"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Rule == nil || verdict.Rule.ID != 2 {
		t.Errorf("literal rules evaluate before patterns, got %+v", verdict.Rule)
	}
}

func TestCheck_TextMatchSkipsImageFetch(t *testing.T) {
	fp := fingerprintOf(t, gradientPNG(t, 3))
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {
			{ID: 1, Kind: RuleKindText, Matchable: "spam"},
			{ID: 2, Kind: RuleKindImage, Matchable: fp},
		},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{})

	var fetches atomic.Int32
	msg := &Message{
		Group: 1,
		Texts: []string{"spam"},
		Images: []ImageSegment{
			{Identity: "img-1", Fetch: staticFetch(gradientPNG(t, 3), &fetches)},
		},
	}
	verdict, err := uc.Check(context.Background(), msg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Matched || verdict.Rule.Kind != RuleKindText {
		t.Fatalf("expected text match, got %+v", verdict)
	}
	if n := fetches.Load(); n != 0 {
		t.Errorf("text match must short-circuit image fetching, fetches = %d", n)
	}
}

func TestCheck_BrokenPatternIsolated(t *testing.T) {
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {
			{ID: 1, Kind: RuleKindRegex, Matchable: "[unterminated"},
			{ID: 2, Kind: RuleKindRegex, Matchable: "valid.*pattern"},
		},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{})
	ctx := context.Background()

	verdict, err := uc.Check(ctx, &Message{Group: 1, Texts: []string{"a valid spam pattern"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Rule == nil || verdict.Rule.ID != 2 {
		t.Errorf("an uncompilable rule must not block later rules, got %+v", verdict.Rule)
	}

	verdict, err = uc.Check(ctx, &Message{Group: 1, Texts: []string{"unterminated"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Matched {
		t.Errorf("an uncompilable rule matches nothing, got %+v", verdict.Rule)
	}
}

func TestCheck_PinyinRulesSkipped(t *testing.T) {
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {{ID: 1, Kind: RuleKindPinyin, Matchable: "spam"}},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{})

	verdict, err := uc.Check(context.Background(), &Message{Group: 1, Texts: []string{"spam"}})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Matched {
		t.Error("reserved rule kinds must never match")
	}
}

func TestCheck_ImageMatch(t *testing.T) {
	banned := gradientPNG(t, 3)
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {{ID: 7, Kind: RuleKindImage, Matchable: fingerprintOf(t, banned)}},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{ImageThreshold: 0.1})
	ctx := context.Background()

	msg := &Message{
		Group:  1,
		Images: []ImageSegment{{Identity: "img-1", Fetch: staticFetch(banned, nil)}},
	}
	verdict, err := uc.Check(ctx, msg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Matched || verdict.Rule == nil || verdict.Rule.ID != 7 {
		t.Fatalf("the banned image itself must match, got %+v", verdict)
	}

	other := &Message{
		Group:  1,
		Images: []ImageSegment{{Identity: "img-2", Fetch: staticFetch(gradientPNG(t, 251), nil)}},
	}
	verdict, err = uc.Check(ctx, other)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict.Matched {
		t.Error("an unrelated image must pass")
	}
}

func TestCheck_PerImageFailureTolerated(t *testing.T) {
	banned := gradientPNG(t, 3)
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {{ID: 7, Kind: RuleKindImage, Matchable: fingerprintOf(t, banned)}},
	}}
	uc := newFilterHarness(repo, nil, FilterOptions{ImageThreshold: 0.1})

	msg := &Message{
		Group: 1,
		Images: []ImageSegment{
			{Identity: "img-broken", Fetch: func(context.Context) ([]byte, error) {
				return nil, errors.New("download failed")
			}},
			{Identity: "img-banned", Fetch: staticFetch(banned, nil)},
		},
	}
	verdict, err := uc.Check(context.Background(), msg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Matched {
		t.Error("one failed image must not abort evaluation of the rest")
	}
}

func TestCheck_FailurePolicy(t *testing.T) {
	repoErr := errors.New("database down")
	tests := []struct {
		name        string
		failClosed  bool
		wantMatched bool
	}{
		{"fail open", false, false},
		{"fail closed", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := newFilterHarness(&fakeRuleRepo{err: repoErr}, nil, FilterOptions{FailClosed: tt.failClosed})
			verdict, err := uc.Check(context.Background(), &Message{Group: 1, Texts: []string{"x"}})
			if !errors.Is(err, repoErr) {
				t.Fatalf("expected the fetch error to surface, got %v", err)
			}
			if verdict.Matched != tt.wantMatched {
				t.Errorf("Matched = %v; want %v", verdict.Matched, tt.wantMatched)
			}
		})
	}
}

func TestCheck_CachedFingerprintSkipsFetch(t *testing.T) {
	banned := gradientPNG(t, 3)
	fp := fingerprintOf(t, banned)
	repo := &fakeRuleRepo{byGroup: map[int64][]*Rule{
		1: {{ID: 7, Kind: RuleKindImage, Matchable: fp}},
	}}
	cache := &fakeFingerprintCache{entries: map[string]string{"img-1": fp}}
	uc := newFilterHarness(repo, cache, FilterOptions{ImageThreshold: 0.1})

	var fetches atomic.Int32
	msg := &Message{
		Group:  1,
		Images: []ImageSegment{{Identity: "img-1", Fetch: staticFetch(banned, &fetches)}},
	}
	verdict, err := uc.Check(context.Background(), msg)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !verdict.Matched {
		t.Fatal("cached fingerprint should still match")
	}
	if fetches.Load() != 0 {
		t.Error("a cache hit must not fetch the image")
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d; want 1", cache.hits)
	}
}
