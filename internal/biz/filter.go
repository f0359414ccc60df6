package biz

import (
	"context"

	"groupguard/internal/pkg/hash"
	"groupguard/internal/pkg/imaging"
	"groupguard/internal/pkg/matcher"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// hashWorkers bounds the per-message image hashing fan-out.
const hashWorkers = 4

// ImageSegment is one image attachment of a message.
type ImageSegment struct {
	// Identity is a stable identifier for the image content, e.g. the
	// platform's filename or content id. It keys the fingerprint cache.
	Identity string
	// Fetch retrieves the raw image bytes. Called at most once per
	// evaluation, and only on a fingerprint cache miss.
	Fetch func(ctx context.Context) ([]byte, error)
}

// Message is the engine's view of one inbound group message.
type Message struct {
	Group  int64
	Texts  []string
	Images []ImageSegment
}

// Verdict is the outcome of evaluating one message. Rule is set only
// when Matched is true.
type Verdict struct {
	Matched bool
	Rule    *Rule
}

// FingerprintCache maps an image identity to its fingerprint with a
// fixed expiry. Not authoritative: a miss is recomputed via compute,
// never treated as absence of a rule.
type FingerprintCache interface {
	GetOrCompute(ctx context.Context, identity string, compute func(ctx context.Context) (string, error)) (string, error)
}

// FilterOptions are the matching-engine toggles, consumed as input.
type FilterOptions struct {
	Text           matcher.TextOptions
	ImageThreshold float64
	// FailClosed blocks the message when the rule set cannot be fetched;
	// the default lets it through.
	FailClosed bool
}

// FilterUsecase is the matching pipeline. It is stateless between
// messages and never mutates rule data: pure read and evaluate.
type FilterUsecase struct {
	rules RuleRepo
	cache FingerprintCache
	text  *matcher.TextMatcher
	fpr   *hash.Fingerprinter
	opts  FilterOptions
	log   *log.Helper
}

// NewFilterUsecase new a Filter usecase.
func NewFilterUsecase(rules RuleRepo, cache FingerprintCache, text *matcher.TextMatcher, opts FilterOptions, logger log.Logger) *FilterUsecase {
	return &FilterUsecase{
		rules: rules,
		cache: cache,
		text:  text,
		fpr:   hash.NewFingerprinter(),
		opts:  opts,
		log:   log.NewHelper(logger),
	}
}

// Check evaluates one message against the rules bound to its group.
// Text and regex rules run strictly before image rules, so a text match
// short-circuits all image fetching and hashing. Failures local to one
// rule or one image degrade to "fewer rules considered"; only a failed
// rule-set fetch is fatal to the evaluation, and the returned verdict
// then follows the fail-open/fail-closed policy.
func (uc *FilterUsecase) Check(ctx context.Context, msg *Message) (*Verdict, error) {
	rules, err := uc.rules.ListAllForGroup(ctx, msg.Group)
	if err != nil {
		uc.log.Errorf("rule set fetch failed for group %d: %v", msg.Group, err)
		return &Verdict{Matched: uc.opts.FailClosed}, err
	}
	if len(rules) == 0 {
		return &Verdict{}, nil
	}

	if rule := uc.evaluateText(msg.Texts, rules); rule != nil {
		return &Verdict{Matched: true, Rule: rule}, nil
	}
	if rule := uc.evaluateImages(ctx, msg.Images, rules); rule != nil {
		return &Verdict{Matched: true, Rule: rule}, nil
	}
	return &Verdict{}, nil
}

// evaluateText runs literal rules first, then pattern rules, in rule id
// order; the first match wins. Pinyin rules are reserved and skipped.
func (uc *FilterUsecase) evaluateText(texts []string, rules []*Rule) *Rule {
	if len(texts) == 0 {
		return nil
	}
	for _, r := range rules {
		if r.Kind != RuleKindText {
			continue
		}
		for _, t := range texts {
			if uc.text.MatchText(t, r.Matchable) {
				return r
			}
		}
	}
	for _, r := range rules {
		if r.Kind != RuleKindRegex {
			continue
		}
		for _, t := range texts {
			if uc.text.MatchRegex(t, r.Matchable) {
				return r
			}
		}
	}
	return nil
}

func (uc *FilterUsecase) evaluateImages(ctx context.Context, images []ImageSegment, rules []*Rule) *Rule {
	var ruleFPs []string
	byFP := make(map[string]*Rule)
	for _, r := range rules {
		if r.Kind != RuleKindImage {
			continue
		}
		ruleFPs = append(ruleFPs, r.Matchable)
		if _, ok := byFP[r.Matchable]; !ok {
			byFP[r.Matchable] = r
		}
	}
	if len(ruleFPs) == 0 || len(images) == 0 {
		return nil
	}

	candidates := uc.fingerprints(ctx, images)
	fp, ok := matcher.MatchFingerprints(candidates, ruleFPs, uc.opts.ImageThreshold)
	if !ok {
		return nil
	}
	return byFP[fp]
}

// fingerprints hashes the message's images in parallel and joins before
// matching. An image whose fetch or hash fails is excluded; evaluation
// proceeds with the rest.
func (uc *FilterUsecase) fingerprints(ctx context.Context, images []ImageSegment) []string {
	results := make([]string, len(images))
	g := new(errgroup.Group)
	g.SetLimit(hashWorkers)
	for i, seg := range images {
		i, seg := i, seg
		g.Go(func() error {
			fp, err := uc.getOrCompute(ctx, seg)
			if err != nil {
				uc.log.Warnf("excluding image %q from evaluation: %v", seg.Identity, err)
				return nil
			}
			results[i] = fp
			return nil
		})
	}
	_ = g.Wait()

	fps := results[:0]
	for _, fp := range results {
		if fp != "" {
			fps = append(fps, fp)
		}
	}
	return fps
}

func (uc *FilterUsecase) getOrCompute(ctx context.Context, seg ImageSegment) (string, error) {
	compute := func(ctx context.Context) (string, error) {
		data, err := seg.Fetch(ctx)
		if err != nil {
			return "", err
		}
		canonical, err := imaging.Canonicalize(data)
		if err != nil {
			return "", err
		}
		return uc.fpr.FingerprintBytes(canonical)
	}
	if uc.cache == nil {
		return compute(ctx)
	}
	return uc.cache.GetOrCompute(ctx, seg.Identity, compute)
}
