package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// RuleKind enumerates the matchable content kinds.
type RuleKind int32

const (
	RuleKindText RuleKind = iota + 1
	RuleKindRegex
	RuleKindPinyin // reserved; never evaluated by the matching pipeline
	RuleKindImage
)

// ruleKindLabels maps kinds to display labels. Kept next to the constants
// so adding a kind updates both together.
var ruleKindLabels = map[RuleKind]string{
	RuleKindText:   "text",
	RuleKindRegex:  "regex",
	RuleKindPinyin: "pinyin",
	RuleKindImage:  "image",
}

func (k RuleKind) String() string {
	if label, ok := ruleKindLabels[k]; ok {
		return label
	}
	return "unknown"
}

func (k RuleKind) Valid() bool {
	_, ok := ruleKindLabels[k]
	return ok
}

// Rule is a canonical, deduplicated banned-content entry. At most one
// rule exists per distinct matchable value within a kind, so many groups
// can share one rule. Rules are immutable once created; an update is a
// delete plus recreate.
type Rule struct {
	ID        uint64
	Kind      RuleKind
	Origin    string // the original user-supplied representation
	Matchable string // the canonical value compared during evaluation
	CreatedAt time.Time
}

// RuleRepo is a Rule repository interface.
type RuleRepo interface {
	// FindByMatchable returns the rule with the given canonical value
	// within a kind, or nil when absent.
	FindByMatchable(ctx context.Context, kind RuleKind, matchable string) (*Rule, error)
	// Create persists a rule, or returns the existing row when one with
	// the same (kind, matchable) already exists. Implementations must be
	// race-safe under concurrent identical creates.
	Create(ctx context.Context, r *Rule) (*Rule, error)
	// ListForGroup returns the rules bound to group ordered by id
	// ascending, paged for display purposes.
	ListForGroup(ctx context.Context, group int64, limit, offset int32) ([]*Rule, error)
	// ListAllForGroup returns the unpaged rule set the matching pipeline
	// evaluates, ordered by id ascending.
	ListAllForGroup(ctx context.Context, group int64) ([]*Rule, error)
	CountForGroup(ctx context.Context, group int64) (int64, error)
	// DeleteOrphans deletes the candidates that have zero remaining
	// bindings and returns the deleted rules, so the caller can remove
	// stored assets of image rules. The repository never touches assets
	// itself.
	DeleteOrphans(ctx context.Context, candidateIDs []uint64) ([]*Rule, error)
}

// RuleUsecase manages rule creation, group bindings and orphan cleanup.
type RuleUsecase struct {
	rules    RuleRepo
	bindings BindingRepo
	assets   AssetStore
	log      *log.Helper
}

// NewRuleUsecase new a Rule usecase.
func NewRuleUsecase(rules RuleRepo, bindings BindingRepo, assets AssetStore, logger log.Logger) *RuleUsecase {
	return &RuleUsecase{
		rules:    rules,
		bindings: bindings,
		assets:   assets,
		log:      log.NewHelper(logger),
	}
}

// AddRule find-or-creates the canonical rule and binds it to groups.
// Re-binding an existing pair is a no-op.
func (uc *RuleUsecase) AddRule(ctx context.Context, kind RuleKind, origin, matchable string, groups []int64) (*Rule, error) {
	if !kind.Valid() {
		return nil, errors.BadRequest("RULE_KIND_INVALID", "unknown rule kind")
	}
	if matchable == "" {
		return nil, errors.BadRequest("RULE_CONTENT_EMPTY", "rule content must not be empty")
	}
	if err := validateGroups(groups); err != nil {
		return nil, err
	}

	rule, err := uc.rules.Create(ctx, &Rule{Kind: kind, Origin: origin, Matchable: matchable})
	if err != nil {
		if !errors.IsConflict(err) {
			return nil, err
		}
		// A concurrent identical create raced and won; the canonical row
		// exists now, reuse it.
		rule, err = uc.rules.FindByMatchable(ctx, kind, matchable)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			return nil, errors.InternalServer("RULE_DEDUP_RACE", "rule vanished after create conflict")
		}
	}

	if err := uc.bindings.BindMany(ctx, groups, rule.ID); err != nil {
		return nil, err
	}
	uc.log.Infof("bound %s rule %d to %d group(s)", rule.Kind, rule.ID, len(groups))
	return rule, nil
}

// RemovalReport describes the outcome of RemoveRules.
type RemovalReport struct {
	// Matched is the number of bindings the filter selected; Removed is
	// how many were actually deleted. They differ only when a concurrent
	// removal raced, which callers should report as partial failure.
	Matched int64
	Removed int64
	// DeletedRuleIDs are the orphaned rules cleaned up afterwards.
	DeletedRuleIDs []uint64
}

// Partial reports whether a concurrent removal raced this one.
func (r *RemovalReport) Partial() bool {
	return r.Matched != r.Removed
}

// RemoveRules unbinds the rules from the groups, then deletes the rules
// that are no longer bound anywhere, along with their stored assets.
func (uc *RuleUsecase) RemoveRules(ctx context.Context, groups []int64, ruleIDs []uint64) (*RemovalReport, error) {
	if err := validateGroups(groups); err != nil {
		return nil, err
	}
	if len(ruleIDs) == 0 {
		return nil, errors.BadRequest("RULE_IDS_EMPTY", "no rule ids given")
	}

	matched, removed, err := uc.bindings.Unbind(ctx, groups, ruleIDs)
	if err != nil {
		return nil, err
	}
	report := &RemovalReport{Matched: matched, Removed: removed}

	surviving, err := uc.bindings.SurvivingRuleIDs(ctx, ruleIDs)
	if err != nil {
		return nil, err
	}
	candidates := orphanCandidates(ruleIDs, surviving)
	if len(candidates) == 0 {
		return report, nil
	}

	deleted, err := uc.rules.DeleteOrphans(ctx, candidates)
	if err != nil {
		return nil, err
	}
	for _, r := range deleted {
		report.DeletedRuleIDs = append(report.DeletedRuleIDs, r.ID)
		if r.Kind == RuleKindImage {
			if err := uc.assets.Delete(ctx, r.Origin); err != nil {
				uc.log.Warnf("failed to delete asset %q of rule %d: %v", r.Origin, r.ID, err)
			}
		}
	}
	uc.log.Infof("unbind matched=%d removed=%d, deleted %d orphan rule(s)", matched, removed, len(deleted))
	return report, nil
}

// ListRules returns one display page of the rules bound to group,
// together with the total count.
func (uc *RuleUsecase) ListRules(ctx context.Context, group int64, limit, offset int32) ([]*Rule, int64, error) {
	if group <= 0 {
		return nil, 0, errors.BadRequest("GROUP_INVALID", "group id must be positive")
	}
	rules, err := uc.rules.ListForGroup(ctx, group, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := uc.rules.CountForGroup(ctx, group)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// orphanCandidates returns the requested ids that no remaining binding
// references.
func orphanCandidates(requested, surviving []uint64) []uint64 {
	alive := make(map[uint64]struct{}, len(surviving))
	for _, id := range surviving {
		alive[id] = struct{}{}
	}
	candidates := make([]uint64, 0, len(requested))
	for _, id := range requested {
		if _, ok := alive[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	return candidates
}

func validateGroups(groups []int64) error {
	if len(groups) == 0 {
		return errors.BadRequest("GROUPS_EMPTY", "no groups given")
	}
	for _, g := range groups {
		if g <= 0 {
			return errors.BadRequest("GROUP_INVALID", "group id must be positive")
		}
	}
	return nil
}
