package biz

import (
	"context"
	"time"
)

// Binding is the many-to-many edge attaching a rule to a group. The pair
// (Group, RuleID) is unique; RuleID always references an existing rule,
// and bindings are removed before their rule.
type Binding struct {
	Group     int64
	RuleID    uint64
	CreatedAt time.Time
}

// BindingRepo is a Binding repository interface.
type BindingRepo interface {
	// Bind attaches a rule to a group. Idempotent: re-binding an
	// existing pair is a no-op, not an error.
	Bind(ctx context.Context, group int64, ruleID uint64) error
	// BindMany attaches one rule to several groups, idempotently.
	BindMany(ctx context.Context, groups []int64, ruleID uint64) error
	// Unbind removes the bindings selected by the groups x ruleIDs
	// filter. matched counts bindings the filter found, removed counts
	// bindings actually deleted; they differ only under a concurrent
	// deletion race.
	Unbind(ctx context.Context, groups []int64, ruleIDs []uint64) (matched, removed int64, err error)
	// SurvivingRuleIDs returns the subset of ruleIDs still referenced by
	// at least one binding in any group.
	SurvivingRuleIDs(ctx context.Context, ruleIDs []uint64) ([]uint64, error)
}
