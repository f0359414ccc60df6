package data

import (
	"context"
	"errors"

	"groupguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

type ruleRepo struct {
	data *Data
	log  *log.Helper
}

// NewRuleRepo creates a new RuleRepo.
func NewRuleRepo(data *Data, logger log.Logger) biz.RuleRepo {
	return &ruleRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

const ruleColumns = "id, kind, origin, matchable, created_at"

// Create implements biz.RuleRepo. The no-op DO UPDATE makes the upsert
// return the existing row on conflict, so concurrent identical creates
// both observe the same canonical rule.
func (r *ruleRepo) Create(ctx context.Context, rule *biz.Rule) (*biz.Rule, error) {
	row := r.data.Pool.QueryRow(ctx, `
		INSERT INTO rules (kind, origin, matchable)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, matchable)
		DO UPDATE SET matchable = EXCLUDED.matchable
		RETURNING `+ruleColumns,
		rule.Kind, rule.Origin, rule.Matchable)
	return scanRule(row)
}

// FindByMatchable implements biz.RuleRepo. Returns nil when absent.
func (r *ruleRepo) FindByMatchable(ctx context.Context, kind biz.RuleKind, matchable string) (*biz.Rule, error) {
	row := r.data.Pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE kind = $1 AND matchable = $2`,
		kind, matchable)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rule, err
}

// ListForGroup implements biz.RuleRepo.
func (r *ruleRepo) ListForGroup(ctx context.Context, group int64, limit, offset int32) ([]*biz.Rule, error) {
	rows, err := r.data.Pool.Query(ctx, `
		SELECT r.id, r.kind, r.origin, r.matchable, r.created_at
		FROM rules r
		JOIN rule_bindings b ON b.rule_id = r.id
		WHERE b.group_id = $1
		ORDER BY r.id ASC
		LIMIT $2 OFFSET $3`,
		group, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// ListAllForGroup implements biz.RuleRepo.
func (r *ruleRepo) ListAllForGroup(ctx context.Context, group int64) ([]*biz.Rule, error) {
	rows, err := r.data.Pool.Query(ctx, `
		SELECT r.id, r.kind, r.origin, r.matchable, r.created_at
		FROM rules r
		JOIN rule_bindings b ON b.rule_id = r.id
		WHERE b.group_id = $1
		ORDER BY r.id ASC`,
		group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// CountForGroup implements biz.RuleRepo.
func (r *ruleRepo) CountForGroup(ctx context.Context, group int64) (int64, error) {
	var count int64
	err := r.data.Pool.QueryRow(ctx, `
		SELECT count(*) FROM rule_bindings WHERE group_id = $1`,
		group).Scan(&count)
	return count, err
}

// DeleteOrphans implements biz.RuleRepo. Only candidates with zero
// remaining bindings are deleted; the deleted rows are returned so the
// caller can clean up image assets.
func (r *ruleRepo) DeleteOrphans(ctx context.Context, candidateIDs []uint64) ([]*biz.Rule, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	rows, err := r.data.Pool.Query(ctx, `
		DELETE FROM rules r
		WHERE r.id = ANY($1)
		  AND NOT EXISTS (
			SELECT 1 FROM rule_bindings b WHERE b.rule_id = r.id
		  )
		RETURNING `+ruleColumns,
		idsToInt64(candidateIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRule(row pgx.Row) (*biz.Rule, error) {
	var rule biz.Rule
	if err := row.Scan(&rule.ID, &rule.Kind, &rule.Origin, &rule.Matchable, &rule.CreatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanRules(rows pgx.Rows) ([]*biz.Rule, error) {
	var rules []*biz.Rule
	for rows.Next() {
		var rule biz.Rule
		if err := rows.Scan(&rule.ID, &rule.Kind, &rule.Origin, &rule.Matchable, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

func idsToInt64(ids []uint64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
