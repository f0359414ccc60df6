package data

import (
	"context"

	"groupguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

type bindingRepo struct {
	data *Data
	log  *log.Helper
}

// NewBindingRepo creates a new BindingRepo.
func NewBindingRepo(data *Data, logger log.Logger) biz.BindingRepo {
	return &bindingRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Bind implements biz.BindingRepo.
func (r *bindingRepo) Bind(ctx context.Context, group int64, ruleID uint64) error {
	_, err := r.data.Pool.Exec(ctx, `
		INSERT INTO rule_bindings (group_id, rule_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, rule_id) DO NOTHING`,
		group, int64(ruleID))
	return err
}

// BindMany implements biz.BindingRepo.
func (r *bindingRepo) BindMany(ctx context.Context, groups []int64, ruleID uint64) error {
	batch := &pgx.Batch{}
	for _, group := range groups {
		batch.Queue(`
			INSERT INTO rule_bindings (group_id, rule_id)
			VALUES ($1, $2)
			ON CONFLICT (group_id, rule_id) DO NOTHING`,
			group, int64(ruleID))
	}
	return r.data.Pool.SendBatch(ctx, batch).Close()
}

// Unbind implements biz.BindingRepo. matched is counted before the
// delete; the two counts differ only when a concurrent deletion races.
func (r *bindingRepo) Unbind(ctx context.Context, groups []int64, ruleIDs []uint64) (int64, int64, error) {
	ids := idsToInt64(ruleIDs)

	var matched int64
	err := r.data.Pool.QueryRow(ctx, `
		SELECT count(*)
		FROM rule_bindings
		WHERE group_id = ANY($1) AND rule_id = ANY($2)`,
		groups, ids).Scan(&matched)
	if err != nil {
		return 0, 0, err
	}

	tag, err := r.data.Pool.Exec(ctx, `
		DELETE FROM rule_bindings
		WHERE group_id = ANY($1) AND rule_id = ANY($2)`,
		groups, ids)
	if err != nil {
		return matched, 0, err
	}
	return matched, tag.RowsAffected(), nil
}

// SurvivingRuleIDs implements biz.BindingRepo.
func (r *bindingRepo) SurvivingRuleIDs(ctx context.Context, ruleIDs []uint64) ([]uint64, error) {
	rows, err := r.data.Pool.Query(ctx, `
		SELECT DISTINCT rule_id
		FROM rule_bindings
		WHERE rule_id = ANY($1)`,
		idsToInt64(ruleIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var surviving []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		surviving = append(surviving, uint64(id))
	}
	return surviving, rows.Err()
}
