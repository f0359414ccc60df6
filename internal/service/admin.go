package service

import (
	"context"
	"os"
	"strings"

	"groupguard/internal/biz"
	"groupguard/internal/pkg/hash"
	"groupguard/internal/pkg/imaging"
	"groupguard/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// AdminService is the rule administration surface. Input parsing and
// user confirmation belong to the caller; this layer only maps requests
// onto the rule usecase.
type AdminService struct {
	rules  *biz.RuleUsecase
	assets biz.AssetStore
	fpr    *hash.Fingerprinter
	log    *log.Helper
}

// NewAdminService creates a new AdminService.
func NewAdminService(rules *biz.RuleUsecase, assets biz.AssetStore, logger log.Logger) *AdminService {
	return &AdminService{
		rules:  rules,
		assets: assets,
		fpr:    hash.NewFingerprinter(),
		log:    log.NewHelper(logger),
	}
}

// RuleInfo is the external view of a rule.
type RuleInfo struct {
	ID     uint64 `json:"id"`
	Kind   string `json:"kind"`
	Origin string `json:"origin"`
}

type AddTextRulesRequest struct {
	Groups []int64  `json:"groups"`
	Lines  []string `json:"lines"`
	// Regex interprets each line as a pattern source instead of a
	// literal, honoring the /pattern/flags convention.
	Regex bool `json:"regex"`
}

type AddRulesReply struct {
	Rules []RuleInfo `json:"rules"`
}

// AddTextRules find-or-creates one rule per non-blank line and binds
// each to all the given groups.
func (s *AdminService) AddTextRules(ctx context.Context, req *AddTextRulesRequest) (*AddRulesReply, error) {
	kind := biz.RuleKindText
	if req.Regex {
		kind = biz.RuleKindRegex
	}

	reply := &AddRulesReply{}
	for _, line := range req.Lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rule, err := s.rules.AddRule(ctx, kind, line, line, req.Groups)
		if err != nil {
			return nil, err
		}
		reply.Rules = append(reply.Rules, toRuleInfo(rule))
	}
	if len(reply.Rules) == 0 {
		return nil, errors.BadRequest("RULE_CONTENT_EMPTY", "no non-blank lines given")
	}
	return reply, nil
}

type AddImageRuleRequest struct {
	Groups []int64 `json:"groups"`
	// Data is the raw image, any decodable format.
	Data []byte `json:"data"`
}

// AddImageRule canonicalizes and fingerprints the image, stores the
// canonical bytes under the fingerprint-derived filename and binds the
// resulting rule to the groups.
func (s *AdminService) AddImageRule(ctx context.Context, req *AddImageRuleRequest) (*AddRulesReply, error) {
	canonical, err := imaging.Canonicalize(req.Data)
	if err != nil {
		return nil, errors.BadRequest("IMAGE_UNDECODABLE", err.Error())
	}
	fp, err := s.fpr.FingerprintBytes(canonical)
	if err != nil {
		return nil, errors.BadRequest("IMAGE_UNHASHABLE", err.Error())
	}

	filename := fp + ".png"
	if err := s.assets.Save(ctx, filename, canonical); err != nil {
		return nil, err
	}

	rule, err := s.rules.AddRule(ctx, biz.RuleKindImage, filename, fp, req.Groups)
	if err != nil {
		return nil, err
	}
	return &AddRulesReply{Rules: []RuleInfo{toRuleInfo(rule)}}, nil
}

type GetRuleImageRequest struct {
	// Name is the rule's stored filename, i.e. its Origin.
	Name string `json:"name"`
}

type GetRuleImageReply struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// GetRuleImage returns the stored canonical bytes of an image rule.
func (s *AdminService) GetRuleImage(ctx context.Context, req *GetRuleImageRequest) (*GetRuleImageReply, error) {
	if req.Name == "" {
		return nil, errors.BadRequest("ASSET_NAME_EMPTY", "asset name must not be empty")
	}
	data, err := s.assets.Load(ctx, req.Name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("ASSET_NOT_FOUND", "no stored image under that name")
		}
		return nil, err
	}
	return &GetRuleImageReply{Name: req.Name, Data: data}, nil
}

type RemoveRulesRequest struct {
	Groups  []int64  `json:"groups"`
	RuleIDs []uint64 `json:"rule_ids"`
}

type RemoveRulesReply struct {
	Matched        int64    `json:"matched"`
	Removed        int64    `json:"removed"`
	DeletedRuleIDs []uint64 `json:"deleted_rule_ids,omitempty"`
	// Partial flags a concurrent removal race; callers should report
	// partial failure instead of silently succeeding.
	Partial bool `json:"partial"`
}

// RemoveRules detaches the rules from the groups and cleans up orphans.
func (s *AdminService) RemoveRules(ctx context.Context, req *RemoveRulesRequest) (*RemoveRulesReply, error) {
	report, err := s.rules.RemoveRules(ctx, req.Groups, req.RuleIDs)
	if err != nil {
		return nil, err
	}
	return &RemoveRulesReply{
		Matched:        report.Matched,
		Removed:        report.Removed,
		DeletedRuleIDs: report.DeletedRuleIDs,
		Partial:        report.Partial(),
	}, nil
}

type ListRulesRequest struct {
	Group    int64 `json:"group"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// ListRules returns one display page of a group's rules.
func (s *AdminService) ListRules(ctx context.Context, req *ListRulesRequest) (*pagination.OffsetResponse[RuleInfo], error) {
	page := pagination.NewOffsetRequest(req.Page, req.PageSize)
	rules, total, err := s.rules.ListRules(ctx, req.Group, int32(page.GetPageSize()), int32(page.GetOffset()))
	if err != nil {
		return nil, err
	}
	items := make([]RuleInfo, len(rules))
	for i, r := range rules {
		items[i] = toRuleInfo(r)
	}
	return pagination.BuildOffsetResponse(items, page, total), nil
}

func toRuleInfo(r *biz.Rule) RuleInfo {
	return RuleInfo{
		ID:     r.ID,
		Kind:   r.Kind.String(),
		Origin: r.Origin,
	}
}
