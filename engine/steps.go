// engine/steps.go
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/harborgrid-justin/lithic-sub009/model"
)

// Step is one stage of the ordered evaluation pipeline. A nil result
// means the step has no opinion and evaluation moves on; the first
// non-nil result is final.
type Step interface {
	Name() string
	Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error)
}

const (
	stepDenyPolicies      = "deny_policies"
	stepBreakGlass        = "break_glass"
	stepRolePermissions   = "role_permissions"
	stepCustomPermissions = "custom_permissions"
	stepTemporaryGrants   = "temporary_grants"
	stepGenericPolicies   = "generic_policies"
)

// matchPattern supports exact match, the "*" wildcard, and dotted-prefix
// patterns: "patients.*" matches any value starting with "patients".
func matchPattern(pattern, value string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, ".*"))
	}
	return false
}

// permissionMatches applies permission matching: resource and action may
// be exact, wildcard, or dotted-prefix, and a permission whose action is
// "admin" matches any requested action.
func permissionMatches(p model.Permission, resource, action string) bool {
	if !matchPattern(p.Resource, resource) {
		return false
	}
	return p.Action == "admin" || matchPattern(p.Action, action)
}

func ruleMatches(rule model.PolicyRule, resource, action string) bool {
	return matchPattern(rule.Resource, resource) && matchPattern(rule.Action, action)
}

// denyPolicyStep terminates evaluation on any enabled DENY policy whose
// rules match the request. Explicit denies outrank everything.
type denyPolicyStep struct {
	engine *Engine
}

func (s *denyPolicyStep) Name() string { return stepDenyPolicies }

func (s *denyPolicyStep) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error) {
	policies, err := s.engine.store.PoliciesForOrganization(ctx, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		if policy.Effect != model.EffectDeny {
			continue
		}
		for _, rule := range policy.Rules {
			if ruleMatches(rule, evalCtx.Resource, evalCtx.Action) {
				return &model.EvaluationResult{
					Allowed:         false,
					Reason:          fmt.Sprintf("Denied by policy %q", policy.Name),
					MatchedPolicies: []string{"policy:" + policy.ID},
				}, nil
			}
		}
	}
	return nil, nil
}

// breakGlassStep allows on an ACTIVE, unexpired emergency grant for the
// requested resource and action. Every use emits a PHI audit entry, and
// the decision is never cached.
type breakGlassStep struct {
	engine *Engine
}

func (s *breakGlassStep) Name() string { return stepBreakGlass }

func (s *breakGlassStep) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error) {
	// Query the store rather than the user snapshot so a revocation is
	// honored on the very next evaluation.
	requests, err := s.engine.store.BreakGlassForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := evalCtx.At()
	for i := range requests {
		req := &requests[i]
		if !req.Usable(now) {
			continue
		}
		if req.Resource != evalCtx.Resource || req.Action != evalCtx.Action {
			continue
		}
		s.engine.auditSvc.RecordBreakGlass(ctx, user.ID, evalCtx.Resource, evalCtx.ResourceID,
			evalCtx.Action, req.ID, user.OrganizationID, evalCtx.IPAddress, evalCtx.LocationID)
		return &model.EvaluationResult{
			Allowed:         true,
			Reason:          "Break-glass emergency access",
			MatchedPolicies: []string{"break-glass:" + req.ID},
		}, nil
	}
	return nil, nil
}

// rolePermissionStep allows when the user's resolved (inherited) role
// permission set contains a match whose conditions are all satisfied. A
// match with unsatisfied conditions is not a deny; later steps may still
// grant access.
type rolePermissionStep struct {
	engine *Engine
}

func (s *rolePermissionStep) Name() string { return stepRolePermissions }

func (s *rolePermissionStep) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error) {
	if user.RoleID == "" {
		return nil, nil
	}
	permissions, err := s.engine.resolver.ResolveRolePermissions(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.evaluatePermissionSet(ctx, evalCtx, user, permissions, "role:"+user.RoleID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// customPermissionStep applies the same matching and condition logic to
// the user's ad hoc permissions.
type customPermissionStep struct {
	engine *Engine
}

func (s *customPermissionStep) Name() string { return stepCustomPermissions }

func (s *customPermissionStep) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error) {
	if len(user.CustomPermissions) == 0 {
		return nil, nil
	}
	return s.engine.evaluatePermissionSet(ctx, evalCtx, user, user.CustomPermissions, "custom:"+user.ID)
}

// temporaryGrantStep allows on an unexpired, unrevoked grant that matches
// resource, resource instance, and action exactly.
type temporaryGrantStep struct {
	engine *Engine
}

func (s *temporaryGrantStep) Name() string { return stepTemporaryGrants }

func (s *temporaryGrantStep) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error) {
	grants, err := s.engine.store.AccessGrantsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := evalCtx.At()
	for i := range grants {
		grant := &grants[i]
		if grant.Revoked || grant.Expired(now) {
			continue
		}
		if grant.Resource == evalCtx.Resource && grant.ResourceID == evalCtx.ResourceID && grant.Action == evalCtx.Action {
			return &model.EvaluationResult{
				Allowed:         true,
				Reason:          "Temporary access grant",
				MatchedPolicies: []string{"grant:" + grant.ID},
			}, nil
		}
	}
	return nil, nil
}

// genericPolicyStep evaluates ALLOW / REQUIRE_MFA / REQUIRE_APPROVAL
// policies in ascending priority; the first match wins. Only ALLOW
// resolves to allowed — the MFA and approval flags are surfaced for the
// caller to enforce.
type genericPolicyStep struct {
	engine *Engine
}

func (s *genericPolicyStep) Name() string { return stepGenericPolicies }

func (s *genericPolicyStep) Evaluate(ctx context.Context, evalCtx *model.EvaluationContext, user *model.User) (*model.EvaluationResult, error) {
	policies, err := s.engine.store.PoliciesForOrganization(ctx, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		if policy.Effect == model.EffectDeny {
			continue
		}
		for _, rule := range policy.Rules {
			if !ruleMatches(rule, evalCtx.Resource, evalCtx.Action) {
				continue
			}
			result := &model.EvaluationResult{
				Allowed:         policy.Effect == model.EffectAllow,
				MatchedPolicies: []string{"policy:" + policy.ID},
			}
			switch policy.Effect {
			case model.EffectAllow:
				result.Reason = fmt.Sprintf("Allowed by policy %q", policy.Name)
			case model.EffectRequireMFA:
				result.Reason = fmt.Sprintf("Policy %q requires multi-factor authentication", policy.Name)
				result.RequiresMFA = true
			case model.EffectRequireApproval:
				result.Reason = fmt.Sprintf("Policy %q requires approval", policy.Name)
				result.RequiresApproval = true
			}
			return result, nil
		}
	}
	return nil, nil
}
