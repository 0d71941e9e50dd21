// department/service.go
package department

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	"github.com/harborgrid-justin/lithic-sub009/cache"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	logger "github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
	"github.com/harborgrid-justin/lithic-sub009/store"
)

// IService defines the department gate consumed by the engine.
type IService interface {
	GrantAccess(ctx context.Context, access *model.DepartmentAccess, grantedBy string) error
	RevokeAccess(ctx context.Context, userID, departmentID, actorID string) error
	HasAccess(ctx context.Context, userID, departmentID string, minLevel model.DepartmentAccessLevel, now time.Time) (bool, error)
	CleanupExpiredAccess(ctx context.Context) (int, error)
	RequestCrossDepartmentAccess(ctx context.Context, userID, fromDeptID, toDeptID, resource, reason string) (*model.CrossDepartmentRequest, error)
	ApproveCrossDepartmentRequest(ctx context.Context, requestID, approverID string) error
	DenyCrossDepartmentRequest(ctx context.Context, requestID, approverID string) error
}

// Service gates access by department membership, including the
// cross-department request workflow.
type Service struct {
	store    store.Store
	auditSvc *audit.Service
	cache    cache.DecisionCache
}

var _ IService = &Service{}

func NewService(s store.Store, auditSvc *audit.Service, c cache.DecisionCache) *Service {
	return &Service{store: s, auditSvc: auditSvc, cache: c}
}

// GrantAccess upserts a department grant. The mutation is audited and the
// user's cached decisions are invalidated before returning.
func (s *Service) GrantAccess(ctx context.Context, access *model.DepartmentAccess, grantedBy string) error {
	if access == nil || access.UserID == "" || access.DepartmentID == "" {
		return fmt.Errorf("%w: department access requires user and department", lithic_errors.ErrInvalidGrant)
	}
	if access.AccessLevel == "" {
		access.AccessLevel = model.DeptAccessReadOnly
	}
	access.GrantedBy = grantedBy

	if err := s.store.UpsertDepartmentAccess(ctx, access); err != nil {
		return err
	}
	s.invalidate(ctx, access.UserID)
	logger.Info("Department access granted",
		zap.String("userId", access.UserID),
		zap.String("departmentId", access.DepartmentID),
		zap.String("level", string(access.AccessLevel)))
	s.auditSvc.RecordAdminAction(ctx, grantedBy, "DEPARTMENT_ACCESS_GRANTED", "department_access", access.ID,
		fmt.Sprintf("Granted %s access to department %s for user %s", access.AccessLevel, access.DepartmentID, access.UserID),
		map[string]string{"user_id": access.UserID, "department_id": access.DepartmentID})
	return nil
}

func (s *Service) RevokeAccess(ctx context.Context, userID, departmentID, actorID string) error {
	if err := s.store.DeleteDepartmentAccess(ctx, userID, departmentID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	logger.Info("Department access revoked",
		zap.String("userId", userID),
		zap.String("departmentId", departmentID))
	s.auditSvc.RecordAdminAction(ctx, actorID, "DEPARTMENT_ACCESS_REVOKED", "department_access", "",
		fmt.Sprintf("Revoked department %s access for user %s", departmentID, userID),
		map[string]string{"user_id": userID, "department_id": departmentID})
	return nil
}

// HasAccess checks for an unexpired grant at or above minLevel, either
// directly on the department or through another grant whose
// cross-department allowance lists it.
func (s *Service) HasAccess(ctx context.Context, userID, departmentID string, minLevel model.DepartmentAccessLevel, now time.Time) (bool, error) {
	grants, err := s.store.DepartmentAccessForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range grants {
		grant := &grants[i]
		if grant.Expired(now) || !grant.AccessLevel.AtLeast(minLevel) {
			continue
		}
		if grant.DepartmentID == departmentID {
			return true, nil
		}
		if grant.CanCrossDepartment {
			for _, allowed := range grant.AllowedDepartments {
				if allowed == departmentID {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (s *Service) CleanupExpiredAccess(ctx context.Context) (int, error) {
	count, err := s.store.PurgeExpiredDepartmentAccess(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Info("Purged expired department access", zap.Int("count", count))
	}
	return count, nil
}

// RequestCrossDepartmentAccess starts the cross-department workflow. A
// matching rule that does not require approval resolves immediately;
// otherwise the request stays PENDING for an approver.
func (s *Service) RequestCrossDepartmentAccess(ctx context.Context, userID, fromDeptID, toDeptID, resource, reason string) (*model.CrossDepartmentRequest, error) {
	rules, err := s.store.CrossDepartmentRules(ctx, fromDeptID, toDeptID)
	if err != nil {
		return nil, err
	}
	rule := matchRule(rules, resource)
	if rule == nil {
		return nil, lithic_errors.ErrCrossDepartmentDenied
	}

	req := &model.CrossDepartmentRequest{
		UserID:           userID,
		FromDepartmentID: fromDeptID,
		ToDepartmentID:   toDeptID,
		Resource:         resource,
		Reason:           reason,
		Status:           model.RequestPending,
		RuleID:           rule.ID,
	}
	if err := s.store.SaveCrossDepartmentRequest(ctx, req); err != nil {
		return nil, err
	}

	if !rule.RequiresApproval {
		if err := s.resolveCrossDepartmentRequest(ctx, req, rule, "system"); err != nil {
			return nil, err
		}
	}
	logger.Info("Cross-department access requested",
		zap.String("userId", userID),
		zap.String("fromDept", fromDeptID),
		zap.String("toDept", toDeptID),
		zap.String("status", string(req.Status)))
	return req, nil
}

// ApproveCrossDepartmentRequest resolves a PENDING request, creating or
// extending the department grant the rule calls for.
func (s *Service) ApproveCrossDepartmentRequest(ctx context.Context, requestID, approverID string) error {
	req, err := s.store.GetCrossDepartmentRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return fmt.Errorf("%w: request %s is %s", lithic_errors.ErrRequestAlreadyResolved, requestID, req.Status)
	}

	rules, err := s.store.CrossDepartmentRules(ctx, req.FromDepartmentID, req.ToDepartmentID)
	if err != nil {
		return err
	}
	rule := matchRule(rules, req.Resource)
	if rule == nil {
		return lithic_errors.ErrCrossDepartmentDenied
	}
	return s.resolveCrossDepartmentRequest(ctx, req, rule, approverID)
}

func (s *Service) DenyCrossDepartmentRequest(ctx context.Context, requestID, approverID string) error {
	req, err := s.store.GetCrossDepartmentRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return fmt.Errorf("%w: request %s is %s", lithic_errors.ErrRequestAlreadyResolved, requestID, req.Status)
	}

	now := time.Now()
	req.Status = model.RequestDenied
	req.ResolvedBy = approverID
	req.ResolvedAt = &now
	if err := s.store.SaveCrossDepartmentRequest(ctx, req); err != nil {
		return err
	}
	s.auditSvc.RecordAdminAction(ctx, approverID, "CROSS_DEPARTMENT_DENIED", "cross_department_requests", req.ID,
		fmt.Sprintf("Denied cross-department request for user %s into %s", req.UserID, req.ToDepartmentID),
		map[string]string{"user_id": req.UserID, "to_department": req.ToDepartmentID})
	return nil
}

func (s *Service) resolveCrossDepartmentRequest(ctx context.Context, req *model.CrossDepartmentRequest, rule *model.CrossDepartmentRule, approverID string) error {
	now := time.Now()
	req.Status = model.RequestApproved
	req.ResolvedBy = approverID
	req.ResolvedAt = &now
	if err := s.store.SaveCrossDepartmentRequest(ctx, req); err != nil {
		return err
	}

	access := &model.DepartmentAccess{
		UserID:       req.UserID,
		DepartmentID: req.ToDepartmentID,
		AccessLevel:  model.DeptAccessReadOnly,
		GrantedBy:    approverID,
	}
	if rule.AutoExpireMinutes > 0 {
		expires := now.Add(time.Duration(rule.AutoExpireMinutes) * time.Minute)
		access.ExpiresAt = &expires
	}

	// Extend rather than downgrade an existing grant.
	existing, err := s.store.DepartmentAccessForUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	for i := range existing {
		e := &existing[i]
		if e.DepartmentID != req.ToDepartmentID || e.Expired(now) {
			continue
		}
		if e.AccessLevel.AtLeast(access.AccessLevel) {
			access.AccessLevel = e.AccessLevel
		}
		if e.ExpiresAt == nil || (access.ExpiresAt != nil && e.ExpiresAt.After(*access.ExpiresAt)) {
			access.ExpiresAt = e.ExpiresAt
		}
		access.CanCrossDepartment = e.CanCrossDepartment
		access.AllowedDepartments = e.AllowedDepartments
	}

	if err := s.store.UpsertDepartmentAccess(ctx, access); err != nil {
		return err
	}
	s.invalidate(ctx, req.UserID)
	s.auditSvc.RecordAdminAction(ctx, approverID, "CROSS_DEPARTMENT_APPROVED", "cross_department_requests", req.ID,
		fmt.Sprintf("Approved cross-department access for user %s into %s", req.UserID, req.ToDepartmentID),
		map[string]string{"user_id": req.UserID, "to_department": req.ToDepartmentID, "rule_id": rule.ID})
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}

func matchRule(rules []model.CrossDepartmentRule, resource string) *model.CrossDepartmentRule {
	for i := range rules {
		for _, allowed := range rules[i].AllowedResources {
			if allowed == "*" || allowed == resource {
				return &rules[i]
			}
		}
	}
	return nil
}
