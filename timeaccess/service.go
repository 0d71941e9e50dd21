// timeaccess/service.go
package timeaccess

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
	"github.com/harborgrid-justin/lithic-sub009/util"
)

// DefaultAfterHoursDuration bounds an approved after-hours grant when the
// approver does not set one.
const DefaultAfterHoursDuration = 60 * time.Minute

// IService defines the time gate consumed by the engine.
type IService interface {
	SetRestriction(ctx context.Context, restriction *model.TimeRestriction, actorID string) error
	CheckAccess(ctx context.Context, userID string, at time.Time, breakGlass bool) (bool, string, error)
	RequestAfterHoursAccess(ctx context.Context, userID, reason string) (*model.AfterHoursAccess, error)
	ApproveAfterHoursAccess(ctx context.Context, requestID, approverID string, duration time.Duration) error
	DenyAfterHoursAccess(ctx context.Context, requestID, approverID string) error
	HasAfterHoursAccess(ctx context.Context, userID string, now time.Time) (bool, error)
	CleanupExpiredAccess(ctx context.Context) (int, error)
}

// Service gates access by schedule: day-of-week windows, holidays, and
// the after-hours approval workflow.
type Service struct {
	store    store.Store
	auditSvc *audit.Service
	notifier util.Notifier
	cache    cache.DecisionCache
}

var _ IService = &Service{}

func NewService(s store.Store, auditSvc *audit.Service, notifier util.Notifier, c cache.DecisionCache) *Service {
	return &Service{store: s, auditSvc: auditSvc, notifier: notifier, cache: c}
}

func (s *Service) SetRestriction(ctx context.Context, restriction *model.TimeRestriction, actorID string) error {
	if restriction == nil || restriction.UserID == "" {
		return fmt.Errorf("%w: time restriction requires a user", lithic_errors.ErrInvalidGrant)
	}
	for _, schedule := range restriction.Schedules {
		if _, err := parseMinutes(schedule.Start); err != nil {
			return fmt.Errorf("%w: %v", lithic_errors.ErrInvalidGrant, err)
		}
		if _, err := parseMinutes(schedule.End); err != nil {
			return fmt.Errorf("%w: %v", lithic_errors.ErrInvalidGrant, err)
		}
	}

	if err := s.store.SaveTimeRestriction(ctx, restriction); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, restriction.UserID)
	}
	logger.Info("Time restriction saved",
		zap.String("userId", restriction.UserID),
		zap.Int("schedules", len(restriction.Schedules)))
	s.auditSvc.RecordAdminAction(ctx, actorID, "TIME_RESTRICTION_SET", "time_restrictions", restriction.ID,
		fmt.Sprintf("Set time restriction for user %s", restriction.UserID),
		map[string]string{"user_id": restriction.UserID})
	return nil
}

// CheckAccess evaluates the user's schedule at the given instant. A user
// with no restriction on file is unrestricted. Order of precedence:
// holiday override, then the weekday schedule, then any approved
// after-hours grant, then break-glass if the restriction allows it.
func (s *Service) CheckAccess(ctx context.Context, userID string, at time.Time, breakGlass bool) (bool, string, error) {
	restriction, err := s.store.TimeRestrictionForUser(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if restriction == nil {
		return true, "no time restriction", nil
	}

	local := localize(restriction, at)

	if holiday := holidayFor(restriction, local); holiday != nil {
		if !holiday.AllowAccess {
			return false, fmt.Sprintf("access blocked on holiday %s", holiday.Date), nil
		}
		if holiday.EmergencyOnly && !breakGlass {
			return false, fmt.Sprintf("holiday %s permits emergency access only", holiday.Date), nil
		}
	}

	schedule := scheduleFor(restriction, local)
	if schedule != nil {
		ok, err := scheduleAllows(*schedule, local)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "within scheduled hours", nil
		}
	}

	// Outside the schedule, or no schedule for this day: after-hours
	// grants and break-glass are the remaining paths in.
	granted, err := s.HasAfterHoursAccess(ctx, userID, at)
	if err != nil {
		return false, "", err
	}
	if granted {
		return true, "approved after-hours access", nil
	}
	if breakGlass && restriction.AllowBreakGlass {
		return true, "break-glass override of time restriction", nil
	}
	if schedule == nil {
		return false, "no schedule for this day", nil
	}
	return false, "outside scheduled hours", nil
}

// RequestAfterHoursAccess opens a PENDING request and alerts approvers
// best-effort.
func (s *Service) RequestAfterHoursAccess(ctx context.Context, userID, reason string) (*model.AfterHoursAccess, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: after-hours request requires a user", lithic_errors.ErrInvalidGrant)
	}
	req := &model.AfterHoursAccess{
		UserID: userID,
		Reason: reason,
		Status: model.RequestPending,
	}
	if err := s.store.SaveAfterHoursAccess(ctx, req); err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyAdmins(ctx, fmt.Sprintf("After-hours access requested by user %s: %s", userID, reason)); err != nil {
		logger.Warn("Failed to notify admins of after-hours request",
			zap.Error(err), zap.String("requestId", req.ID))
	}
	logger.Info("After-hours access requested",
		zap.String("userId", userID), zap.String("requestId", req.ID))
	return req, nil
}

// ApproveAfterHoursAccess time-boxes and approves a PENDING request.
func (s *Service) ApproveAfterHoursAccess(ctx context.Context, requestID, approverID string, duration time.Duration) error {
	req, err := s.store.GetAfterHoursAccess(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return fmt.Errorf("%w: request %s is %s", lithic_errors.ErrRequestAlreadyResolved, requestID, req.Status)
	}

	if duration <= 0 {
		duration = DefaultAfterHoursDuration
	}
	expires := time.Now().Add(duration)
	req.Status = model.RequestApproved
	req.ApprovedBy = approverID
	req.ExpiresAt = &expires
	if err := s.store.SaveAfterHoursAccess(ctx, req); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, req.UserID)
	}

	s.auditSvc.RecordAdminAction(ctx, approverID, "AFTER_HOURS_APPROVED", "after_hours_access", req.ID,
		fmt.Sprintf("Approved after-hours access for user %s until %s", req.UserID, expires.Format(time.RFC3339)),
		map[string]string{"user_id": req.UserID})
	if err := s.notifier.NotifyUser(ctx, req.UserID, "Your after-hours access request was approved"); err != nil {
		logger.Warn("Failed to notify user of after-hours approval",
			zap.Error(err), zap.String("requestId", req.ID))
	}
	return nil
}

func (s *Service) DenyAfterHoursAccess(ctx context.Context, requestID, approverID string) error {
	req, err := s.store.GetAfterHoursAccess(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return fmt.Errorf("%w: request %s is %s", lithic_errors.ErrRequestAlreadyResolved, requestID, req.Status)
	}

	req.Status = model.RequestDenied
	req.ApprovedBy = approverID
	if err := s.store.SaveAfterHoursAccess(ctx, req); err != nil {
		return err
	}
	s.auditSvc.RecordAdminAction(ctx, approverID, "AFTER_HOURS_DENIED", "after_hours_access", req.ID,
		fmt.Sprintf("Denied after-hours access for user %s", req.UserID),
		map[string]string{"user_id": req.UserID})
	if err := s.notifier.NotifyUser(ctx, req.UserID, "Your after-hours access request was denied"); err != nil {
		logger.Warn("Failed to notify user of after-hours denial",
			zap.Error(err), zap.String("requestId", req.ID))
	}
	return nil
}

// HasAfterHoursAccess reports whether the user holds an unexpired
// APPROVED grant.
func (s *Service) HasAfterHoursAccess(ctx context.Context, userID string, now time.Time) (bool, error) {
	grants, err := s.store.AfterHoursForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range grants {
		if grants[i].Status == model.RequestApproved && !grants[i].Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpiredAccess transitions expired APPROVED grants to EXPIRED.
// Rows are kept: the trail of who had after-hours access matters more
// than the storage.
func (s *Service) CleanupExpiredAccess(ctx context.Context) (int, error) {
	expired, err := s.store.ExpiredApprovedAfterHours(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, grant := range expired {
		grant.Status = model.RequestExpired
		if err := s.store.SaveAfterHoursAccess(ctx, &grant); err != nil {
			return count, err
		}
		count++
	}
	if count > 0 {
		logger.Info("Expired after-hours grants", zap.Int("count", count))
	}
	return count, nil
}
