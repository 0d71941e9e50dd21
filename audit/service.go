// audit/service.go
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	logger "github.com/harborgrid-justin/lithic-sub009/logging"
)

// Recorder is the append-only audit sink contract.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Service wraps a Recorder with the library's fail-open audit policy: a
// sink failure is logged and swallowed so it never blocks an access
// decision.
type Service struct {
	recorder Recorder
}

func NewService(recorder Recorder) *Service {
	return &Service{recorder: recorder}
}

// Record appends an entry, stamping the time if the caller did not.
// Errors from the sink are logged and discarded.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if s == nil || s.recorder == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		logger.Error("Audit write failed",
			zap.Error(err),
			zap.String("userId", entry.UserID),
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource))
	}
}

// RecordDenial emits the standard denial entry. Location and IP are
// carried so the entry can feed anomaly scoring.
func (s *Service) RecordDenial(ctx context.Context, userID, resource, resourceID, action, reason, orgID, ip, locationID string) {
	s.Record(ctx, Entry{
		UserID:         userID,
		Action:         "ACCESS_DENIED",
		Resource:       resource,
		ResourceID:     resourceID,
		Description:    reason,
		Metadata:       map[string]string{"attempted_action": action},
		OrganizationID: orgID,
		IPAddress:      ip,
		LocationID:     locationID,
	})
}

// RecordBreakGlass emits the dedicated PHI-access entry for an emergency
// override grant.
func (s *Service) RecordBreakGlass(ctx context.Context, userID, resource, resourceID, action, requestID, orgID, ip, locationID string) {
	s.Record(ctx, Entry{
		UserID:         userID,
		Action:         "BREAK_GLASS_ACCESS",
		Resource:       resource,
		ResourceID:     resourceID,
		Description:    "Emergency break-glass access granted",
		Metadata:       map[string]string{"request_id": requestID, "granted_action": action},
		OrganizationID: orgID,
		IPAddress:      ip,
		LocationID:     locationID,
		IsPHIAccess:    true,
	})
}

// RecordAdminAction emits an entry for an administrative mutation such as
// a grant, revoke, or approval.
func (s *Service) RecordAdminAction(ctx context.Context, actorID, action, resource, resourceID, description string, metadata map[string]string) {
	s.Record(ctx, Entry{
		UserID:      actorID,
		Action:      action,
		Resource:    resource,
		ResourceID:  resourceID,
		Description: description,
		Metadata:    metadata,
	})
}
