// store/store.go
package store

import (
	"context"
	"time"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	"github.com/harborgrid-justin/lithic-sub009/model"
)

// Store is the function-call contract the decision core consumes. The
// persistence engine behind it is not this library's concern; callers
// bring their own implementation, and MemoryStore is the reference one.
//
// Readers must treat any record whose ExpiresAt is in the past as absent.
// Purge methods exist so cleanup jobs can remove such records in bulk.
type Store interface {
	// Users and roles
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetRole(ctx context.Context, roleID string) (*model.Role, error)
	RolesByOrganization(ctx context.Context, orgID string) ([]*model.Role, error)
	SaveRole(ctx context.Context, role *model.Role) error

	// Department access
	DepartmentAccessForUser(ctx context.Context, userID string) ([]model.DepartmentAccess, error)
	UpsertDepartmentAccess(ctx context.Context, access *model.DepartmentAccess) error
	DeleteDepartmentAccess(ctx context.Context, userID, departmentID string) error
	PurgeExpiredDepartmentAccess(ctx context.Context, now time.Time) (int, error)
	CrossDepartmentRules(ctx context.Context, fromDeptID, toDeptID string) ([]model.CrossDepartmentRule, error)
	SaveCrossDepartmentRequest(ctx context.Context, req *model.CrossDepartmentRequest) error
	GetCrossDepartmentRequest(ctx context.Context, requestID string) (*model.CrossDepartmentRequest, error)

	// Location access
	LocationAccessForUser(ctx context.Context, userID string) ([]model.LocationAccess, error)
	UpsertLocationAccess(ctx context.Context, access *model.LocationAccess) error
	DeleteLocationAccess(ctx context.Context, userID, locationID string) error
	PurgeExpiredLocationAccess(ctx context.Context, now time.Time) (int, error)
	GetGeofence(ctx context.Context, locationID string) (*model.Geofence, error)

	// Time restrictions and after-hours grants
	TimeRestrictionForUser(ctx context.Context, userID string) (*model.TimeRestriction, error)
	SaveTimeRestriction(ctx context.Context, tr *model.TimeRestriction) error
	AfterHoursForUser(ctx context.Context, userID string) ([]model.AfterHoursAccess, error)
	GetAfterHoursAccess(ctx context.Context, id string) (*model.AfterHoursAccess, error)
	SaveAfterHoursAccess(ctx context.Context, access *model.AfterHoursAccess) error
	ExpiredApprovedAfterHours(ctx context.Context, now time.Time) ([]model.AfterHoursAccess, error)

	// Policies, grants, break-glass.
	//
	// PoliciesForOrganization must return only enabled policies, sorted
	// by ascending Priority; the evaluation pipeline's policy precedence
	// depends on this ordering.
	PoliciesForOrganization(ctx context.Context, orgID string) ([]*model.AccessPolicy, error)
	AccessGrantsForUser(ctx context.Context, userID string) ([]model.AccessGrant, error)
	SaveAccessGrant(ctx context.Context, grant *model.AccessGrant) error
	BreakGlassForUser(ctx context.Context, userID string) ([]model.BreakGlassRequest, error)
	SaveBreakGlassRequest(ctx context.Context, req *model.BreakGlassRequest) error

	// Audit history (bounded, newest first) for anomaly scoring
	AppendAuditEntry(ctx context.Context, entry audit.Entry) error
	RecentAuditEntries(ctx context.Context, userID string, since time.Time, limit int) ([]audit.Entry, error)
}
