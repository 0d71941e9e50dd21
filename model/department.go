// model/department.go
package model

import "time"

// DepartmentAccessLevel orders as NONE < LIMITED < READ_ONLY < FULL.
type DepartmentAccessLevel string

const (
	DeptAccessNone     DepartmentAccessLevel = "NONE"
	DeptAccessLimited  DepartmentAccessLevel = "LIMITED"
	DeptAccessReadOnly DepartmentAccessLevel = "READ_ONLY"
	DeptAccessFull     DepartmentAccessLevel = "FULL"
)

var deptLevelRank = map[DepartmentAccessLevel]int{
	DeptAccessNone:     0,
	DeptAccessLimited:  1,
	DeptAccessReadOnly: 2,
	DeptAccessFull:     3,
}

func (l DepartmentAccessLevel) Rank() int {
	if r, ok := deptLevelRank[l]; ok {
		return r
	}
	return 0
}

// AtLeast reports whether l meets the given minimum level.
func (l DepartmentAccessLevel) AtLeast(min DepartmentAccessLevel) bool {
	return l.Rank() >= min.Rank()
}

// DepartmentAccess is unique per (UserID, DepartmentID).
type DepartmentAccess struct {
	ID                 string                `json:"id"`
	UserID             string                `json:"user_id"`
	DepartmentID       string                `json:"department_id"`
	AccessLevel        DepartmentAccessLevel `json:"access_level"`
	CanCrossDepartment bool                  `json:"can_cross_department"`
	AllowedDepartments []string              `json:"allowed_departments,omitempty"`
	GrantedBy          string                `json:"granted_by,omitempty"`
	ExpiresAt          *time.Time            `json:"expires_at,omitempty"` // nil means non-expiring
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// Expired reports whether the record must be treated as absent.
func (a *DepartmentAccess) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// CrossDepartmentRule permits (FromDepartment, ToDepartment, resource) access.
type CrossDepartmentRule struct {
	ID                string   `json:"id"`
	OrganizationID    string   `json:"organization_id"`
	FromDepartmentID  string   `json:"from_department_id"`
	ToDepartmentID    string   `json:"to_department_id"`
	AllowedResources  []string `json:"allowed_resources"`
	RequiresApproval  bool     `json:"requires_approval"`
	AutoExpireMinutes int      `json:"auto_expire_minutes,omitempty"` // 0 means no auto-expiry
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestDenied   RequestStatus = "DENIED"
	RequestExpired  RequestStatus = "EXPIRED"
)

type CrossDepartmentRequest struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	FromDepartmentID string        `json:"from_department_id"`
	ToDepartmentID   string        `json:"to_department_id"`
	Resource         string        `json:"resource"`
	Reason           string        `json:"reason,omitempty"`
	Status           RequestStatus `json:"status"`
	RuleID           string        `json:"rule_id"`
	ResolvedBy       string        `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}
