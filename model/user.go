// model/user.go
package model

import "time"

type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

type User struct {
	ID                 string              `json:"id"`
	OrganizationID     string              `json:"organization_id"`
	Status             UserStatus          `json:"status"`
	RoleID             string              `json:"role_id"`
	CustomPermissions  []Permission        `json:"custom_permissions,omitempty"`
	DepartmentAccess   []DepartmentAccess  `json:"department_access,omitempty"`
	LocationAccess     []LocationAccess    `json:"location_access,omitempty"`
	BreakGlassRequests []BreakGlassRequest `json:"break_glass_requests,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// IsActive reports whether the user may participate in evaluation at all.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}
