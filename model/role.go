// model/role.go
package model

import "time"

// SuperAdminRoleName short-circuits evaluation: holders are allowed
// everything and their decisions are never cached.
const SuperAdminRoleName = "SUPER_ADMIN"

type Role struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	OrganizationID     string       `json:"organization_id"`
	ParentRoleID       *string      `json:"parent_role_id,omitempty"`
	InheritPermissions bool         `json:"inherit_permissions"`
	Level              int          `json:"level"` // depth from its root; roots are level 0
	Permissions        []Permission `json:"permissions,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// RoleConflict flags suspicious hierarchy shapes found by a defensive scan.
type RoleConflict struct {
	Type     string   `json:"type"` // "CYCLE" or "PERMISSION_OVERLAP"
	Severity string   `json:"severity"`
	RoleIDs  []string `json:"role_ids"`
	Detail   string   `json:"detail,omitempty"`
}
