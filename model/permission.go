// model/permission.go
package model

// Scope is the breadth over which a permission applies.
type Scope string

const (
	ScopeOwn          Scope = "OWN"
	ScopeAssigned     Scope = "ASSIGNED"
	ScopeTeam         Scope = "TEAM"
	ScopeDepartment   Scope = "DEPARTMENT"
	ScopeLocation     Scope = "LOCATION"
	ScopeOrganization Scope = "ORGANIZATION"
	ScopeAll          Scope = "ALL"
)

var scopeRank = map[Scope]int{
	ScopeOwn:          0,
	ScopeAssigned:     1,
	ScopeTeam:         2,
	ScopeDepartment:   3,
	ScopeLocation:     4,
	ScopeOrganization: 5,
	ScopeAll:          6,
}

// Rank returns the position of the scope in the total order
// OWN < ASSIGNED < TEAM < DEPARTMENT < LOCATION < ORGANIZATION < ALL.
// Unknown scopes rank below OWN.
func (s Scope) Rank() int {
	if r, ok := scopeRank[s]; ok {
		return r
	}
	return -1
}

// WiderThan reports whether s is more permissive than other.
func (s Scope) WiderThan(other Scope) bool {
	return s.Rank() > other.Rank()
}

type Permission struct {
	Resource   string                `json:"resource"`
	Action     string                `json:"action"`
	Scope      Scope                 `json:"scope"`
	Conditions *PermissionConditions `json:"conditions,omitempty"`
}

// Key identifies a permission for merge and override purposes.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// PermissionConditions restricts a permission to specific departments,
// locations, or the user's time-restriction schedule.
type PermissionConditions struct {
	Departments    []string `json:"departments,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	TimeRestricted bool     `json:"time_restricted,omitempty"`
}
