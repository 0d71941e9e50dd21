// model/evaluation.go
package model

import "time"

// EvaluationContext carries everything the engine needs to decide one
// access request.
type EvaluationContext struct {
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id,omitempty"`
	Resource       string     `json:"resource"`
	ResourceID     string     `json:"resource_id,omitempty"`
	Action         string     `json:"action"`
	DepartmentID   string     `json:"department_id,omitempty"`
	LocationID     string     `json:"location_id,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	ViaVPN         bool       `json:"via_vpn,omitempty"`
	BreakGlass     bool       `json:"break_glass,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"` // nil means now
}

// At returns the effective evaluation time.
func (c *EvaluationContext) At() time.Time {
	if c.Timestamp != nil {
		return *c.Timestamp
	}
	return time.Now()
}

type EvaluationResult struct {
	Allowed          bool          `json:"allowed"`
	Reason           string        `json:"reason"`
	MatchedPolicies  []string      `json:"matched_policies,omitempty"`
	Conditions       []string      `json:"conditions,omitempty"`
	RequiresMFA      bool          `json:"requires_mfa,omitempty"`
	RequiresApproval bool          `json:"requires_approval,omitempty"`
	CacheKey         string        `json:"cache_key,omitempty"`
	CacheHit         bool          `json:"cache_hit,omitempty"`
	EvaluationTime   time.Duration `json:"evaluation_time"`
}
