// model/policy.go
package model

import "time"

type PolicyEffect string

const (
	EffectAllow           PolicyEffect = "ALLOW"
	EffectDeny            PolicyEffect = "DENY"
	EffectRequireMFA      PolicyEffect = "REQUIRE_MFA"
	EffectRequireApproval PolicyEffect = "REQUIRE_APPROVAL"
)

// PolicyRule matches resource/action pairs. Patterns support "*" and
// dotted prefixes: "patients.*" matches any resource starting with
// "patients".
type PolicyRule struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type AccessPolicy struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	Name           string       `json:"name"`
	Rules          []PolicyRule `json:"rules"`
	Effect         PolicyEffect `json:"effect"`
	Priority       int          `json:"priority"` // evaluated in ascending order
	Enabled        bool         `json:"enabled"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// AccessGrant is a temporary, exact-match grant for one resource instance.
type AccessGrant struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Resource   string     `json:"resource"`
	ResourceID string     `json:"resource_id"`
	Action     string     `json:"action"`
	GrantedBy  string     `json:"granted_by,omitempty"`
	Revoked    bool       `json:"revoked"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (g *AccessGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

type BreakGlassStatus string

const (
	BreakGlassActive  BreakGlassStatus = "ACTIVE"
	BreakGlassExpired BreakGlassStatus = "EXPIRED"
	BreakGlassRevoked BreakGlassStatus = "REVOKED"
)

// BreakGlassRequest is an emergency, time-boxed override. Use is always
// logged as PHI access.
type BreakGlassRequest struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Resource  string           `json:"resource"`
	Action    string           `json:"action"`
	Reason    string           `json:"reason"`
	Status    BreakGlassStatus `json:"status"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (b *BreakGlassRequest) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// Usable reports whether the request can satisfy an evaluation right now.
func (b *BreakGlassRequest) Usable(now time.Time) bool {
	return b.Status == BreakGlassActive && !b.Expired(now)
}
