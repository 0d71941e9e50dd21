// audit/model.go
package audit

import "time"

// Entry is one append-only audit record. IsPHIAccess marks entries that
// carry the stricter obligations of protected-health-information access.
type Entry struct {
	Timestamp      time.Time         `json:"timestamp"`
	UserID         string            `json:"user_id"`
	Action         string            `json:"action"`
	Resource       string            `json:"resource"`
	ResourceID     string            `json:"resource_id,omitempty"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty"`
	IPAddress      string            `json:"ip_address,omitempty"`
	LocationID     string            `json:"location_id,omitempty"`
	IsPHIAccess    bool              `json:"is_phi_access"`
}
