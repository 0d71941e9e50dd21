// model/location.go
package model

import "time"

// LocationAccessLevel orders as NONE < EMERGENCY_ONLY < RESTRICTED < FULL.
type LocationAccessLevel string

const (
	LocationAccessNone          LocationAccessLevel = "NONE"
	LocationAccessEmergencyOnly LocationAccessLevel = "EMERGENCY_ONLY"
	LocationAccessRestricted    LocationAccessLevel = "RESTRICTED"
	LocationAccessFull          LocationAccessLevel = "FULL"
)

var locationLevelRank = map[LocationAccessLevel]int{
	LocationAccessNone:          0,
	LocationAccessEmergencyOnly: 1,
	LocationAccessRestricted:    2,
	LocationAccessFull:          3,
}

func (l LocationAccessLevel) Rank() int {
	if r, ok := locationLevelRank[l]; ok {
		return r
	}
	return 0
}

func (l LocationAccessLevel) AtLeast(min LocationAccessLevel) bool {
	return l.Rank() >= min.Rank()
}

// LocationAccess is unique per (UserID, LocationID).
type LocationAccess struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	LocationID      string              `json:"location_id"`
	AccessLevel     LocationAccessLevel `json:"access_level"`
	AllowedIPRanges []string            `json:"allowed_ip_ranges,omitempty"` // CIDR notation
	RequiresVPN     bool                `json:"requires_vpn"`
	GrantedBy       string              `json:"granted_by,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"` // nil means non-expiring
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (a *LocationAccess) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// Geofence constrains a location to a radius around a coordinate.
type Geofence struct {
	LocationID   string  `json:"location_id"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}
