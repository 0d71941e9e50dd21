// location/service.go
package location

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	"github.com/harborgrid-justin/lithic-sub009/cache"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	logger "github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
	"github.com/harborgrid-justin/lithic-sub009/store"
)

// Check carries the situational inputs for a location gate decision.
type Check struct {
	IPAddress string
	Latitude  *float64
	Longitude *float64
	ViaVPN    bool
	Emergency bool
}

// IService defines the location gate consumed by the engine.
type IService interface {
	GrantAccess(ctx context.Context, access *model.LocationAccess, grantedBy string) error
	RevokeAccess(ctx context.Context, userID, locationID, actorID string) error
	HasAccess(ctx context.Context, userID, locationID string, check Check, now time.Time) (bool, error)
	CleanupExpiredAccess(ctx context.Context) (int, error)
	// ScoreAccess is advisory: it flags unusual attempts for review and
	// does not feed into HasAccess or any engine decision.
	ScoreAccess(ctx context.Context, userID, locationID, ipAddress string, now time.Time) AnomalyScore
}

// Service gates access by physical location: grant level, IP allowlists,
// VPN requirements, and geofences.
type Service struct {
	store    store.Store
	auditSvc *audit.Service
	cache    cache.DecisionCache
}

var _ IService = &Service{}

func NewService(s store.Store, auditSvc *audit.Service, c cache.DecisionCache) *Service {
	return &Service{store: s, auditSvc: auditSvc, cache: c}
}

func (s *Service) GrantAccess(ctx context.Context, access *model.LocationAccess, grantedBy string) error {
	if access == nil || access.UserID == "" || access.LocationID == "" {
		return fmt.Errorf("%w: location access requires user and location", lithic_errors.ErrInvalidGrant)
	}
	if access.AccessLevel == "" {
		access.AccessLevel = model.LocationAccessRestricted
	}
	access.GrantedBy = grantedBy

	if err := s.store.UpsertLocationAccess(ctx, access); err != nil {
		return err
	}
	s.invalidate(ctx, access.UserID)
	logger.Info("Location access granted",
		zap.String("userId", access.UserID),
		zap.String("locationId", access.LocationID),
		zap.String("level", string(access.AccessLevel)))
	s.auditSvc.RecordAdminAction(ctx, grantedBy, "LOCATION_ACCESS_GRANTED", "location_access", access.ID,
		fmt.Sprintf("Granted %s access to location %s for user %s", access.AccessLevel, access.LocationID, access.UserID),
		map[string]string{"user_id": access.UserID, "location_id": access.LocationID})
	return nil
}

func (s *Service) RevokeAccess(ctx context.Context, userID, locationID, actorID string) error {
	if err := s.store.DeleteLocationAccess(ctx, userID, locationID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	logger.Info("Location access revoked",
		zap.String("userId", userID),
		zap.String("locationId", locationID))
	s.auditSvc.RecordAdminAction(ctx, actorID, "LOCATION_ACCESS_REVOKED", "location_access", "",
		fmt.Sprintf("Revoked location %s access for user %s", locationID, userID),
		map[string]string{"user_id": userID, "location_id": locationID})
	return nil
}

// HasAccess checks the user's grant for the location against expiry,
// level, IP allowlist, VPN requirement, and any configured geofence.
// EMERGENCY_ONLY grants only satisfy emergency (break-glass) checks.
func (s *Service) HasAccess(ctx context.Context, userID, locationID string, check Check, now time.Time) (bool, error) {
	grants, err := s.store.LocationAccessForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	var grant *model.LocationAccess
	for i := range grants {
		if grants[i].LocationID == locationID && !grants[i].Expired(now) {
			grant = &grants[i]
			break
		}
	}
	if grant == nil {
		return false, nil
	}

	switch {
	case grant.AccessLevel.AtLeast(model.LocationAccessRestricted):
		// level is sufficient for normal access
	case grant.AccessLevel == model.LocationAccessEmergencyOnly && check.Emergency:
		// emergency-only grant used under break-glass
	default:
		return false, nil
	}

	if grant.RequiresVPN && !check.ViaVPN {
		return false, nil
	}

	if len(grant.AllowedIPRanges) > 0 {
		matched := false
		for _, cidr := range grant.AllowedIPRanges {
			if MatchCIDR(check.IPAddress, cidr) {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}

	ok, err := s.withinGeofence(ctx, locationID, check)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// withinGeofence passes when the location has no geofence, the caller
// supplied no coordinates, or the coordinates fall inside the radius.
func (s *Service) withinGeofence(ctx context.Context, locationID string, check Check) (bool, error) {
	fence, err := s.store.GetGeofence(ctx, locationID)
	if err != nil {
		return false, err
	}
	if fence == nil || check.Latitude == nil || check.Longitude == nil {
		return true, nil
	}
	radius := fence.RadiusMeters
	if radius <= 0 {
		radius = DefaultGeofenceRadiusMeters
	}
	return Distance(*check.Latitude, *check.Longitude, fence.Latitude, fence.Longitude) <= radius, nil
}

func (s *Service) CleanupExpiredAccess(ctx context.Context) (int, error) {
	count, err := s.store.PurgeExpiredLocationAccess(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Info("Purged expired location access", zap.Int("count", count))
	}
	return count, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
