// store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	"github.com/harborgrid-justin/lithic-sub009/model"
)

// MemoryStore is the reference Store implementation: a mutex-guarded set
// of maps. It backs the library's tests and works as an embedded store
// for single-process deployments.
type MemoryStore struct {
	mu sync.RWMutex

	users         map[string]*model.User
	roles         map[string]*model.Role
	deptAccess    map[string]map[string]*model.DepartmentAccess // userID -> deptID
	crossRules    []*model.CrossDepartmentRule
	crossRequests map[string]*model.CrossDepartmentRequest
	locAccess     map[string]map[string]*model.LocationAccess // userID -> locationID
	geofences     map[string]*model.Geofence
	restrictions  map[string]*model.TimeRestriction // by userID
	afterHours    map[string]*model.AfterHoursAccess
	policies      map[string]*model.AccessPolicy
	grants        map[string][]*model.AccessGrant // by userID
	breakGlass    map[string][]*model.BreakGlassRequest
	auditLog      []audit.Entry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		roles:         make(map[string]*model.Role),
		deptAccess:    make(map[string]map[string]*model.DepartmentAccess),
		crossRequests: make(map[string]*model.CrossDepartmentRequest),
		locAccess:     make(map[string]map[string]*model.LocationAccess),
		geofences:     make(map[string]*model.Geofence),
		restrictions:  make(map[string]*model.TimeRestriction),
		afterHours:    make(map[string]*model.AfterHoursAccess),
		policies:      make(map[string]*model.AccessPolicy),
		grants:        make(map[string][]*model.AccessGrant),
		breakGlass:    make(map[string][]*model.BreakGlassRequest),
	}
}

// PutUser seeds or replaces a user record.
func (s *MemoryStore) PutUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutGeofence seeds or replaces a geofence for a location.
func (s *MemoryStore) PutGeofence(fence *model.Geofence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geofences[fence.LocationID] = fence
}

// PutCrossDepartmentRule registers a cross-department rule.
func (s *MemoryStore) PutCrossDepartmentRule(rule *model.CrossDepartmentRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	s.crossRules = append(s.crossRules, rule)
}

// PutPolicy registers an access policy.
func (s *MemoryStore) PutPolicy(policy *model.AccessPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	s.policies[policy.ID] = policy
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, lithic_errors.ErrUserNotFound
	}

	// Return a copy with the user's access records attached so callers
	// see one consistent snapshot.
	out := *user
	out.DepartmentAccess = nil
	out.LocationAccess = nil
	out.BreakGlassRequests = nil
	for _, a := range s.deptAccess[userID] {
		out.DepartmentAccess = append(out.DepartmentAccess, *a)
	}
	for _, a := range s.locAccess[userID] {
		out.LocationAccess = append(out.LocationAccess, *a)
	}
	for _, b := range s.breakGlass[userID] {
		out.BreakGlassRequests = append(out.BreakGlassRequests, *b)
	}
	return &out, nil
}

func (s *MemoryStore) GetRole(ctx context.Context, roleID string) (*model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, lithic_errors.ErrRoleNotFound
	}
	out := *role
	return &out, nil
}

func (s *MemoryStore) RolesByOrganization(ctx context.Context, orgID string) ([]*model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Role
	for _, role := range s.roles {
		if role.OrganizationID == orgID {
			r := *role
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveRole(ctx context.Context, role *model.Role) error {
	if role == nil || role.OrganizationID == "" {
		return fmt.Errorf("%w: role requires an organization", lithic_errors.ErrInvalidRoleData)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	now := time.Now()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	r := *role
	s.roles[role.ID] = &r
	return nil
}

func (s *MemoryStore) DepartmentAccessForUser(ctx context.Context, userID string) ([]model.DepartmentAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.DepartmentAccess
	for _, a := range s.deptAccess[userID] {
		out = append(out, *a)
	}
	return out, nil
}

func (s *MemoryStore) UpsertDepartmentAccess(ctx context.Context, access *model.DepartmentAccess) error {
	if access == nil || access.UserID == "" || access.DepartmentID == "" {
		return fmt.Errorf("%w: department access requires user and department", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if access.ID == "" {
		access.ID = uuid.New().String()
	}
	now := time.Now()
	if access.CreatedAt.IsZero() {
		access.CreatedAt = now
	}
	access.UpdatedAt = now

	byDept, ok := s.deptAccess[access.UserID]
	if !ok {
		byDept = make(map[string]*model.DepartmentAccess)
		s.deptAccess[access.UserID] = byDept
	}
	a := *access
	byDept[access.DepartmentID] = &a
	return nil
}

func (s *MemoryStore) DeleteDepartmentAccess(ctx context.Context, userID, departmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDept := s.deptAccess[userID]
	if _, ok := byDept[departmentID]; !ok {
		return lithic_errors.ErrDepartmentAccessNotFound
	}
	delete(byDept, departmentID)
	return nil
}

func (s *MemoryStore) PurgeExpiredDepartmentAccess(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for userID, byDept := range s.deptAccess {
		for deptID, a := range byDept {
			if a.Expired(now) {
				delete(byDept, deptID)
				count++
			}
		}
		if len(byDept) == 0 {
			delete(s.deptAccess, userID)
		}
	}
	return count, nil
}

func (s *MemoryStore) CrossDepartmentRules(ctx context.Context, fromDeptID, toDeptID string) ([]model.CrossDepartmentRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CrossDepartmentRule
	for _, rule := range s.crossRules {
		if rule.FromDepartmentID == fromDeptID && rule.ToDepartmentID == toDeptID {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveCrossDepartmentRequest(ctx context.Context, req *model.CrossDepartmentRequest) error {
	if req == nil || req.UserID == "" || req.ToDepartmentID == "" {
		return fmt.Errorf("%w: cross-department request requires user and target department", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	r := *req
	s.crossRequests[req.ID] = &r
	return nil
}

func (s *MemoryStore) GetCrossDepartmentRequest(ctx context.Context, requestID string) (*model.CrossDepartmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.crossRequests[requestID]
	if !ok {
		return nil, lithic_errors.ErrRequestNotFound
	}
	out := *req
	return &out, nil
}

func (s *MemoryStore) LocationAccessForUser(ctx context.Context, userID string) ([]model.LocationAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LocationAccess
	for _, a := range s.locAccess[userID] {
		out = append(out, *a)
	}
	return out, nil
}

func (s *MemoryStore) UpsertLocationAccess(ctx context.Context, access *model.LocationAccess) error {
	if access == nil || access.UserID == "" || access.LocationID == "" {
		return fmt.Errorf("%w: location access requires user and location", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if access.ID == "" {
		access.ID = uuid.New().String()
	}
	now := time.Now()
	if access.CreatedAt.IsZero() {
		access.CreatedAt = now
	}
	access.UpdatedAt = now

	byLoc, ok := s.locAccess[access.UserID]
	if !ok {
		byLoc = make(map[string]*model.LocationAccess)
		s.locAccess[access.UserID] = byLoc
	}
	a := *access
	byLoc[access.LocationID] = &a
	return nil
}

func (s *MemoryStore) DeleteLocationAccess(ctx context.Context, userID, locationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byLoc := s.locAccess[userID]
	if _, ok := byLoc[locationID]; !ok {
		return lithic_errors.ErrLocationAccessNotFound
	}
	delete(byLoc, locationID)
	return nil
}

func (s *MemoryStore) PurgeExpiredLocationAccess(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for userID, byLoc := range s.locAccess {
		for locID, a := range byLoc {
			if a.Expired(now) {
				delete(byLoc, locID)
				count++
			}
		}
		if len(byLoc) == 0 {
			delete(s.locAccess, userID)
		}
	}
	return count, nil
}

func (s *MemoryStore) GetGeofence(ctx context.Context, locationID string) (*model.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fence, ok := s.geofences[locationID]
	if !ok {
		return nil, nil // no geofence configured is not an error
	}
	out := *fence
	return &out, nil
}

func (s *MemoryStore) TimeRestrictionForUser(ctx context.Context, userID string) (*model.TimeRestriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, ok := s.restrictions[userID]
	if !ok {
		return nil, nil // unrestricted
	}
	out := *tr
	return &out, nil
}

func (s *MemoryStore) SaveTimeRestriction(ctx context.Context, tr *model.TimeRestriction) error {
	if tr == nil || tr.UserID == "" {
		return fmt.Errorf("%w: time restriction requires a user", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	now := time.Now()
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now
	t := *tr
	s.restrictions[tr.UserID] = &t
	return nil
}

func (s *MemoryStore) AfterHoursForUser(ctx context.Context, userID string) ([]model.AfterHoursAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AfterHoursAccess
	for _, a := range s.afterHours {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetAfterHoursAccess(ctx context.Context, id string) (*model.AfterHoursAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.afterHours[id]
	if !ok {
		return nil, lithic_errors.ErrRequestNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) SaveAfterHoursAccess(ctx context.Context, access *model.AfterHoursAccess) error {
	if access == nil || access.UserID == "" {
		return fmt.Errorf("%w: after-hours access requires a user", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if access.ID == "" {
		access.ID = uuid.New().String()
	}
	now := time.Now()
	if access.CreatedAt.IsZero() {
		access.CreatedAt = now
	}
	access.UpdatedAt = now
	a := *access
	s.afterHours[access.ID] = &a
	return nil
}

func (s *MemoryStore) ExpiredApprovedAfterHours(ctx context.Context, now time.Time) ([]model.AfterHoursAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AfterHoursAccess
	for _, a := range s.afterHours {
		if a.Status == model.RequestApproved && a.Expired(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *MemoryStore) PoliciesForOrganization(ctx context.Context, orgID string) ([]*model.AccessPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.AccessPolicy
	for _, p := range s.policies {
		if p.OrganizationID == orgID && p.Enabled {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *MemoryStore) AccessGrantsForUser(ctx context.Context, userID string) ([]model.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AccessGrant
	for _, g := range s.grants[userID] {
		out = append(out, *g)
	}
	return out, nil
}

func (s *MemoryStore) SaveAccessGrant(ctx context.Context, grant *model.AccessGrant) error {
	if grant == nil || grant.UserID == "" || grant.Resource == "" || grant.Action == "" {
		return fmt.Errorf("%w: access grant requires user, resource, and action", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now()
	}
	g := *grant
	for i, existing := range s.grants[grant.UserID] {
		if existing.ID == grant.ID {
			s.grants[grant.UserID][i] = &g
			return nil
		}
	}
	s.grants[grant.UserID] = append(s.grants[grant.UserID], &g)
	return nil
}

func (s *MemoryStore) BreakGlassForUser(ctx context.Context, userID string) ([]model.BreakGlassRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.BreakGlassRequest
	for _, b := range s.breakGlass[userID] {
		out = append(out, *b)
	}
	return out, nil
}

func (s *MemoryStore) SaveBreakGlassRequest(ctx context.Context, req *model.BreakGlassRequest) error {
	if req == nil || req.UserID == "" || req.Resource == "" || req.Reason == "" {
		return fmt.Errorf("%w: break-glass request requires user, resource, and reason", lithic_errors.ErrInvalidGrant)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	r := *req
	for i, existing := range s.breakGlass[req.UserID] {
		if existing.ID == req.ID {
			s.breakGlass[req.UserID][i] = &r
			return nil
		}
	}
	s.breakGlass[req.UserID] = append(s.breakGlass[req.UserID], &r)
	return nil
}

func (s *MemoryStore) AppendAuditEntry(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.auditLog = append(s.auditLog, entry)
	return nil
}

func (s *MemoryStore) RecentAuditEntries(ctx context.Context, userID string, since time.Time, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for i := len(s.auditLog) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.auditLog[i]
		if e.UserID == userID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// AuditEntries returns a snapshot of the full audit log, newest last.
func (s *MemoryStore) AuditEntries() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]audit.Entry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}
