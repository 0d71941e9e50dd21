// hierarchy/resolver.go
package hierarchy

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	logger "github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
	"github.com/harborgrid-justin/lithic-sub009/store"
)

// overlapThreshold is how many shared resource:action keys two unrelated
// roles may carry before DetectConflicts flags the pair.
const overlapThreshold = 5

// Resolver maintains the role forest and resolves inherited permission
// sets. Roles form a forest: no cycles, and Level always equals the
// role's actual depth from its root.
type Resolver struct {
	store    store.Store
	auditSvc *audit.Service
}

func NewResolver(s store.Store, auditSvc *audit.Service) *Resolver {
	return &Resolver{store: s, auditSvc: auditSvc}
}

// Hierarchy is a materialized snapshot of one organization's role forest.
type Hierarchy struct {
	Roles    map[string]*model.Role
	Children map[string][]string
	// Resolved holds the effective permission set per role, ancestor
	// permissions included where inheritance is enabled.
	Resolved map[string][]model.Permission
}

// BuildHierarchy loads the organization's roles, wires up the forest,
// recomputes every Level from actual depth, and materializes resolved
// permission sets.
func (r *Resolver) BuildHierarchy(ctx context.Context, orgID string) (*Hierarchy, error) {
	roles, err := r.store.RolesByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading roles for organization %s: %w", orgID, err)
	}

	h := &Hierarchy{
		Roles:    make(map[string]*model.Role, len(roles)),
		Children: make(map[string][]string),
		Resolved: make(map[string][]model.Permission, len(roles)),
	}
	for _, role := range roles {
		h.Roles[role.ID] = role
	}

	var roots []string
	for _, role := range roles {
		if role.ParentRoleID == nil || h.Roles[*role.ParentRoleID] == nil {
			roots = append(roots, role.ID)
			continue
		}
		h.Children[*role.ParentRoleID] = append(h.Children[*role.ParentRoleID], role.ID)
	}

	// Breadth-first from the roots: assigns levels and accumulates
	// inherited permissions in one pass, bounded regardless of depth.
	queue := make([]string, 0, len(roots))
	queue = append(queue, roots...)
	visited := len(roots)
	for _, id := range roots {
		h.Roles[id].Level = 0
		h.Resolved[id] = mergeOwnOverInherited(nil, h.Roles[id].Permissions)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, childID := range h.Children[id] {
			child := h.Roles[childID]
			child.Level = h.Roles[id].Level + 1
			var inherited []model.Permission
			if child.InheritPermissions {
				inherited = h.Resolved[id]
			}
			h.Resolved[childID] = mergeOwnOverInherited(inherited, child.Permissions)
			queue = append(queue, childID)
			visited++
		}
	}

	// A role the walk never reached sits in a stored cycle: every member
	// has a present parent, so none of them ever became a root.
	if visited < len(h.Roles) {
		var trapped []string
		for id := range h.Roles {
			if _, ok := h.Resolved[id]; !ok {
				trapped = append(trapped, id)
			}
		}
		sort.Strings(trapped)
		return nil, fmt.Errorf("%w: roles %v are unreachable from any root", lithic_errors.ErrCircularRole, trapped)
	}

	return h, nil
}

// ResolveRolePermissions walks the ancestor chain of a single role and
// merges permissions, the role's own entry winning on any resource:action
// collision. Safe to call repeatedly; it mutates nothing.
func (r *Resolver) ResolveRolePermissions(ctx context.Context, roleID string) ([]model.Permission, error) {
	chain, err := r.ancestorChain(ctx, roleID)
	if err != nil {
		return nil, err
	}

	// Walk root-first so nearer roles override farther ones.
	var resolved []model.Permission
	for i := len(chain) - 1; i >= 0; i-- {
		role := chain[i]
		if !role.InheritPermissions {
			resolved = nil
		}
		resolved = mergeOwnOverInherited(resolved, role.Permissions)
	}
	return resolved, nil
}

// ancestorChain returns the role followed by its ancestors up to the
// root. A repeated ID means the stored forest is corrupt.
func (r *Resolver) ancestorChain(ctx context.Context, roleID string) ([]*model.Role, error) {
	var chain []*model.Role
	seen := make(map[string]bool)
	current := roleID
	for current != "" {
		if seen[current] {
			return nil, fmt.Errorf("%w: role %s appears twice in its own ancestry", lithic_errors.ErrCircularRole, current)
		}
		seen[current] = true

		role, err := r.store.GetRole(ctx, current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, role)
		if role.ParentRoleID == nil {
			break
		}
		current = *role.ParentRoleID
	}
	return chain, nil
}

// CreateRole validates the parent (same organization, no cycle) before
// persisting. The creation is audited.
func (r *Resolver) CreateRole(ctx context.Context, role *model.Role, creatorID string) (*model.Role, error) {
	if role == nil || role.OrganizationID == "" || role.Name == "" {
		return nil, fmt.Errorf("%w: role requires organization and name", lithic_errors.ErrInvalidRoleData)
	}

	role.Level = 0
	if role.ParentRoleID != nil {
		parent, err := r.store.GetRole(ctx, *role.ParentRoleID)
		if err != nil {
			return nil, fmt.Errorf("loading parent role: %w", err)
		}
		if parent.OrganizationID != role.OrganizationID {
			return nil, lithic_errors.ErrRoleOrgMismatch
		}
		if role.ID != "" {
			ancestors, err := r.ancestorChain(ctx, parent.ID)
			if err != nil {
				return nil, err
			}
			for _, a := range ancestors {
				if a.ID == role.ID {
					return nil, fmt.Errorf("%w: role %s is an ancestor of its proposed parent", lithic_errors.ErrCircularRole, role.ID)
				}
			}
		}
		role.Level = parent.Level + 1
	}

	if err := r.store.SaveRole(ctx, role); err != nil {
		return nil, err
	}
	logger.Info("Role created",
		zap.String("roleId", role.ID),
		zap.String("orgId", role.OrganizationID),
		zap.Int("level", role.Level))
	r.auditSvc.RecordAdminAction(ctx, creatorID, "ROLE_CREATED", "roles", role.ID,
		fmt.Sprintf("Created role %q at level %d", role.Name, role.Level), nil)
	return role, nil
}

// UpdateRoleParent re-parents a role. It rejects any parent whose
// ancestry contains the role itself, mutating nothing in that case. On
// success the role's level, and every descendant's, is recomputed
// synchronously so Level never drifts from actual depth. Safe to retry.
func (r *Resolver) UpdateRoleParent(ctx context.Context, roleID string, newParentID *string, actorID string) error {
	role, err := r.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	newLevel := 0
	if newParentID != nil {
		parent, err := r.store.GetRole(ctx, *newParentID)
		if err != nil {
			return fmt.Errorf("loading new parent role: %w", err)
		}
		if parent.OrganizationID != role.OrganizationID {
			return lithic_errors.ErrRoleOrgMismatch
		}
		ancestors, err := r.ancestorChain(ctx, parent.ID)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a.ID == roleID {
				return fmt.Errorf("%w: %s descends from %s", lithic_errors.ErrCircularRole, *newParentID, roleID)
			}
		}
		newLevel = parent.Level + 1
	}

	role.ParentRoleID = newParentID
	role.Level = newLevel
	if err := r.store.SaveRole(ctx, role); err != nil {
		return err
	}

	if err := r.cascadeLevels(ctx, role); err != nil {
		return err
	}

	logger.Info("Role re-parented",
		zap.String("roleId", roleID),
		zap.Int("newLevel", newLevel))
	r.auditSvc.RecordAdminAction(ctx, actorID, "ROLE_REPARENTED", "roles", roleID,
		fmt.Sprintf("Re-parented role to level %d", newLevel), nil)
	return nil
}

// cascadeLevels recomputes Level over the descendant subtree with an
// explicit queue.
func (r *Resolver) cascadeLevels(ctx context.Context, root *model.Role) error {
	roles, err := r.store.RolesByOrganization(ctx, root.OrganizationID)
	if err != nil {
		return err
	}
	children := make(map[string][]*model.Role)
	for _, role := range roles {
		if role.ParentRoleID != nil {
			children[*role.ParentRoleID] = append(children[*role.ParentRoleID], role)
		}
	}

	queue := []*model.Role{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent.ID] {
			want := parent.Level + 1
			if child.Level != want {
				child.Level = want
				if err := r.store.SaveRole(ctx, child); err != nil {
					return err
				}
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// DetectConflicts re-scans the organization's forest for cycles
// (defensive: mutations should make them impossible) and flags
// non-ancestor role pairs whose permission sets overlap on more than
// overlapThreshold resource:action keys. Quadratic, which is fine at
// organizational role counts.
func (r *Resolver) DetectConflicts(ctx context.Context, orgID string) ([]model.RoleConflict, error) {
	roles, err := r.store.RolesByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}

	var conflicts []model.RoleConflict

	for _, role := range roles {
		seen := map[string]bool{role.ID: true}
		current := role
		for current.ParentRoleID != nil {
			parent := byID[*current.ParentRoleID]
			if parent == nil {
				break
			}
			if seen[parent.ID] {
				conflicts = append(conflicts, model.RoleConflict{
					Type:     "CYCLE",
					Severity: "HIGH",
					RoleIDs:  []string{role.ID, parent.ID},
					Detail:   "role ancestry loops back on itself",
				})
				break
			}
			seen[parent.ID] = true
			current = parent
		}
	}

	ancestorsOf := func(role *model.Role) map[string]bool {
		out := make(map[string]bool)
		current := role
		for current.ParentRoleID != nil {
			parent := byID[*current.ParentRoleID]
			if parent == nil || out[parent.ID] {
				break
			}
			out[parent.ID] = true
			current = parent
		}
		return out
	}

	for i := 0; i < len(roles); i++ {
		for j := i + 1; j < len(roles); j++ {
			a, b := roles[i], roles[j]
			if ancestorsOf(a)[b.ID] || ancestorsOf(b)[a.ID] {
				continue
			}
			overlap := permissionOverlap(a.Permissions, b.Permissions)
			if overlap > overlapThreshold {
				conflicts = append(conflicts, model.RoleConflict{
					Type:     "PERMISSION_OVERLAP",
					Severity: "MEDIUM",
					RoleIDs:  []string{a.ID, b.ID},
					Detail:   fmt.Sprintf("%d overlapping resource:action permissions", overlap),
				})
			}
		}
	}
	return conflicts, nil
}

// MergePermissions unions permission sets keyed by resource:action,
// keeping the most permissive scope when sets collide.
func MergePermissions(sets ...[]model.Permission) []model.Permission {
	merged := make(map[string]model.Permission)
	for _, set := range sets {
		for _, p := range set {
			existing, ok := merged[p.Key()]
			if !ok || p.Scope.WiderThan(existing.Scope) {
				merged[p.Key()] = p
			}
		}
	}
	return sortedPermissions(merged)
}

// mergeOwnOverInherited overlays own permissions on an inherited set; an
// own permission always wins its key, whatever the scopes.
func mergeOwnOverInherited(inherited, own []model.Permission) []model.Permission {
	merged := make(map[string]model.Permission, len(inherited)+len(own))
	for _, p := range inherited {
		merged[p.Key()] = p
	}
	for _, p := range own {
		merged[p.Key()] = p
	}
	return sortedPermissions(merged)
}

func sortedPermissions(merged map[string]model.Permission) []model.Permission {
	out := make([]model.Permission, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func permissionOverlap(a, b []model.Permission) int {
	keys := make(map[string]bool, len(a))
	for _, p := range a {
		keys[p.Key()] = true
	}
	count := 0
	for _, p := range b {
		if keys[p.Key()] {
			count++
		}
	}
	return count
}
