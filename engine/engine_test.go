// engine/engine_test.go
package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgrid-justin/lithic-sub009/engine"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	"github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
	"github.com/harborgrid-justin/lithic-sub009/store"
)

func init() {
	logging.InitTestLogger()
}

func newEngine(t *testing.T) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	e := engine.New(s, nil, engine.Settings{})
	t.Cleanup(e.Close)
	return e, s
}

func seedUser(t *testing.T, s *store.MemoryStore, id, roleID string) {
	t.Helper()
	s.PutUser(&model.User{
		ID:             id,
		OrganizationID: "org1",
		Status:         model.UserStatusActive,
		RoleID:         roleID,
	})
}

func seedRole(t *testing.T, s *store.MemoryStore, role *model.Role) {
	t.Helper()
	require.NoError(t, s.SaveRole(context.Background(), role))
}

func readPatients(userID string) *model.EvaluationContext {
	return &model.EvaluationContext{
		UserID:   userID,
		Resource: "patients",
		Action:   "read",
	}
}

func auditActions(s *store.MemoryStore) []string {
	var out []string
	for _, e := range s.AuditEntries() {
		out = append(out, e.Action)
	}
	return out
}

func TestDefaultDeny(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")

	result := e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, result.Allowed)
	assert.Equal(t, "No matching permission found", result.Reason)
	assert.Contains(t, auditActions(s), "ACCESS_DENIED")
}

func TestUnknownOrInactiveUserDenies(t *testing.T) {
	e, s := newEngine(t)

	result := e.Evaluate(context.Background(), readPatients("ghost"))
	assert.False(t, result.Allowed)

	s.PutUser(&model.User{ID: "u1", OrganizationID: "org1", Status: model.UserStatusInactive})
	result = e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, result.Allowed)
	assert.Equal(t, "User not found or inactive", result.Reason)
}

func TestRolePermissionAllows(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeOrganization}},
	})
	seedUser(t, s, "u1", "r1")

	result := e.Evaluate(context.Background(), readPatients("u1"))
	assert.True(t, result.Allowed)
	assert.Equal(t, []string{"role:r1"}, result.MatchedPolicies)
}

func TestExplicitDenyBeatsRoleAllow(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")
	s.PutPolicy(&model.AccessPolicy{
		OrganizationID: "org1",
		Name:           "lockdown",
		Rules:          []model.PolicyRule{{Resource: "patients", Action: "read"}},
		Effect:         model.EffectDeny,
		Enabled:        true,
	})

	result := e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "lockdown")
}

func TestBreakGlassAllowsAndAuditsPHI(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")
	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.SaveBreakGlassRequest(context.Background(), &model.BreakGlassRequest{
		UserID:    "u1",
		Resource:  "patients",
		Action:    "read",
		Reason:    "code blue",
		Status:    model.BreakGlassActive,
		ExpiresAt: &expires,
	}))

	result := e.Evaluate(context.Background(), readPatients("u1"))
	assert.True(t, result.Allowed)
	assert.False(t, result.CacheHit)

	var phiEntries int
	for _, entry := range s.AuditEntries() {
		if entry.Action == "BREAK_GLASS_ACCESS" {
			assert.True(t, entry.IsPHIAccess)
			phiEntries++
		}
	}
	assert.Equal(t, 1, phiEntries)

	// Break-glass is never cached: a second evaluation recomputes and
	// re-audits.
	result = e.Evaluate(context.Background(), readPatients("u1"))
	assert.True(t, result.Allowed)
	assert.False(t, result.CacheHit)
}

func TestRevokedBreakGlassHonoredImmediately(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")
	expires := time.Now().Add(time.Hour)
	req := &model.BreakGlassRequest{
		UserID:    "u1",
		Resource:  "patients",
		Action:    "read",
		Reason:    "code blue",
		Status:    model.BreakGlassActive,
		ExpiresAt: &expires,
	}
	require.NoError(t, s.SaveBreakGlassRequest(context.Background(), req))

	result := e.Evaluate(context.Background(), readPatients("u1"))
	require.True(t, result.Allowed)

	req.Status = model.BreakGlassRevoked
	require.NoError(t, s.SaveBreakGlassRequest(context.Background(), req))

	result = e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, result.Allowed)
}

// The entries the engine appends must carry the request's location so the
// anomaly scorer can read real history instead of treating every access
// as a first visit.
func TestEngineAuditEntriesFeedAnomalyScoring(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()
	seedUser(t, s, "u1", "")

	for i := 0; i < 10; i++ {
		e.Evaluate(ctx, &model.EvaluationContext{
			UserID:     "u1",
			Resource:   "patients",
			Action:     "read",
			LocationID: "ward-1",
			IPAddress:  "10.0.0.5",
		})
	}
	for _, entry := range s.AuditEntries() {
		assert.Equal(t, "ward-1", entry.LocationID)
	}

	// Ten prior accesses at ward-1 from a private IP: nothing unusual.
	score := e.Locations().ScoreAccess(ctx, "u1", "ward-1", "10.0.0.5", time.Now())
	assert.Equal(t, 0, score.Score)
	assert.False(t, score.Anomalous())

	// A different ward minutes later reads as a new location plus a rapid
	// relocation.
	score = e.Locations().ScoreAccess(ctx, "u1", "ward-9", "10.0.0.5", time.Now())
	assert.Equal(t, 70, score.Score)
	assert.True(t, score.Anomalous())
}

func TestBreakGlassEntryCarriesLocation(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")
	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.SaveBreakGlassRequest(context.Background(), &model.BreakGlassRequest{
		UserID:    "u1",
		Resource:  "patients",
		Action:    "read",
		Reason:    "code blue",
		Status:    model.BreakGlassActive,
		ExpiresAt: &expires,
	}))

	result := e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID:     "u1",
		Resource:   "patients",
		Action:     "read",
		LocationID: "er-3",
	})
	require.True(t, result.Allowed)

	entries := s.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "BREAK_GLASS_ACCESS", entries[0].Action)
	assert.Equal(t, "er-3", entries[0].LocationID)
}

func TestExpiredBreakGlassGrantsNothing(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")
	past := time.Now().Add(-time.Minute)
	require.NoError(t, s.SaveBreakGlassRequest(context.Background(), &model.BreakGlassRequest{
		UserID:    "u1",
		Resource:  "patients",
		Action:    "read",
		Reason:    "stale",
		Status:    model.BreakGlassActive,
		ExpiresAt: &past,
	}))

	result := e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, result.Allowed)
}

func TestSuperAdminBypassesAndIsNotCached(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{ID: "sa", OrganizationID: "org1", Name: model.SuperAdminRoleName})
	seedUser(t, s, "u1", "sa")

	result := e.Evaluate(context.Background(), readPatients("u1"))
	assert.True(t, result.Allowed)
	assert.Equal(t, "Super admin access", result.Reason)

	result = e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, result.CacheHit, "super-admin decisions stay fresh")
}

func TestAllowDecisionsAreCached(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")

	first := e.Evaluate(context.Background(), readPatients("u1"))
	require.True(t, first.Allowed)
	assert.False(t, first.CacheHit)

	second := e.Evaluate(context.Background(), readPatients("u1"))
	require.True(t, second.Allowed)
	assert.True(t, second.CacheHit)

	e.InvalidateUser(context.Background(), "u1")
	third := e.Evaluate(context.Background(), readPatients("u1"))
	require.True(t, third.Allowed)
	assert.False(t, third.CacheHit, "invalidation takes effect immediately")
}

func TestDenialsAreNotCached(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")

	first := e.Evaluate(context.Background(), readPatients("u1"))
	require.False(t, first.Allowed)
	second := e.Evaluate(context.Background(), readPatients("u1"))
	assert.False(t, second.CacheHit, "denials are recomputed each time")

	// Granting access afterwards is visible immediately.
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")
	third := e.Evaluate(context.Background(), readPatients("u1"))
	assert.True(t, third.Allowed)
}

func TestWildcardAndPrefixMatching(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Auditor",
		Permissions: []model.Permission{{Resource: "reports.*", Action: "*", Scope: model.ScopeOrganization}},
	})
	seedUser(t, s, "u1", "r1")

	result := e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID: "u1", Resource: "reports.monthly", Action: "export",
	})
	assert.True(t, result.Allowed)

	result = e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID: "u1", Resource: "patients", Action: "export",
	})
	assert.False(t, result.Allowed)
}

func TestAdminActionMatchesEverything(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "DeptAdmin",
		Permissions: []model.Permission{{Resource: "patients", Action: "admin", Scope: model.ScopeDepartment}},
	})
	seedUser(t, s, "u1", "r1")

	for _, action := range []string{"read", "write", "delete"} {
		result := e.Evaluate(context.Background(), &model.EvaluationContext{
			UserID: "u1", Resource: "patients", Action: action,
		})
		assert.True(t, result.Allowed, "admin permission covers %s", action)
	}
}

func TestCustomPermissions(t *testing.T) {
	e, s := newEngine(t)
	s.PutUser(&model.User{
		ID:             "u1",
		OrganizationID: "org1",
		Status:         model.UserStatusActive,
		CustomPermissions: []model.Permission{
			{Resource: "imaging", Action: "read", Scope: model.ScopeAssigned},
		},
	})

	result := e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID: "u1", Resource: "imaging", Action: "read",
	})
	assert.True(t, result.Allowed)
	assert.Equal(t, []string{"custom:u1"}, result.MatchedPolicies)
}

func TestTemporaryGrants(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")
	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.SaveAccessGrant(context.Background(), &model.AccessGrant{
		UserID:     "u1",
		Resource:   "patients",
		ResourceID: "p42",
		Action:     "read",
		ExpiresAt:  &expires,
	}))

	result := e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID: "u1", Resource: "patients", ResourceID: "p42", Action: "read",
	})
	assert.True(t, result.Allowed)

	// Exact resource instance only.
	result = e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID: "u1", Resource: "patients", ResourceID: "p43", Action: "read",
	})
	assert.False(t, result.Allowed)
}

func TestGenericPoliciesByPriority(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")
	s.PutPolicy(&model.AccessPolicy{
		OrganizationID: "org1", Name: "mfa-gate", Priority: 10, Enabled: true,
		Rules:  []model.PolicyRule{{Resource: "billing", Action: "*"}},
		Effect: model.EffectRequireMFA,
	})
	s.PutPolicy(&model.AccessPolicy{
		OrganizationID: "org1", Name: "open-read", Priority: 20, Enabled: true,
		Rules:  []model.PolicyRule{{Resource: "billing", Action: "read"}},
		Effect: model.EffectAllow,
	})

	result := e.Evaluate(context.Background(), &model.EvaluationContext{
		UserID: "u1", Resource: "billing", Action: "read",
	})
	assert.False(t, result.Allowed, "lower priority value wins and REQUIRE_MFA is not an allow")
	assert.True(t, result.RequiresMFA)
}

func TestRequirePermission(t *testing.T) {
	e, s := newEngine(t)
	seedUser(t, s, "u1", "")

	err := e.RequirePermission(context.Background(), readPatients("u1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, lithic_errors.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "No matching permission found")

	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")
	assert.NoError(t, e.RequirePermission(context.Background(), readPatients("u1")))
}

func TestBatchEvaluation(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")

	contexts := []*model.EvaluationContext{
		readPatients("u1"),
		{UserID: "u1", Resource: "billing", Action: "write"},
	}
	results := e.EvaluateBatch(context.Background(), contexts)
	require.Len(t, results, 2)
	assert.True(t, results[0].Allowed)
	assert.False(t, results[1].Allowed)

	assert.True(t, e.HasAnyPermission(context.Background(), contexts))
	assert.False(t, e.HasAllPermissions(context.Background(), contexts))
}

func TestCancelledContextFailsClosed(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := e.Evaluate(ctx, readPatients("u1"))
	assert.False(t, result.Allowed)
	assert.Equal(t, "Permission evaluation failed", result.Reason)
}

// The end-to-end department scenario: a DEPARTMENT-scoped role permission
// conditioned on D1 works only while the user's D1 access lives.
func TestDepartmentConditionEndToEnd(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()

	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{
			Resource: "patients", Action: "read", Scope: model.ScopeDepartment,
			Conditions: &model.PermissionConditions{Departments: []string{"D1"}},
		}},
	})
	seedUser(t, s, "u1", "r1")
	require.NoError(t, e.Departments().GrantAccess(ctx, &model.DepartmentAccess{
		UserID: "u1", DepartmentID: "D1", AccessLevel: model.DeptAccessFull,
	}, "admin"))

	evalCtx := &model.EvaluationContext{
		UserID: "u1", Resource: "patients", Action: "read", DepartmentID: "D1",
	}
	result := e.Evaluate(ctx, evalCtx)
	assert.True(t, result.Allowed)
	assert.Equal(t, []string{"role:r1"}, result.MatchedPolicies)
	assert.Contains(t, result.Conditions, "department:D1")

	// Expire the grant (mutation invalidates the cache) and purge it.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, e.Departments().GrantAccess(ctx, &model.DepartmentAccess{
		UserID: "u1", DepartmentID: "D1", AccessLevel: model.DeptAccessFull, ExpiresAt: &past,
	}, "admin"))
	purged, err := e.Departments().CleanupExpiredAccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	result = e.Evaluate(ctx, evalCtx)
	assert.False(t, result.Allowed)

	// Requesting a different department than the condition names fails too.
	result = e.Evaluate(ctx, &model.EvaluationContext{
		UserID: "u1", Resource: "patients", Action: "read", DepartmentID: "D2",
	})
	assert.False(t, result.Allowed)
}

func TestTimeConditionedPermission(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()

	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "NightNurse",
		Permissions: []model.Permission{{
			Resource: "patients", Action: "read", Scope: model.ScopeLocation,
			Conditions: &model.PermissionConditions{TimeRestricted: true},
		}},
	})
	seedUser(t, s, "u1", "r1")
	require.NoError(t, e.TimeAccess().SetRestriction(ctx, &model.TimeRestriction{
		UserID:   "u1",
		Timezone: "UTC",
		Schedules: []model.DaySchedule{
			{DayOfWeek: time.Monday, Start: "22:00", End: "06:00", Enabled: true},
		},
	}, "admin"))

	monday2330 := time.Date(2026, 1, 5, 23, 30, 0, 0, time.UTC)
	monday1200 := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	// Out-of-window first: the cache key does not carry the timestamp, so
	// an earlier in-window allow would otherwise satisfy this lookup.
	result := e.Evaluate(ctx, &model.EvaluationContext{
		UserID: "u1", Resource: "patients", Action: "read", Timestamp: &monday1200,
	})
	assert.False(t, result.Allowed)

	result = e.Evaluate(ctx, &model.EvaluationContext{
		UserID: "u1", Resource: "patients", Action: "read", Timestamp: &monday2330,
	})
	assert.True(t, result.Allowed)
	assert.Contains(t, result.Conditions, "time:within scheduled hours")
}

func TestEvaluationFaultDegradesToDenial(t *testing.T) {
	e, _ := newEngine(t)

	// An empty context denies through the unknown-user path instead of
	// propagating a failure.
	result := e.Evaluate(context.Background(), &model.EvaluationContext{})
	assert.False(t, result.Allowed)
}

func TestCacheStatsExposed(t *testing.T) {
	e, s := newEngine(t)
	seedRole(t, s, &model.Role{
		ID: "r1", OrganizationID: "org1", Name: "Clinician",
		Permissions: []model.Permission{{Resource: "patients", Action: "read", Scope: model.ScopeAll}},
	})
	seedUser(t, s, "u1", "r1")

	e.Evaluate(context.Background(), readPatients("u1"))
	e.Evaluate(context.Background(), readPatients("u1"))

	stats := e.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.GreaterOrEqual(t, stats.Size, 1)
}
