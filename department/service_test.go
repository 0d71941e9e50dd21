// department/service_test.go
package department_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgrid-justin/lithic-sub009/audit"
	"github.com/harborgrid-justin/lithic-sub009/department"
	lithic_errors "github.com/harborgrid-justin/lithic-sub009/errors"
	"github.com/harborgrid-justin/lithic-sub009/logging"
	"github.com/harborgrid-justin/lithic-sub009/model"
	"github.com/harborgrid-justin/lithic-sub009/store"
)

func init() {
	logging.InitTestLogger()
}

type recorder struct{ s *store.MemoryStore }

func (r recorder) Record(ctx context.Context, e audit.Entry) error {
	return r.s.AppendAuditEntry(ctx, e)
}

func newDeptService(t *testing.T) (*department.Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return department.NewService(s, audit.NewService(recorder{s}), nil), s
}

func TestDepartmentGrantAndLevels(t *testing.T) {
	svc, _ := newDeptService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.GrantAccess(ctx, &model.DepartmentAccess{
		UserID:       "u1",
		DepartmentID: "cardiology",
		AccessLevel:  model.DeptAccessReadOnly,
	}, "admin"))

	ok, err := svc.HasAccess(ctx, "u1", "cardiology", model.DeptAccessLimited, now)
	require.NoError(t, err)
	assert.True(t, ok, "READ_ONLY satisfies a LIMITED threshold")

	ok, err = svc.HasAccess(ctx, "u1", "cardiology", model.DeptAccessFull, now)
	require.NoError(t, err)
	assert.False(t, ok, "READ_ONLY does not satisfy FULL")

	ok, err = svc.HasAccess(ctx, "u1", "oncology", model.DeptAccessLimited, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDepartmentCrossDepartmentAllowance(t *testing.T) {
	svc, _ := newDeptService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.GrantAccess(ctx, &model.DepartmentAccess{
		UserID:             "u1",
		DepartmentID:       "cardiology",
		AccessLevel:        model.DeptAccessFull,
		CanCrossDepartment: true,
		AllowedDepartments: []string{"radiology", "oncology"},
	}, "admin"))

	ok, err := svc.HasAccess(ctx, "u1", "radiology", model.DeptAccessReadOnly, now)
	require.NoError(t, err)
	assert.True(t, ok, "one grant satisfies listed other departments")

	ok, err = svc.HasAccess(ctx, "u1", "neurology", model.DeptAccessReadOnly, now)
	require.NoError(t, err)
	assert.False(t, ok, "unlisted department stays closed")
}

func TestDepartmentRevokeAndCleanup(t *testing.T) {
	svc, _ := newDeptService(t)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Minute)

	require.NoError(t, svc.GrantAccess(ctx, &model.DepartmentAccess{
		UserID: "u1", DepartmentID: "cardiology", AccessLevel: model.DeptAccessFull,
	}, "admin"))
	require.NoError(t, svc.GrantAccess(ctx, &model.DepartmentAccess{
		UserID: "u1", DepartmentID: "oncology", AccessLevel: model.DeptAccessFull, ExpiresAt: &past,
	}, "admin"))

	require.NoError(t, svc.RevokeAccess(ctx, "u1", "cardiology", "admin"))
	ok, err := svc.HasAccess(ctx, "u1", "cardiology", model.DeptAccessLimited, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasAccess(ctx, "u1", "oncology", model.DeptAccessLimited, now)
	require.NoError(t, err)
	assert.False(t, ok, "expired grant treated as absent before purge")

	count, err := svc.CleanupExpiredAccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCrossDepartmentAutoApproval(t *testing.T) {
	svc, s := newDeptService(t)
	ctx := context.Background()
	now := time.Now()

	s.PutCrossDepartmentRule(&model.CrossDepartmentRule{
		OrganizationID:    "org1",
		FromDepartmentID:  "er",
		ToDepartmentID:    "cardiology",
		AllowedResources:  []string{"patients"},
		RequiresApproval:  false,
		AutoExpireMinutes: 30,
	})

	req, err := svc.RequestCrossDepartmentAccess(ctx, "u1", "er", "cardiology", "patients", "consult")
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, req.Status)

	ok, err := svc.HasAccess(ctx, "u1", "cardiology", model.DeptAccessReadOnly, now)
	require.NoError(t, err)
	assert.True(t, ok)

	grants, err := s.DepartmentAccessForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.NotNil(t, grants[0].ExpiresAt, "auto-expire rule time-boxes the grant")
	assert.WithinDuration(t, now.Add(30*time.Minute), *grants[0].ExpiresAt, time.Minute)
}

func TestCrossDepartmentApprovalWorkflow(t *testing.T) {
	svc, s := newDeptService(t)
	ctx := context.Background()

	s.PutCrossDepartmentRule(&model.CrossDepartmentRule{
		OrganizationID:   "org1",
		FromDepartmentID: "er",
		ToDepartmentID:   "cardiology",
		AllowedResources: []string{"*"},
		RequiresApproval: true,
	})

	req, err := svc.RequestCrossDepartmentAccess(ctx, "u1", "er", "cardiology", "patients", "consult")
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)

	ok, err := svc.HasAccess(ctx, "u1", "cardiology", model.DeptAccessReadOnly, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "pending request grants nothing")

	require.NoError(t, svc.ApproveCrossDepartmentRequest(ctx, req.ID, "chief"))

	ok, err = svc.HasAccess(ctx, "u1", "cardiology", model.DeptAccessReadOnly, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-processing a resolved request is a state error.
	err = svc.ApproveCrossDepartmentRequest(ctx, req.ID, "chief")
	assert.ErrorIs(t, err, lithic_errors.ErrRequestAlreadyResolved)
	err = svc.DenyCrossDepartmentRequest(ctx, req.ID, "chief")
	assert.ErrorIs(t, err, lithic_errors.ErrRequestAlreadyResolved)
}

func TestCrossDepartmentNoRule(t *testing.T) {
	svc, _ := newDeptService(t)
	ctx := context.Background()

	_, err := svc.RequestCrossDepartmentAccess(ctx, "u1", "er", "billing", "invoices", "why not")
	assert.ErrorIs(t, err, lithic_errors.ErrCrossDepartmentDenied)
}

func TestCrossDepartmentRuleResourceMismatch(t *testing.T) {
	svc, s := newDeptService(t)
	ctx := context.Background()

	s.PutCrossDepartmentRule(&model.CrossDepartmentRule{
		OrganizationID:   "org1",
		FromDepartmentID: "er",
		ToDepartmentID:   "cardiology",
		AllowedResources: []string{"labs"},
	})

	_, err := svc.RequestCrossDepartmentAccess(ctx, "u1", "er", "cardiology", "patients", "consult")
	assert.ErrorIs(t, err, lithic_errors.ErrCrossDepartmentDenied)
}

func TestGrantValidation(t *testing.T) {
	svc, _ := newDeptService(t)
	ctx := context.Background()

	err := svc.GrantAccess(ctx, &model.DepartmentAccess{UserID: "u1"}, "admin")
	assert.ErrorIs(t, err, lithic_errors.ErrInvalidGrant)
}
