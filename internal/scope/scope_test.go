package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasedu/academy-api/internal/models"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestResolveSuperadminUnscoped(t *testing.T) {
	s, err := Resolve(models.AuthUser{ID: "u1", Role: models.RoleSuperAdmin})
	require.NoError(t, err)
	assert.True(t, s.Unscoped())
	assert.True(t, s.Allows("any-branch"))
}

func TestResolveAdminScopedToBranch(t *testing.T) {
	s, err := Resolve(models.AuthUser{ID: "u1", Role: models.RoleAdmin, BranchID: strPtr("b1")})
	require.NoError(t, err)
	assert.False(t, s.Unscoped())
	assert.True(t, s.Allows("b1"))
	assert.False(t, s.Allows("b2"))
}

func TestResolveMissingBranchFails(t *testing.T) {
	_, err := Resolve(models.AuthUser{ID: "u1", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestRequireAccessBranchMismatch(t *testing.T) {
	err := RequireAccess(models.AuthUser{ID: "u1", Role: models.RoleAdmin, BranchID: strPtr("b1")}, "b2")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = RequireAccess(models.AuthUser{ID: "u1", Role: models.RoleSuperAdmin}, "b2")
	assert.NoError(t, err)
}

func TestResolveEnrollmentBranch(t *testing.T) {
	admin := models.AuthUser{ID: "u1", Role: models.RoleAdmin, BranchID: strPtr("b1")}
	student := &models.Student{ID: "s1", BranchID: "b1"}
	course := &models.Course{ID: "c1", BranchID: "b1"}

	branchID, err := ResolveEnrollmentBranch(student, course, admin)
	require.NoError(t, err)
	assert.Equal(t, "b1", branchID)

	course.BranchID = "b2"
	_, err = ResolveEnrollmentBranch(student, course, admin)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	student.BranchID = ""
	_, err = ResolveEnrollmentBranch(student, course, admin)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestResolveForWrite(t *testing.T) {
	super := models.AuthUser{ID: "u1", Role: models.RoleSuperAdmin}
	admin := models.AuthUser{ID: "u2", Role: models.RoleAdmin, BranchID: strPtr("b1")}

	_, err := ResolveForWrite("", super)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))

	branchID, err := ResolveForWrite("b9", super)
	require.NoError(t, err)
	assert.Equal(t, "b9", branchID)

	branchID, err = ResolveForWrite("", admin)
	require.NoError(t, err)
	assert.Equal(t, "b1", branchID)

	_, err = ResolveForWrite("b2", admin)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
