// Package scope resolves which branch an acting user may touch. Superadmins
// operate unscoped; every other role is confined to its own branch, enforced
// at the query level for reads and before any mutation for writes.
package scope

import (
	"github.com/atlasedu/academy-api/internal/models"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

// Scope is the branch filter derived from an acting user. An empty BranchID
// means unscoped (superadmin).
type Scope struct {
	BranchID string
}

// Unscoped reports whether the scope spans all branches.
func (s Scope) Unscoped() bool {
	return s.BranchID == ""
}

// Allows reports whether a record owned by branchID is visible in this scope.
func (s Scope) Allows(branchID string) bool {
	return s.Unscoped() || s.BranchID == branchID
}

// Resolve derives the branch scope for the acting user. Non-superadmins
// without a branch assignment cannot act at all.
func Resolve(user models.AuthUser) (Scope, error) {
	if user.Role == models.RoleSuperAdmin {
		return Scope{}, nil
	}
	if user.BranchID == nil || *user.BranchID == "" {
		return Scope{}, appErrors.Clone(appErrors.ErrBadRequest, "branch is not assigned to current user")
	}
	return Scope{BranchID: *user.BranchID}, nil
}

// RequireAccess resolves the user's scope and rejects records outside it.
func RequireAccess(user models.AuthUser, branchID string) error {
	s, err := Resolve(user)
	if err != nil {
		return err
	}
	if !s.Allows(branchID) {
		return appErrors.Clone(appErrors.ErrForbidden, "operation restricted to your branch")
	}
	return nil
}

// ResolveEnrollmentBranch returns the branch an enrollment for the given
// student/course pair must live in. Both records need a branch, the branches
// must match each other, and the acting user must have access to it.
func ResolveEnrollmentBranch(student *models.Student, course *models.Course, user models.AuthUser) (string, error) {
	if student.BranchID == "" || course.BranchID == "" {
		return "", appErrors.Clone(appErrors.ErrBadRequest, "student and course must be assigned to a branch")
	}
	if student.BranchID != course.BranchID {
		return "", appErrors.Clone(appErrors.ErrConflict, "student and course belong to different branches")
	}
	if err := RequireAccess(user, course.BranchID); err != nil {
		return "", err
	}
	return course.BranchID, nil
}

// ResolveForWrite picks the branch a new record is created in. Superadmins
// must name a branch explicitly; scoped users always write into their own
// branch and may not name another one.
func ResolveForWrite(requestedBranchID string, user models.AuthUser) (string, error) {
	if user.Role == models.RoleSuperAdmin {
		if requestedBranchID == "" {
			return "", appErrors.Clone(appErrors.ErrBadRequest, "branch_id is required")
		}
		return requestedBranchID, nil
	}
	s, err := Resolve(user)
	if err != nil {
		return "", err
	}
	if requestedBranchID != "" && requestedBranchID != s.BranchID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "you can only manage records within your branch")
	}
	return s.BranchID, nil
}
