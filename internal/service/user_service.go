package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/scope"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type userStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// CreateUserRequest provisions an account with an explicit role.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=6"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN USER"`
	BranchID *string         `json:"branch_id,omitempty"`
}

// UpdateUserRequest is a partial account patch.
type UpdateUserRequest struct {
	FullName *string          `json:"full_name,omitempty"`
	Role     *models.UserRole `json:"role,omitempty" validate:"omitempty,oneof=SUPERADMIN ADMIN USER"`
	BranchID *string          `json:"branch_id,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

// UserService provisions and manages accounts. Superadmins manage any
// account; admins manage USER accounts inside their own branch.
type UserService struct {
	users     userStore
	branches  branchChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(users userStore, branches branchChecker, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, branches: branches, validator: validate, logger: logger}
}

// List returns accounts visible to the acting user, paginated.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, actor models.AuthUser) ([]models.User, *models.Pagination, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, nil, err
	}
	if !sc.Unscoped() {
		filter.BranchID = sc.BranchID
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single account.
func (s *UserService) Get(ctx context.Context, id string, actor models.AuthUser) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("user with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.BranchID != nil {
		if err := scope.RequireAccess(actor, *user.BranchID); err != nil {
			return nil, err
		}
	} else if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "operation restricted to your branch")
	}
	return user, nil
}

// Create provisions an account. Only superadmins may mint SUPERADMIN or
// ADMIN roles; a SUPERADMIN is the only role allowed to have no branch.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor models.AuthUser) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if req.Role != models.RoleUser && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can assign elevated roles")
	}

	var branchID *string
	if req.Role == models.RoleSuperAdmin {
		if req.BranchID != nil {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "superadmin accounts are not branch-scoped")
		}
	} else {
		requested := ""
		if req.BranchID != nil {
			requested = *req.BranchID
		}
		resolved, err := scope.ResolveForWrite(requested, actor)
		if err != nil {
			return nil, err
		}
		if exists, err := s.branches.Exists(ctx, resolved); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify branch")
		} else if !exists {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", resolved))
		}
		branchID = &resolved
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already registered", email))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		BranchID:     branchID,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update patches an account. Role and branch changes are superadmin-only.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor models.AuthUser) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil && *req.Role != user.Role {
		if actor.Role != models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can change roles")
		}
		user.Role = *req.Role
		if user.Role == models.RoleSuperAdmin {
			user.BranchID = nil
		}
	}
	if req.BranchID != nil {
		if actor.Role != models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can move users between branches")
		}
		if user.Role == models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "superadmin accounts are not branch-scoped")
		}
		if exists, err := s.branches.Exists(ctx, *req.BranchID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify branch")
		} else if !exists {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", *req.BranchID))
		}
		user.BranchID = req.BranchID
	}
	if user.Role != models.RoleSuperAdmin && user.BranchID == nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "non-superadmin accounts require a branch")
	}
	if req.Active != nil && *req.Active != user.Active {
		user.Active = *req.Active
		if !user.Active {
			if err := s.users.RevokeUserRefreshTokens(ctx, id); err != nil {
				s.logger.Warn("failed to revoke sessions for deactivated user", zap.String("user_id", id), zap.Error(err))
			}
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// Delete removes an account and its sessions.
func (s *UserService) Delete(ctx context.Context, id string, actor models.AuthUser) error {
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrBadRequest, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, id, actor); err != nil {
		return err
	}
	if err := s.users.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke sessions for deleted user", zap.String("user_id", id), zap.Error(err))
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.logger.Info("user removed", zap.String("user_id", id), zap.String("deleted_by", actor.ID))
	return nil
}
