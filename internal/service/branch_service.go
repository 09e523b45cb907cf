package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/scope"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type branchStore interface {
	List(ctx context.Context) ([]models.Branch, error)
	FindByID(ctx context.Context, id string) (*models.Branch, error)
	NameExists(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, branch *models.Branch) error
	Update(ctx context.Context, branch *models.Branch) error
	Delete(ctx context.Context, id string) error
}

// BranchRequest is the payload for branch creation and rename.
type BranchRequest struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
}

// BranchService manages tenant branches. Writes are a superadmin concern;
// scoped users may read only their own branch.
type BranchService struct {
	branches  branchStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBranchService constructs BranchService.
func NewBranchService(branches branchStore, validate *validator.Validate, logger *zap.Logger) *BranchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchService{branches: branches, validator: validate, logger: logger}
}

// List returns every branch for superadmins and the user's own branch
// otherwise.
func (s *BranchService) List(ctx context.Context, actor models.AuthUser) ([]models.Branch, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, err
	}
	if sc.Unscoped() {
		branches, err := s.branches.List(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list branches")
		}
		return branches, nil
	}

	branch, err := s.branches.FindByID(ctx, sc.BranchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Branch{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	return []models.Branch{*branch}, nil
}

// Get returns a single branch, subject to scope.
func (s *BranchService) Get(ctx context.Context, id string, actor models.AuthUser) (*models.Branch, error) {
	if err := scope.RequireAccess(actor, id); err != nil {
		return nil, err
	}
	branch, err := s.branches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	return branch, nil
}

// Create registers a new branch.
func (s *BranchService) Create(ctx context.Context, req BranchRequest, actor models.AuthUser) (*models.Branch, error) {
	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can manage branches")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}

	name := strings.TrimSpace(req.Name)
	if err := s.requireNameFree(ctx, name, ""); err != nil {
		return nil, err
	}

	branch := &models.Branch{Name: name}
	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create branch")
	}

	s.logger.Info("branch created", zap.String("branch_id", branch.ID), zap.String("name", name))
	return branch, nil
}

// Update renames a branch.
func (s *BranchService) Update(ctx context.Context, id string, req BranchRequest, actor models.AuthUser) (*models.Branch, error) {
	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can manage branches")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}

	branch, err := s.branches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}

	name := strings.TrimSpace(req.Name)
	if name != branch.Name {
		if err := s.requireNameFree(ctx, name, id); err != nil {
			return nil, err
		}
		branch.Name = name
	}

	if err := s.branches.Update(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update branch")
	}
	return branch, nil
}

// Delete removes a branch. The store rejects deletion while dependent
// records reference it.
func (s *BranchService) Delete(ctx context.Context, id string, actor models.AuthUser) error {
	if actor.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only superadmin can manage branches")
	}
	if _, err := s.branches.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	if err := s.branches.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete branch")
	}
	s.logger.Info("branch removed", zap.String("branch_id", id))
	return nil
}

func (s *BranchService) requireNameFree(ctx context.Context, name, excludeID string) error {
	taken, err := s.branches.NameExists(ctx, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check branch name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("branch %s already exists", name))
	}
	return nil
}
