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

type instructorStore interface {
	List(ctx context.Context, branchID string) ([]models.Instructor, error)
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, instructor *models.Instructor) error
	Update(ctx context.Context, instructor *models.Instructor) error
	Delete(ctx context.Context, id string) error
}

type studentEmailChecker interface {
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
}

// CreateInstructorRequest is the payload for instructor registration.
type CreateInstructorRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"required,email"`
	BranchID string `json:"branch_id,omitempty"`
}

// UpdateInstructorRequest is a partial instructor patch.
type UpdateInstructorRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=2,max=120"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// InstructorService manages instructors. Deleting one detaches their
// courses rather than removing them.
type InstructorService struct {
	instructors instructorStore
	students    studentEmailChecker
	branches    branchChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewInstructorService constructs InstructorService.
func NewInstructorService(instructors instructorStore, students studentEmailChecker, branches branchChecker, validate *validator.Validate, logger *zap.Logger) *InstructorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructorService{
		instructors: instructors,
		students:    students,
		branches:    branches,
		validator:   validate,
		logger:      logger,
	}
}

// List returns the instructors visible to the acting user.
func (s *InstructorService) List(ctx context.Context, actor models.AuthUser) ([]models.Instructor, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, err
	}
	instructors, err := s.instructors.List(ctx, sc.BranchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	return instructors, nil
}

// Get returns a single instructor.
func (s *InstructorService) Get(ctx context.Context, id string, actor models.AuthUser) (*models.Instructor, error) {
	instructor, err := s.instructors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("instructor with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if err := scope.RequireAccess(actor, instructor.BranchID); err != nil {
		return nil, err
	}
	return instructor, nil
}

// Create registers an instructor in the acting user's branch.
func (s *InstructorService) Create(ctx context.Context, req CreateInstructorRequest, actor models.AuthUser) (*models.Instructor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}

	branchID, err := scope.ResolveForWrite(req.BranchID, actor)
	if err != nil {
		return nil, err
	}
	if exists, err := s.branches.Exists(ctx, branchID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify branch")
	} else if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", branchID))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.requireEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	instructor := &models.Instructor{
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		BranchID:  branchID,
		CreatedBy: &actor.ID,
	}
	if err := s.instructors.Create(ctx, instructor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instructor")
	}

	s.logger.Info("instructor created", zap.String("instructor_id", instructor.ID), zap.String("branch_id", branchID))
	return instructor, nil
}

// Update patches an instructor record.
func (s *InstructorService) Update(ctx context.Context, id string, req UpdateInstructorRequest, actor models.AuthUser) (*models.Instructor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}

	instructor, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		instructor.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != instructor.Email {
			if err := s.requireEmailFree(ctx, email, id); err != nil {
				return nil, err
			}
			instructor.Email = email
		}
	}

	if err := s.instructors.Update(ctx, instructor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instructor")
	}
	return instructor, nil
}

// Delete removes an instructor. Courses keep running with no instructor
// assigned.
func (s *InstructorService) Delete(ctx context.Context, id string, actor models.AuthUser) error {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return err
	}
	if err := s.instructors.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete instructor")
	}
	s.logger.Info("instructor removed", zap.String("instructor_id", id))
	return nil
}

func (s *InstructorService) requireEmailFree(ctx context.Context, email, excludeInstructorID string) error {
	taken, err := s.instructors.EmailExists(ctx, email, excludeInstructorID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if !taken {
		taken, err = s.students.EmailExists(ctx, email, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already in use", email))
	}
	return nil
}
