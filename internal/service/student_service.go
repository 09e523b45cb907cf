package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/scope"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, branchID string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type instructorEmailChecker interface {
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
}

type studentEnrollmentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// CreateStudentRequest is the payload for student registration.
type CreateStudentRequest struct {
	Name       string     `json:"name" validate:"required,min=2,max=120"`
	Email      string     `json:"email" validate:"required,email"`
	EnrolledAt *time.Time `json:"enrolled_at,omitempty"`
	BranchID   string     `json:"branch_id,omitempty"`
}

// UpdateStudentRequest is a partial student patch.
type UpdateStudentRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=2,max=120"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// StudentService manages the student roster of each branch. Email
// uniqueness spans students and instructors so one person cannot occupy
// both seats of the same inbox.
type StudentService struct {
	students    studentStore
	instructors instructorEmailChecker
	branches    branchChecker
	enrollments studentEnrollmentLister
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(students studentStore, instructors instructorEmailChecker, branches branchChecker, enrollments studentEnrollmentLister, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		students:    students,
		instructors: instructors,
		branches:    branches,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
	}
}

// List returns the students visible to the acting user.
func (s *StudentService) List(ctx context.Context, actor models.AuthUser) ([]models.Student, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, err
	}
	students, err := s.students.List(ctx, sc.BranchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string, actor models.AuthUser) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := scope.RequireAccess(actor, student.BranchID); err != nil {
		return nil, err
	}
	return student, nil
}

// Create registers a student in the acting user's branch.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest, actor models.AuthUser) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
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

	student := &models.Student{
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		BranchID:  branchID,
		CreatedBy: &actor.ID,
	}
	if req.EnrolledAt != nil {
		student.EnrolledAt = req.EnrolledAt.UTC()
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("branch_id", branchID))
	return student, nil
}

// Update patches a student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest, actor models.AuthUser) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		student.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != student.Email {
			if err := s.requireEmailFree(ctx, email, id); err != nil {
				return nil, err
			}
			student.Email = email
		}
	}

	if err := s.students.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student and, through the store's cascade, the
// enrollment rows referencing them.
func (s *StudentService) Delete(ctx context.Context, id string, actor models.AuthUser) error {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return err
	}
	if err := s.students.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student removed", zap.String("student_id", id))
	return nil
}

// Profile returns the student together with their enrollments grouped by
// derived state.
func (s *StudentService) Profile(ctx context.Context, id string, actor models.AuthUser) (*models.StudentProfile, error) {
	student, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.enrollments.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student enrollments")
	}

	profile := &models.StudentProfile{Student: *student}
	for _, entry := range enrollments {
		switch entry.Enrollment.State() {
		case models.EnrollmentStateCompleted:
			profile.CompletedEnrollments = append(profile.CompletedEnrollments, entry)
		case models.EnrollmentStateCanceled:
			profile.CanceledEnrollments = append(profile.CanceledEnrollments, entry)
		default:
			profile.ActiveEnrollments = append(profile.ActiveEnrollments, entry)
		}
	}
	return profile, nil
}

func (s *StudentService) requireEmailFree(ctx context.Context, email, excludeStudentID string) error {
	taken, err := s.students.EmailExists(ctx, email, excludeStudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if !taken {
		taken, err = s.instructors.EmailExists(ctx, email, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already in use", email))
	}
	return nil
}
