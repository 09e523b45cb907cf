package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/scope"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
	"github.com/atlasedu/academy-api/pkg/export"
)

type courseStore interface {
	List(ctx context.Context, branchID string) ([]models.CourseDetail, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	RecalculateSeats(ctx context.Context, id string, capacity int) (seats, active int, err error)
	Delete(ctx context.Context, id string) error
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

type branchChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type activeEnrollmentCounter interface {
	ActiveCountByCourse(ctx context.Context, courseID string) (int, error)
}

// CreateCourseRequest is the payload for course creation.
type CreateCourseRequest struct {
	Title        string    `json:"title" validate:"required,min=2,max=200"`
	Description  string    `json:"description" validate:"max=2000"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
	Capacity     int       `json:"capacity" validate:"required,gt=0"`
	InstructorID *string   `json:"instructor_id,omitempty"`
	BranchID     string    `json:"branch_id,omitempty"`
}

// UpdateCourseRequest is a partial course patch.
type UpdateCourseRequest struct {
	Title           *string    `json:"title,omitempty" validate:"omitempty,min=2,max=200"`
	Description     *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Capacity        *int       `json:"capacity,omitempty" validate:"omitempty,gt=0"`
	InstructorID    *string    `json:"instructor_id,omitempty"`
	ClearInstructor bool       `json:"clear_instructor,omitempty"`
	BranchID        *string    `json:"branch_id,omitempty"`
}

// CourseService manages the course catalog and the capacity side of the
// seat ledger that is not driven by individual enrollments.
type CourseService struct {
	courses     courseStore
	instructors instructorReader
	branches    branchChecker
	enrollments activeEnrollmentCounter
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseStore, instructors instructorReader, branches branchChecker, enrollments activeEnrollmentCounter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		courses:     courses,
		instructors: instructors,
		branches:    branches,
		enrollments: enrollments,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// List returns the courses visible to the acting user, optionally filtered
// by derived status.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter, actor models.AuthUser) ([]models.CourseDetail, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, err
	}
	courses, err := s.courses.List(ctx, sc.BranchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if filter.Status == "" {
		return courses, nil
	}

	now := time.Now().UTC()
	filtered := make([]models.CourseDetail, 0, len(courses))
	for _, course := range courses {
		if course.Status(now) == filter.Status {
			filtered = append(filtered, course)
		}
	}
	return filtered, nil
}

// Get returns a course with its instructor and branch names.
func (s *CourseService) Get(ctx context.Context, id string, actor models.AuthUser) (*models.CourseDetail, error) {
	detail, err := s.courses.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := scope.RequireAccess(actor, detail.BranchID); err != nil {
		return nil, err
	}
	return detail, nil
}

// Create registers a course. Seats start equal to capacity.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest, actor models.AuthUser) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "start date must be before end date")
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
	if req.InstructorID != nil {
		if err := s.requireInstructorInBranch(ctx, *req.InstructorID, branchID); err != nil {
			return nil, err
		}
	}

	course := &models.Course{
		Title:          req.Title,
		Description:    req.Description,
		StartDate:      req.StartDate.UTC(),
		EndDate:        req.EndDate.UTC(),
		Capacity:       req.Capacity,
		SeatsAvailable: req.Capacity,
		InstructorID:   req.InstructorID,
		BranchID:       branchID,
		CreatedBy:      &actor.ID,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("branch_id", branchID))
	return s.courses.FindDetailByID(ctx, course.ID)
}

// Update patches a course. Lowering capacity reconciles seatsAvailable
// against the live active-enrollment count; pushing it below that count is
// a warning, not an error.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest, actor models.AuthUser) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := scope.RequireAccess(actor, course.BranchID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.StartDate != nil {
		course.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		course.EndDate = req.EndDate.UTC()
	}
	if !course.StartDate.Before(course.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "start date must be before end date")
	}

	if req.BranchID != nil && *req.BranchID != course.BranchID {
		if actor.Role != models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can move a course between branches")
		}
		if exists, err := s.branches.Exists(ctx, *req.BranchID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify branch")
		} else if !exists {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("branch with id %s not found", *req.BranchID))
		}
		course.BranchID = *req.BranchID
	}

	if req.ClearInstructor {
		course.InstructorID = nil
	} else if req.InstructorID != nil {
		if course.Ended(now) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "cannot reassign instructor on an ended course")
		}
		if err := s.requireInstructorInBranch(ctx, *req.InstructorID, course.BranchID); err != nil {
			return nil, err
		}
		course.InstructorID = req.InstructorID
	}

	if err := s.courses.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	if req.Capacity != nil && *req.Capacity != course.Capacity {
		seats, active, err := s.courses.RecalculateSeats(ctx, id, *req.Capacity)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate seats")
		}
		if active > *req.Capacity {
			s.logger.Warn("capacity lowered below active enrollment count",
				zap.String("course_id", id),
				zap.Int("capacity", *req.Capacity),
				zap.Int("active_enrollments", active),
			)
		}
		s.logger.Info("course seats recalculated",
			zap.String("course_id", id),
			zap.Int("capacity", *req.Capacity),
			zap.Int("seats_available", seats),
		)
	}

	s.invalidateRoster(ctx, id)
	return s.courses.FindDetailByID(ctx, id)
}

// Delete removes a course. Blocked while any enrollment still holds a seat.
func (s *CourseService) Delete(ctx context.Context, id string, actor models.AuthUser) error {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course with id %s not found", id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := scope.RequireAccess(actor, course.BranchID); err != nil {
		return err
	}

	active, err := s.enrollments.ActiveCountByCourse(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if active > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course has active enrollments")
	}

	if err := s.courses.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateRoster(ctx, id)
	s.logger.Info("course removed", zap.String("course_id", id))
	return nil
}

// RosterTable shapes a course roster for the CSV and PDF exporters.
func (s *CourseService) RosterTable(roster []models.EnrollmentDetail) export.Table {
	table := export.Table{
		Headers: []string{"Student", "Email", "Enrolled", "Branch"},
		Rows:    make([][]string, 0, len(roster)),
	}
	for _, entry := range roster {
		table.Rows = append(table.Rows, []string{
			entry.StudentName,
			entry.StudentEmail,
			entry.EnrolledDate.Format("2006-01-02"),
			entry.BranchID,
		})
	}
	return table
}

func (s *CourseService) requireInstructorInBranch(ctx context.Context, instructorID, branchID string) error {
	instructor, err := s.instructors.FindByID(ctx, instructorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("instructor with id %s not found", instructorID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if instructor.BranchID != branchID {
		return appErrors.Clone(appErrors.ErrConflict, "instructor belongs to a different branch")
	}
	return nil
}

func (s *CourseService) invalidateRoster(ctx context.Context, courseID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, rosterCacheKey(courseID)); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.String("course_id", courseID), zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, "enrollments:*"); err != nil {
		s.logger.Warn("failed to invalidate enrollment cache", zap.Error(err))
	}
}
