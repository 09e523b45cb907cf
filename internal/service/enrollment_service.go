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
	"github.com/atlasedu/academy-api/internal/repository"
	"github.com/atlasedu/academy-api/internal/scope"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type enrollmentStore interface {
	WithTx(ctx context.Context, fn func(tx repository.EnrollmentTx) error) error
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, branchID string) ([]models.EnrollmentDetail, error)
	ListActive(ctx context.Context, branchID string) ([]models.EnrollmentDetail, error)
	ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListEvents(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollRequest describes an enrollment creation request.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// CompleteRequest identifies the enrollment to mark completed.
type CompleteRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
}

// UnenrollRequest identifies the enrollment to cancel.
type UnenrollRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
}

// UpdateEnrollmentRequest is the superadmin-only direct field patch. Clear
// flags distinguish "set to null" from "leave untouched".
type UpdateEnrollmentRequest struct {
	StudentID           *string    `json:"student_id,omitempty"`
	CourseID            *string    `json:"course_id,omitempty"`
	EnrolledDate        *time.Time `json:"enrolled_date,omitempty"`
	Completed           *bool      `json:"completed,omitempty"`
	CompletionDate      *time.Time `json:"completion_date,omitempty"`
	ClearCompletionDate bool       `json:"clear_completion_date,omitempty"`
	CanceledAt          *time.Time `json:"canceled_at,omitempty"`
	ClearCanceledAt     bool       `json:"clear_canceled_at,omitempty"`
}

// EnrollmentService governs the enrollment lifecycle: the state machine,
// the seat ledger debits/credits that pair with it, and the branch-scoped
// read surface. Every mutation runs inside a single store transaction.
type EnrollmentService struct {
	store     enrollmentStore
	courses   courseReader
	students  studentReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(store enrollmentStore, courses courseReader, students studentReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{store: store, courses: courses, students: students, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Enroll registers a student to a course, reusing the pair's existing row
// when the previous enrollment was canceled.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest, actor models.AuthUser) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	var enrollmentID string
	var reEnrolled bool
	err := s.store.WithTx(ctx, func(tx repository.EnrollmentTx) error {
		student, err := tx.FindStudent(ctx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student with id %s not found", req.StudentID))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}

		course, err := tx.FindCourseForUpdate(ctx, req.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course with id %s not found", req.CourseID))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}

		branchID, err := scope.ResolveEnrollmentBranch(student, course, actor)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if course.Ended(now) {
			return appErrors.Clone(appErrors.ErrConflict, "course already completed")
		}

		existing, err := tx.FindByPair(ctx, req.StudentID, req.CourseID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing enrollment")
		}

		if existing != nil {
			if err := scope.RequireAccess(actor, existing.BranchID); err != nil {
				return err
			}
			switch existing.State() {
			case models.EnrollmentStateActive:
				return appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
			case models.EnrollmentStateCompleted:
				return appErrors.Clone(appErrors.ErrConflict, "student has already completed this course")
			}

			if course.SeatsAvailable <= 0 {
				return s.seatConflict()
			}
			if err := tx.ReserveSeat(ctx, course.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
			}

			existing.CanceledAt = nil
			existing.CompletionDate = nil
			existing.Completed = false
			existing.EnrolledDate = now
			existing.BranchID = branchID
			existing.CreatedBy = &actor.ID
			if err := tx.Update(ctx, existing); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
			}
			enrollmentID = existing.ID
			reEnrolled = true
			return tx.RecordEvent(ctx, &models.EnrollmentEvent{
				EnrollmentID: existing.ID,
				StudentID:    existing.StudentID,
				CourseID:     existing.CourseID,
				Action:       models.EnrollmentActionReEnrolled,
				ActorID:      &actor.ID,
			})
		}

		if course.SeatsAvailable <= 0 {
			return s.seatConflict()
		}
		if err := tx.ReserveSeat(ctx, course.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
		}

		enrollment := &models.Enrollment{
			StudentID:    req.StudentID,
			CourseID:     req.CourseID,
			BranchID:     branchID,
			EnrolledDate: now,
			CreatedBy:    &actor.ID,
		}
		if err := tx.Insert(ctx, enrollment); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		enrollmentID = enrollment.ID
		return tx.RecordEvent(ctx, &models.EnrollmentEvent{
			EnrollmentID: enrollment.ID,
			StudentID:    enrollment.StudentID,
			CourseID:     enrollment.CourseID,
			Action:       models.EnrollmentActionEnrolled,
			ActorID:      &actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCaches(ctx)
	if reEnrolled {
		s.metrics.RecordEnrollmentAction(models.EnrollmentActionReEnrolled)
	} else {
		s.metrics.RecordEnrollmentAction(models.EnrollmentActionEnrolled)
	}
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollmentID),
		zap.String("student_id", req.StudentID),
		zap.String("course_id", req.CourseID),
		zap.Bool("re_enrolled", reEnrolled),
	)
	return s.detail(ctx, enrollmentID)
}

// Complete marks an active enrollment completed and frees its seat. A
// completed course no longer counts against capacity; completing an already
// completed enrollment is a no-op.
func (s *EnrollmentService) Complete(ctx context.Context, req CompleteRequest, actor models.AuthUser) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}

	var touched bool
	err := s.store.WithTx(ctx, func(tx repository.EnrollmentTx) error {
		record, err := s.lockEnrollment(ctx, tx, req.EnrollmentID, actor)
		if err != nil {
			return err
		}
		if record.CanceledAt != nil {
			return appErrors.Clone(appErrors.ErrConflict, "cannot complete a canceled enrollment")
		}
		if record.Completed {
			return nil
		}

		now := time.Now().UTC()
		record.Completed = true
		record.CompletionDate = &now
		if err := tx.Update(ctx, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
		}
		if err := s.releaseSeat(ctx, tx, record.CourseID); err != nil {
			return err
		}
		touched = true
		return tx.RecordEvent(ctx, &models.EnrollmentEvent{
			EnrollmentID: record.ID,
			StudentID:    record.StudentID,
			CourseID:     record.CourseID,
			Action:       models.EnrollmentActionCompleted,
			ActorID:      &actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	if touched {
		s.invalidateCaches(ctx)
		s.metrics.RecordEnrollmentAction(models.EnrollmentActionCompleted)
		s.logger.Info("enrollment completed", zap.String("enrollment_id", req.EnrollmentID))
	}
	return s.detail(ctx, req.EnrollmentID)
}

// Unenroll cancels an active enrollment and credits its seat back.
// Unenrolling an already canceled enrollment is a no-op.
func (s *EnrollmentService) Unenroll(ctx context.Context, req UnenrollRequest, actor models.AuthUser) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unenroll payload")
	}

	var touched bool
	err := s.store.WithTx(ctx, func(tx repository.EnrollmentTx) error {
		record, err := s.lockEnrollment(ctx, tx, req.EnrollmentID, actor)
		if err != nil {
			return err
		}
		if record.CanceledAt != nil {
			return nil
		}
		if record.Completed {
			return appErrors.Clone(appErrors.ErrConflict, "cannot unenroll a completed enrollment")
		}

		now := time.Now().UTC()
		record.CanceledAt = &now
		if err := tx.Update(ctx, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
		}
		if err := s.releaseSeat(ctx, tx, record.CourseID); err != nil {
			return err
		}
		touched = true
		return tx.RecordEvent(ctx, &models.EnrollmentEvent{
			EnrollmentID: record.ID,
			StudentID:    record.StudentID,
			CourseID:     record.CourseID,
			Action:       models.EnrollmentActionCanceled,
			ActorID:      &actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	if touched {
		s.invalidateCaches(ctx)
		s.metrics.RecordEnrollmentAction(models.EnrollmentActionCanceled)
		s.logger.Info("enrollment canceled", zap.String("enrollment_id", req.EnrollmentID))
	}
	return s.detail(ctx, req.EnrollmentID)
}

// Update applies a direct field patch. Reserved for superadmins; ledger
// effects are re-derived when the patch moves the row in or out of the
// active state or across courses.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest, actor models.AuthUser) (*models.EnrollmentDetail, error) {
	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can update enrollments directly")
	}

	err := s.store.WithTx(ctx, func(tx repository.EnrollmentTx) error {
		record, err := s.lockEnrollment(ctx, tx, id, actor)
		if err != nil {
			return err
		}

		wasActive := record.Active()
		oldCourseID := record.CourseID

		if req.StudentID != nil && *req.StudentID != record.StudentID {
			student, err := tx.FindStudent(ctx, *req.StudentID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student with id %s not found", *req.StudentID))
				}
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
			}
			course, err := tx.FindCourseForUpdate(ctx, record.CourseID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			}
			branchID, err := scope.ResolveEnrollmentBranch(student, course, actor)
			if err != nil {
				return err
			}
			record.StudentID = student.ID
			record.BranchID = branchID
		}

		if req.CourseID != nil && *req.CourseID != record.CourseID {
			course, err := tx.FindCourseForUpdate(ctx, *req.CourseID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course with id %s not found", *req.CourseID))
				}
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			}
			student, err := tx.FindStudent(ctx, record.StudentID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
			}
			branchID, err := scope.ResolveEnrollmentBranch(student, course, actor)
			if err != nil {
				return err
			}
			record.CourseID = course.ID
			record.BranchID = branchID
		}

		if req.EnrolledDate != nil {
			record.EnrolledDate = req.EnrolledDate.UTC()
		}
		if req.Completed != nil {
			record.Completed = *req.Completed
		}
		if req.ClearCompletionDate {
			record.CompletionDate = nil
		} else if req.CompletionDate != nil {
			ts := req.CompletionDate.UTC()
			record.CompletionDate = &ts
		}
		if req.ClearCanceledAt {
			record.CanceledAt = nil
		} else if req.CanceledAt != nil {
			ts := req.CanceledAt.UTC()
			record.CanceledAt = &ts
		}

		nowActive := record.Active()
		if wasActive && (!nowActive || record.CourseID != oldCourseID) {
			if err := s.releaseSeat(ctx, tx, oldCourseID); err != nil {
				return err
			}
		}
		if nowActive && (!wasActive || record.CourseID != oldCourseID) {
			course, err := tx.FindCourseForUpdate(ctx, record.CourseID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			}
			if course.SeatsAvailable <= 0 {
				return s.seatConflict()
			}
			if err := tx.ReserveSeat(ctx, record.CourseID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
			}
		}

		if err := tx.Update(ctx, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
		}
		return tx.RecordEvent(ctx, &models.EnrollmentEvent{
			EnrollmentID: record.ID,
			StudentID:    record.StudentID,
			CourseID:     record.CourseID,
			Action:       models.EnrollmentActionUpdated,
			ActorID:      &actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCaches(ctx)
	s.metrics.RecordEnrollmentAction(models.EnrollmentActionUpdated)
	s.logger.Info("enrollment updated", zap.String("enrollment_id", id))
	return s.detail(ctx, id)
}

// Delete removes the enrollment row. The seat is credited back only when
// the row was active at the time of deletion.
func (s *EnrollmentService) Delete(ctx context.Context, id string, actor models.AuthUser) error {
	err := s.store.WithTx(ctx, func(tx repository.EnrollmentTx) error {
		record, err := s.lockEnrollment(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if record.Active() {
			if err := s.releaseSeat(ctx, tx, record.CourseID); err != nil {
				return err
			}
		}
		if err := tx.Delete(ctx, record.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
		}
		return tx.RecordEvent(ctx, &models.EnrollmentEvent{
			EnrollmentID: record.ID,
			StudentID:    record.StudentID,
			CourseID:     record.CourseID,
			Action:       models.EnrollmentActionDeleted,
			ActorID:      &actor.ID,
		})
	})
	if err != nil {
		return err
	}

	s.invalidateCaches(ctx)
	s.metrics.RecordEnrollmentAction(models.EnrollmentActionDeleted)
	s.logger.Info("enrollment removed", zap.String("enrollment_id", id))
	return nil
}

// List returns all enrollments visible to the acting user.
func (s *EnrollmentService) List(ctx context.Context, actor models.AuthUser) ([]models.EnrollmentDetail, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, err
	}
	details, err := s.store.List(ctx, sc.BranchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return details, nil
}

// Get returns a single enrollment with its student and course context.
func (s *EnrollmentService) Get(ctx context.Context, id string, actor models.AuthUser) (*models.EnrollmentDetail, error) {
	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := scope.RequireAccess(actor, detail.BranchID); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListActive returns enrollments currently holding a seat, scoped to the
// acting user's branch, newest first.
func (s *EnrollmentService) ListActive(ctx context.Context, actor models.AuthUser) ([]models.EnrollmentDetail, error) {
	sc, err := scope.Resolve(actor)
	if err != nil {
		return nil, err
	}

	key := activeCacheKey(sc.BranchID)
	var cached []models.EnrollmentDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	details, err := s.store.ListActive(ctx, sc.BranchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active enrollments")
	}
	_ = s.cache.Set(ctx, key, details, 0)
	return details, nil
}

// Roster returns the active enrollments of a course ordered by enrollment
// date. The course must be visible to the acting user.
func (s *EnrollmentService) Roster(ctx context.Context, courseID string, actor models.AuthUser) ([]models.EnrollmentDetail, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course with id %s not found", courseID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := scope.RequireAccess(actor, course.BranchID); err != nil {
		return nil, err
	}

	key := rosterCacheKey(courseID)
	var cached []models.EnrollmentDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	details, err := s.store.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}
	_ = s.cache.Set(ctx, key, details, 0)
	return details, nil
}

// History returns every enrollment row for the student, newest first. Each
// (student, course) pair keeps one row for life, so consumers needing the
// full cancel/re-enroll trail should read Events instead.
func (s *EnrollmentService) History(ctx context.Context, studentID string, actor models.AuthUser) ([]models.EnrollmentDetail, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student with id %s not found", studentID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := scope.RequireAccess(actor, student.BranchID); err != nil {
		return nil, err
	}

	details, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student history")
	}
	return details, nil
}

// Events returns the lifecycle audit trail for an enrollment.
func (s *EnrollmentService) Events(ctx context.Context, enrollmentID string, actor models.AuthUser) ([]models.EnrollmentEvent, error) {
	if _, err := s.Get(ctx, enrollmentID, actor); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment events")
	}
	return events, nil
}

// lockEnrollment loads the row under the tx lock and enforces branch scope.
func (s *EnrollmentService) lockEnrollment(ctx context.Context, tx repository.EnrollmentTx, id string, actor models.AuthUser) (*models.Enrollment, error) {
	record, err := tx.FindEnrollment(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment with id %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := scope.RequireAccess(actor, record.BranchID); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *EnrollmentService) detail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// releaseSeat locks the course, credits the seat back, and warns when the
// credit lands above capacity. That can only happen after capacity was
// lowered while seats were still reserved under the old, higher value.
func (s *EnrollmentService) releaseSeat(ctx context.Context, tx repository.EnrollmentTx, courseID string) error {
	course, err := tx.FindCourseForUpdate(ctx, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := tx.ReleaseSeat(ctx, courseID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
	}
	if course.SeatsAvailable+1 > course.Capacity {
		s.logger.Warn("seat release exceeds course capacity",
			zap.String("course_id", courseID),
			zap.Int("capacity", course.Capacity),
			zap.Int("seats_available", course.SeatsAvailable+1),
		)
	}
	return nil
}

func (s *EnrollmentService) seatConflict() error {
	s.metrics.RecordSeatConflict()
	return appErrors.Clone(appErrors.ErrConflict, "course has no available seats")
}

func (s *EnrollmentService) invalidateCaches(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, "roster:*"); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
	if err := s.cache.Invalidate(ctx, "enrollments:*"); err != nil {
		s.logger.Warn("failed to invalidate enrollment cache", zap.Error(err))
	}
}

func rosterCacheKey(courseID string) string {
	return "roster:" + courseID
}

func activeCacheKey(branchID string) string {
	if branchID == "" {
		return "enrollments:active:all"
	}
	return "enrollments:active:" + branchID
}
