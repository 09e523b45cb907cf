package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlasedu/academy-api/internal/models"
)

const courseColumns = `id, title, description, start_date, end_date, capacity, seats_available, instructor_id, branch_id, created_by, created_at, updated_at`

const courseDetailQuery = `SELECT c.id, c.title, c.description, c.start_date, c.end_date, c.capacity, c.seats_available, c.instructor_id, c.branch_id, c.created_by, c.created_at, c.updated_at,
        i.name AS instructor_name, b.name AS branch_name
        FROM courses c
        LEFT JOIN instructors i ON i.id = c.instructor_id
        JOIN branches b ON b.id = c.branch_id`

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses ordered by start date, branch-filtered when branchID is set.
func (r *CourseRepository) List(ctx context.Context, branchID string) ([]models.CourseDetail, error) {
	query := courseDetailQuery
	var args []interface{}
	if branchID != "" {
		query += ` WHERE c.branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY c.start_date ASC`
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with instructor and branch names.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	query := courseDetailQuery + ` WHERE c.id = $1`
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, description, start_date, end_date, capacity, seats_available, instructor_id, branch_id, created_by, created_at, updated_at)
        VALUES (:id, :title, :description, :start_date, :end_date, :capacity, :seats_available, :instructor_id, :branch_id, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists non-ledger course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, start_date = :start_date, end_date = :end_date,
        instructor_id = :instructor_id, branch_id = :branch_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// RecalculateSeats applies a capacity edit under the course row lock and
// reconciles seats_available against the live active-enrollment count:
// seats = max(0, capacity - active). Returns the resulting seat count and
// the active count so callers can log the clamp warning.
func (r *CourseRepository) RecalculateSeats(ctx context.Context, id string, capacity int) (seats, active int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin capacity transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT id FROM courses WHERE id = $1 FOR UPDATE`
	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, lockQuery, id); err != nil {
		return 0, 0, err
	}

	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND completed = FALSE AND canceled_at IS NULL`
	if err = tx.GetContext(ctx, &active, countQuery, id); err != nil {
		return 0, 0, fmt.Errorf("count active enrollments: %w", err)
	}

	seats = capacity - active
	if seats < 0 {
		seats = 0
	}

	const updateQuery = `UPDATE courses SET capacity = $2, seats_available = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateQuery, id, capacity, seats, time.Now().UTC()); err != nil {
		return 0, 0, fmt.Errorf("update course capacity: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit capacity transaction: %w", err)
	}
	return seats, active, nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}
