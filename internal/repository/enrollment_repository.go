package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/atlasedu/academy-api/internal/models"
)

const enrollmentColumns = `id, student_id, course_id, branch_id, enrolled_date, completed, completion_date, canceled_at, created_by, created_at, updated_at`

const enrollmentDetailQuery = `SELECT e.id, e.student_id, e.course_id, e.branch_id, e.enrolled_date, e.completed, e.completion_date, e.canceled_at, e.created_by, e.created_at, e.updated_at,
        s.name AS student_name, s.email AS student_email, c.title AS course_title
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id`

// EnrollmentTx is the unit of work the enrollment workflows run in. Every
// seat reservation or release must happen through the same tx as the
// enrollment row change it pairs with; the transaction commits or rolls back
// both together.
type EnrollmentTx interface {
	FindStudent(ctx context.Context, id string) (*models.Student, error)
	// FindCourseForUpdate locks the course row so two concurrent enrollments
	// cannot both observe the last free seat.
	FindCourseForUpdate(ctx context.Context, id string) (*models.Course, error)
	FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	FindByPair(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Insert(ctx context.Context, enrollment *models.Enrollment) error
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	ReserveSeat(ctx context.Context, courseID string) error
	ReleaseSeat(ctx context.Context, courseID string) error
	ActiveCountByCourse(ctx context.Context, courseID string) (int, error)
	RecordEvent(ctx context.Context, event *models.EnrollmentEvent) error
}

// EnrollmentRepository handles persistence of enrollments and coordinates
// the transactions that keep the seat ledger consistent with them.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// maxTxAttempts bounds deadlock retries. Enroll locks the course row before
// the pair row while the row-first flows lock in the opposite order, so two
// concurrent mutations of one pair can deadlock; Postgres aborts one victim
// and a fresh attempt re-reads everything under new locks.
const maxTxAttempts = 3

// WithTx runs fn inside a database transaction. Any error (or panic) rolls
// back everything fn did; the effects become visible only on commit. A
// transaction aborted as a deadlock victim is retried from scratch.
func (r *EnrollmentRepository) WithTx(ctx context.Context, fn func(tx EnrollmentTx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if !isDeadlock(err) {
			return err
		}
	}
	return err
}

func (r *EnrollmentRepository) runTx(ctx context.Context, fn func(tx EnrollmentTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&enrollmentTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment transaction: %w", err)
	}
	return nil
}

// isDeadlock reports whether err is a Postgres deadlock abort (SQLSTATE 40P01).
func isDeadlock(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40P01"
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with its student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	detail.State = detail.Enrollment.State()
	return &detail, nil
}

// List returns all enrollments, branch-filtered at the query level when
// branchID is set, newest enrollment first.
func (r *EnrollmentRepository) List(ctx context.Context, branchID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery
	var args []interface{}
	if branchID != "" {
		query += ` WHERE e.branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY e.enrolled_date DESC`
	return r.selectDetails(ctx, query, args...)
}

// ListActive returns enrollments that currently hold a seat.
func (r *EnrollmentRepository) ListActive(ctx context.Context, branchID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.completed = FALSE AND e.canceled_at IS NULL`
	var args []interface{}
	if branchID != "" {
		query += ` AND e.branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY e.enrolled_date DESC`
	return r.selectDetails(ctx, query, args...)
}

// ListActiveByCourse returns the course roster ordered by enrollment date.
func (r *EnrollmentRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.course_id = $1 AND e.completed = FALSE AND e.canceled_at IS NULL ORDER BY e.enrolled_date ASC`
	return r.selectDetails(ctx, query, courseID)
}

// ListByStudent returns every enrollment row for the student, newest first.
// Each pair holds a single row, so this is the full per-course history.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.student_id = $1 ORDER BY e.enrolled_date DESC`
	return r.selectDetails(ctx, query, studentID)
}

// ActiveCountByCourse counts rows holding a seat for the course.
func (r *EnrollmentRepository) ActiveCountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND completed = FALSE AND canceled_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// ListEvents returns the audit trail for one enrollment, oldest first.
func (r *EnrollmentRepository) ListEvents(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	const query = `SELECT id, enrollment_id, student_id, course_id, action, actor_id, created_at FROM enrollment_events WHERE enrollment_id = $1 ORDER BY created_at ASC`
	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment events: %w", err)
	}
	return events, nil
}

func (r *EnrollmentRepository) selectDetails(ctx context.Context, query string, args ...interface{}) ([]models.EnrollmentDetail, error) {
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	for i := range details {
		details[i].State = details[i].Enrollment.State()
	}
	return details, nil
}

type enrollmentTx struct {
	tx *sqlx.Tx
}

func (t *enrollmentTx) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, name, email, enrolled_at, branch_id, created_by, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := t.tx.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

func (t *enrollmentTx) FindCourseForUpdate(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, description, start_date, end_date, capacity, seats_available, instructor_id, branch_id, created_by, created_at, updated_at FROM courses WHERE id = $1 FOR UPDATE`
	var course models.Course
	if err := t.tx.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

func (t *enrollmentTx) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := t.tx.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *enrollmentTx) FindByPair(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 AND course_id = $2 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := t.tx.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *enrollmentTx) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledDate.IsZero() {
		enrollment.EnrolledDate = now
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, course_id, branch_id, enrolled_date, completed, completion_date, canceled_at, created_by, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :branch_id, :enrolled_date, :completed, :completion_date, :canceled_at, :created_by, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (t *enrollmentTx) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET student_id = :student_id, course_id = :course_id, branch_id = :branch_id, enrolled_date = :enrolled_date,
        completed = :completed, completion_date = :completion_date, canceled_at = :canceled_at, updated_at = :updated_at WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

func (t *enrollmentTx) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// ReserveSeat debits one seat. Callers must hold the course row lock and
// have checked seats_available > 0; the WHERE guard is the backstop that
// keeps the ledger from ever going negative.
func (t *enrollmentTx) ReserveSeat(ctx context.Context, courseID string) error {
	const query = `UPDATE courses SET seats_available = seats_available - 1, updated_at = $2 WHERE id = $1 AND seats_available > 0`
	res, err := t.tx.ExecContext(ctx, query, courseID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve seat result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("reserve seat: no seats available for course %s", courseID)
	}
	return nil
}

// ReleaseSeat credits one seat back. The increment is intentionally not
// clamped to capacity; capacity edits re-derive the ledger through
// CourseRepository.RecalculateSeats, which corrects any transient excess.
func (t *enrollmentTx) ReleaseSeat(ctx context.Context, courseID string) error {
	const query = `UPDATE courses SET seats_available = seats_available + 1, updated_at = $2 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, courseID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

func (t *enrollmentTx) ActiveCountByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND completed = FALSE AND canceled_at IS NULL`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

func (t *enrollmentTx) RecordEvent(ctx context.Context, event *models.EnrollmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_events (id, enrollment_id, student_id, course_id, action, actor_id, created_at)
        VALUES (:id, :enrollment_id, :student_id, :course_id, :action, :actor_id, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("record enrollment event: %w", err)
	}
	return nil
}
