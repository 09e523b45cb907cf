package models

import "time"

// EnrollmentState is the three-way state derived from the completed and
// canceled_at columns. It is never stored as its own column.
type EnrollmentState string

const (
	EnrollmentStateActive    EnrollmentState = "ACTIVE"
	EnrollmentStateCompleted EnrollmentState = "COMPLETED"
	EnrollmentStateCanceled  EnrollmentState = "CANCELED"
)

// Enrollment is the single row per (student, course) pair. Cancellation and
// re-enrollment reuse the row rather than inserting a new one, so the pair
// keeps one identity for its whole lifetime.
type Enrollment struct {
	ID             string     `db:"id" json:"id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	CourseID       string     `db:"course_id" json:"course_id"`
	BranchID       string     `db:"branch_id" json:"branch_id"`
	EnrolledDate   time.Time  `db:"enrolled_date" json:"enrolled_date"`
	Completed      bool       `db:"completed" json:"completed"`
	CompletionDate *time.Time `db:"completion_date" json:"completion_date,omitempty"`
	CanceledAt     *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`
	CreatedBy      *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// State derives the logical lifecycle state. Completed wins over canceled:
// a completed row is terminal regardless of stale cancellation data.
func (e *Enrollment) State() EnrollmentState {
	if e.Completed {
		return EnrollmentStateCompleted
	}
	if e.CanceledAt != nil {
		return EnrollmentStateCanceled
	}
	return EnrollmentStateActive
}

// Active reports whether the row currently holds a seat.
func (e *Enrollment) Active() bool {
	return e.State() == EnrollmentStateActive
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string          `db:"student_name" json:"student_name"`
	StudentEmail string          `db:"student_email" json:"student_email"`
	CourseTitle  string          `db:"course_title" json:"course_title"`
	State        EnrollmentState `db:"-" json:"state"`
}

// EnrollmentEvent records one lifecycle transition. The enrollment row
// overwrites its own cancellation data on re-enroll, so events are the only
// durable audit trail of cancel/re-enroll cycles.
type EnrollmentEvent struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	Action       string    `db:"action" json:"action"`
	ActorID      *string   `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Enrollment event actions.
const (
	EnrollmentActionEnrolled   = "ENROLLED"
	EnrollmentActionReEnrolled = "RE_ENROLLED"
	EnrollmentActionCompleted  = "COMPLETED"
	EnrollmentActionCanceled   = "CANCELED"
	EnrollmentActionUpdated    = "UPDATED"
	EnrollmentActionDeleted    = "DELETED"
)
