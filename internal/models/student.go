package models

import "time"

// Student represents a learner registered to a branch.
type Student struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	BranchID   string    `db:"branch_id" json:"branch_id"`
	CreatedBy  *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentProfile groups a student's enrollments by derived state.
type StudentProfile struct {
	Student              Student            `json:"student"`
	ActiveEnrollments    []EnrollmentDetail `json:"active_enrollments"`
	CompletedEnrollments []EnrollmentDetail `json:"completed_enrollments"`
	CanceledEnrollments  []EnrollmentDetail `json:"canceled_enrollments"`
}
