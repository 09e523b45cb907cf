package models

import "time"

// CourseStatus is derived from the course date range, never stored.
type CourseStatus string

const (
	CourseStatusUpcoming  CourseStatus = "upcoming"
	CourseStatusOngoing   CourseStatus = "ongoing"
	CourseStatusCompleted CourseStatus = "completed"
)

// Course carries the seat ledger: SeatsAvailable is the live remaining
// count and is only mutated inside the enrollment transaction or when
// capacity is edited.
type Course struct {
	ID             string    `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Description    string    `db:"description" json:"description"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	Capacity       int       `db:"capacity" json:"capacity"`
	SeatsAvailable int       `db:"seats_available" json:"seats_available"`
	InstructorID   *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	BranchID       string    `db:"branch_id" json:"branch_id"`
	CreatedBy      *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Status classifies the course against the provided clock.
func (c *Course) Status(now time.Time) CourseStatus {
	if now.Before(c.StartDate) {
		return CourseStatusUpcoming
	}
	if now.After(c.EndDate) {
		return CourseStatusCompleted
	}
	return CourseStatusOngoing
}

// Ended reports whether the course can no longer accept enrollments.
func (c *Course) Ended(now time.Time) bool {
	return !now.Before(c.EndDate)
}

// CourseDetail enriches Course with instructor and branch names.
type CourseDetail struct {
	Course
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
	BranchName     string  `db:"branch_name" json:"branch_name"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Status CourseStatus
}
