package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/atlasedu/academy-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var enrollmentDetailColumns = []string{
	"id", "student_id", "course_id", "branch_id", "enrolled_date", "completed",
	"completion_date", "canceled_at", "created_by", "created_at", "updated_at",
	"student_name", "student_email", "course_title",
}

func TestEnrollmentRepositoryWithTxCommitsSeatReservation(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("crs-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "start_date", "end_date", "capacity", "seats_available", "instructor_id", "branch_id", "created_by", "created_at", "updated_at"}).
			AddRow("crs-1", "Distributed Systems", "", now, now.Add(90*24*time.Hour), 30, 1, nil, "b1", nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET seats_available = seats_available - 1, updated_at = $2 WHERE id = $1 AND seats_available > 0")).
		WithArgs("crs-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "st-1", "crs-1", "b1", sqlmock.AnyArg(), false, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx EnrollmentTx) error {
		course, err := tx.FindCourseForUpdate(context.Background(), "crs-1")
		if err != nil {
			return err
		}
		require.Equal(t, 1, course.SeatsAvailable)
		if err := tx.ReserveSeat(context.Background(), course.ID); err != nil {
			return err
		}
		return tx.Insert(context.Background(), &models.Enrollment{
			StudentID: "st-1",
			CourseID:  course.ID,
			BranchID:  course.BranchID,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithTxRollsBackWhenSeatsExhausted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("seats_available = seats_available - 1")).
		WithArgs("crs-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx EnrollmentTx) error {
		return tx.ReserveSeat(context.Background(), "crs-1")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no seats available")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithTxRetriesDeadlockVictim(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	releaseQuery := regexp.QuoteMeta("seats_available = seats_available + 1")
	mock.ExpectBegin()
	mock.ExpectExec(releaseQuery).
		WithArgs("crs-1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(releaseQuery).
		WithArgs("crs-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := repo.WithTx(context.Background(), func(tx EnrollmentTx) error {
		attempts++
		return tx.ReleaseSeat(context.Background(), "crs-1")
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithTxGivesUpAfterRepeatedDeadlocks(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	releaseQuery := regexp.QuoteMeta("seats_available = seats_available + 1")
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(releaseQuery).
			WithArgs("crs-1", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	attempts := 0
	err := repo.WithTx(context.Background(), func(tx EnrollmentTx) error {
		attempts++
		return tx.ReleaseSeat(context.Background(), "crs-1")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)

	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	require.Equal(t, pq.ErrorCode("40P01"), pqErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListDerivesState(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	done := now.Add(-time.Hour)
	rows := sqlmock.NewRows(enrollmentDetailColumns).
		AddRow("enr-1", "st-1", "crs-1", "b1", now, false, nil, nil, nil, now, now, "Ada Reyes", "ada@b1.test", "Distributed Systems").
		AddRow("enr-2", "st-2", "crs-1", "b1", now, true, done, nil, nil, now, now, "Bo Lindqvist", "bo@b1.test", "Distributed Systems").
		AddRow("enr-3", "st-3", "crs-1", "b1", now, false, nil, done, nil, now, now, "Cam Okafor", "cam@b1.test", "Distributed Systems")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY e.enrolled_date DESC")).
		WillReturnRows(rows)

	details, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, details, 3)
	require.Equal(t, models.EnrollmentStateActive, details[0].State)
	require.Equal(t, models.EnrollmentStateCompleted, details[1].State)
	require.Equal(t, models.EnrollmentStateCanceled, details[2].State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersByBranch(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.branch_id = $1 ORDER BY e.enrolled_date DESC")).
		WithArgs("b2").
		WillReturnRows(sqlmock.NewRows(enrollmentDetailColumns).
			AddRow("enr-9", "st-9", "crs-9", "b2", now, false, nil, nil, nil, now, now, "Dee Ito", "dee@b2.test", "Compilers"))

	details, err := repo.List(context.Background(), "b2")
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "b2", details[0].BranchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryActiveCountByCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND completed = FALSE AND canceled_at IS NULL")).
		WithArgs("crs-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.ActiveCountByCourse(context.Background(), "crs-1")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
