package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/pkg/config"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type fakeCourseStore struct {
	courses      map[string]models.Course
	activeCounts map[string]int
	seq          int
}

func newFakeCourseStore() *fakeCourseStore {
	return &fakeCourseStore{
		courses:      make(map[string]models.Course),
		activeCounts: make(map[string]int),
	}
}

func (f *fakeCourseStore) List(_ context.Context, branchID string) ([]models.CourseDetail, error) {
	var out []models.CourseDetail
	for _, c := range f.courses {
		if branchID == "" || c.BranchID == branchID {
			out = append(out, models.CourseDetail{Course: c, BranchName: c.BranchID})
		}
	}
	return out, nil
}

func (f *fakeCourseStore) FindByID(_ context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (f *fakeCourseStore) FindDetailByID(_ context.Context, id string) (*models.CourseDetail, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: c, BranchName: c.BranchID}, nil
}

func (f *fakeCourseStore) Create(_ context.Context, course *models.Course) error {
	f.seq++
	course.ID = fmt.Sprintf("crs-%d", f.seq)
	f.courses[course.ID] = *course
	return nil
}

func (f *fakeCourseStore) Update(_ context.Context, course *models.Course) error {
	stored, ok := f.courses[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	// The store never writes ledger fields on a plain update.
	course.Capacity = stored.Capacity
	course.SeatsAvailable = stored.SeatsAvailable
	f.courses[course.ID] = *course
	return nil
}

func (f *fakeCourseStore) RecalculateSeats(_ context.Context, id string, capacity int) (int, int, error) {
	c, ok := f.courses[id]
	if !ok {
		return 0, 0, sql.ErrNoRows
	}
	active := f.activeCounts[id]
	seats := capacity - active
	if seats < 0 {
		seats = 0
	}
	c.Capacity = capacity
	c.SeatsAvailable = seats
	f.courses[id] = c
	return seats, active, nil
}

func (f *fakeCourseStore) Delete(_ context.Context, id string) error {
	delete(f.courses, id)
	return nil
}

func (f *fakeCourseStore) ActiveCountByCourse(_ context.Context, courseID string) (int, error) {
	return f.activeCounts[courseID], nil
}

type fakeInstructorReader struct {
	instructors map[string]models.Instructor
}

func (f fakeInstructorReader) FindByID(_ context.Context, id string) (*models.Instructor, error) {
	in, ok := f.instructors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &in, nil
}

type fakeBranchChecker struct {
	branches map[string]bool
}

func (f fakeBranchChecker) Exists(_ context.Context, id string) (bool, error) {
	return f.branches[id], nil
}

func newCourseHarness() (*CourseService, *fakeCourseStore) {
	store := newFakeCourseStore()
	instructors := fakeInstructorReader{instructors: map[string]models.Instructor{
		"ins-1": {ID: "ins-1", Name: "Dana Wolfe", BranchID: "b1"},
		"ins-2": {ID: "ins-2", Name: "Emil Novak", BranchID: "b2"},
	}}
	branches := fakeBranchChecker{branches: map[string]bool{"b1": true, "b2": true}}
	cacheSvc := NewCacheService(nil, config.CacheConfig{}, nil, nil)
	svc := NewCourseService(store, instructors, branches, store, cacheSvc, nil, nil)
	return svc, store
}

func validCourseRequest() CreateCourseRequest {
	now := time.Now().UTC()
	return CreateCourseRequest{
		Title:     "Distributed Systems",
		StartDate: now.Add(24 * time.Hour),
		EndDate:   now.Add(30 * 24 * time.Hour),
		Capacity:  10,
	}
}

func TestCreateCourseSeatsStartAtCapacity(t *testing.T) {
	svc, store := newCourseHarness()

	created, err := svc.Create(context.Background(), validCourseRequest(), adminOf("b1"))
	require.NoError(t, err)
	assert.Equal(t, 10, created.Capacity)
	assert.Equal(t, 10, created.SeatsAvailable)
	assert.Equal(t, "b1", created.BranchID)
	assert.Len(t, store.courses, 1)
}

func TestCreateCourseRejectsInvertedDates(t *testing.T) {
	svc, _ := newCourseHarness()

	req := validCourseRequest()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate
	_, err := svc.Create(context.Background(), req, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestCreateCourseInstructorMustShareBranch(t *testing.T) {
	svc, _ := newCourseHarness()

	req := validCourseRequest()
	ins := "ins-2"
	req.InstructorID = &ins
	_, err := svc.Create(context.Background(), req, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUpdateCourseCapacityClampsSeats(t *testing.T) {
	svc, store := newCourseHarness()

	created, err := svc.Create(context.Background(), validCourseRequest(), adminOf("b1"))
	require.NoError(t, err)
	store.activeCounts[created.ID] = 4

	capacity := 2
	updated, err := svc.Update(context.Background(), created.ID, UpdateCourseRequest{Capacity: &capacity}, adminOf("b1"))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)
	assert.Equal(t, 0, updated.SeatsAvailable, "seats clamp to zero when capacity drops below the active count")
}

func TestUpdateCourseCapacityRecomputesSeats(t *testing.T) {
	svc, store := newCourseHarness()

	created, err := svc.Create(context.Background(), validCourseRequest(), adminOf("b1"))
	require.NoError(t, err)
	store.activeCounts[created.ID] = 3

	capacity := 8
	updated, err := svc.Update(context.Background(), created.ID, UpdateCourseRequest{Capacity: &capacity}, adminOf("b1"))
	require.NoError(t, err)
	assert.Equal(t, 5, updated.SeatsAvailable)
}

func TestUpdateCourseBranchMoveIsSuperadminOnly(t *testing.T) {
	svc, _ := newCourseHarness()

	created, err := svc.Create(context.Background(), validCourseRequest(), adminOf("b1"))
	require.NoError(t, err)

	target := "b2"
	_, err = svc.Update(context.Background(), created.ID, UpdateCourseRequest{BranchID: &target}, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	moved, err := svc.Update(context.Background(), created.ID, UpdateCourseRequest{BranchID: &target}, superadmin())
	require.NoError(t, err)
	assert.Equal(t, "b2", moved.BranchID)
}

func TestDeleteCourseBlockedByActiveEnrollments(t *testing.T) {
	svc, store := newCourseHarness()

	created, err := svc.Create(context.Background(), validCourseRequest(), adminOf("b1"))
	require.NoError(t, err)
	store.activeCounts[created.ID] = 1

	err = svc.Delete(context.Background(), created.ID, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Len(t, store.courses, 1)

	store.activeCounts[created.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), created.ID, adminOf("b1")))
	assert.Empty(t, store.courses)
}

func TestListCoursesFiltersByStatus(t *testing.T) {
	svc, store := newCourseHarness()
	now := time.Now().UTC()

	store.courses["past"] = models.Course{ID: "past", Title: "Past", BranchID: "b1",
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour), Capacity: 1, SeatsAvailable: 1}
	store.courses["current"] = models.Course{ID: "current", Title: "Current", BranchID: "b1",
		StartDate: now.Add(-24 * time.Hour), EndDate: now.Add(24 * time.Hour), Capacity: 1, SeatsAvailable: 1}

	ongoing, err := svc.List(context.Background(), models.CourseFilter{Status: models.CourseStatusOngoing}, adminOf("b1"))
	require.NoError(t, err)
	require.Len(t, ongoing, 1)
	assert.Equal(t, "current", ongoing[0].ID)

	completed, err := svc.List(context.Background(), models.CourseFilter{Status: models.CourseStatusCompleted}, adminOf("b1"))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "past", completed[0].ID)
}

func TestRosterTableShapesRows(t *testing.T) {
	svc, _ := newCourseHarness()
	enrolled := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	table := svc.RosterTable([]models.EnrollmentDetail{{
		Enrollment:   models.Enrollment{BranchID: "b1", EnrolledDate: enrolled},
		StudentName:  "Ada Reyes",
		StudentEmail: "ada@b1.test",
	}})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"Ada Reyes", "ada@b1.test", "2026-03-14", "b1"}, table.Rows[0])
}
