package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/repository"
	"github.com/atlasedu/academy-api/pkg/config"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

// fakeEnrollmentStore is an in-memory stand-in for the enrollment
// repository. WithTx serializes callers on a mutex and restores a snapshot
// when fn fails, mirroring the commit/rollback contract.
type fakeEnrollmentStore struct {
	mu          sync.Mutex
	students    map[string]models.Student
	courses     map[string]models.Course
	enrollments map[string]models.Enrollment
	events      []models.EnrollmentEvent
	seq         int
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{
		students:    make(map[string]models.Student),
		courses:     make(map[string]models.Course),
		enrollments: make(map[string]models.Enrollment),
	}
}

type storeSnapshot struct {
	courses     map[string]models.Course
	enrollments map[string]models.Enrollment
	events      []models.EnrollmentEvent
	seq         int
}

func (f *fakeEnrollmentStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		courses:     make(map[string]models.Course, len(f.courses)),
		enrollments: make(map[string]models.Enrollment, len(f.enrollments)),
		events:      append([]models.EnrollmentEvent(nil), f.events...),
		seq:         f.seq,
	}
	for k, v := range f.courses {
		snap.courses[k] = v
	}
	for k, v := range f.enrollments {
		snap.enrollments[k] = v
	}
	return snap
}

func (f *fakeEnrollmentStore) restore(snap storeSnapshot) {
	f.courses = snap.courses
	f.enrollments = snap.enrollments
	f.events = snap.events
	f.seq = snap.seq
}

func (f *fakeEnrollmentStore) WithTx(_ context.Context, fn func(tx repository.EnrollmentTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snapshot()
	if err := fn(&fakeTx{store: f}); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeEnrollmentStore) detail(e models.Enrollment) models.EnrollmentDetail {
	student := f.students[e.StudentID]
	course := f.courses[e.CourseID]
	return models.EnrollmentDetail{
		Enrollment:   e,
		StudentName:  student.Name,
		StudentEmail: student.Email,
		CourseTitle:  course.Title,
		State:        e.State(),
	}
}

func (f *fakeEnrollmentStore) FindDetailByID(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := f.detail(e)
	return &detail, nil
}

func (f *fakeEnrollmentStore) List(_ context.Context, branchID string) ([]models.EnrollmentDetail, error) {
	return f.collect(func(e models.Enrollment) bool {
		return branchID == "" || e.BranchID == branchID
	}, false), nil
}

func (f *fakeEnrollmentStore) ListActive(_ context.Context, branchID string) ([]models.EnrollmentDetail, error) {
	return f.collect(func(e models.Enrollment) bool {
		if !e.Active() {
			return false
		}
		return branchID == "" || e.BranchID == branchID
	}, false), nil
}

func (f *fakeEnrollmentStore) ListActiveByCourse(_ context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	return f.collect(func(e models.Enrollment) bool {
		return e.Active() && e.CourseID == courseID
	}, true), nil
}

func (f *fakeEnrollmentStore) ListByStudent(_ context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return f.collect(func(e models.Enrollment) bool {
		return e.StudentID == studentID
	}, false), nil
}

func (f *fakeEnrollmentStore) ListEvents(_ context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentEvent
	for _, ev := range f.events {
		if ev.EnrollmentID == enrollmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEnrollmentStore) collect(match func(models.Enrollment) bool, ascending bool) []models.EnrollmentDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if match(e) {
			out = append(out, f.detail(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].EnrolledDate.Before(out[j].EnrolledDate)
		}
		return out[i].EnrolledDate.After(out[j].EnrolledDate)
	})
	return out
}

// fakeTx operates on the store under the WithTx lock.
type fakeTx struct {
	store *fakeEnrollmentStore
}

func (t *fakeTx) FindStudent(_ context.Context, id string) (*models.Student, error) {
	s, ok := t.store.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (t *fakeTx) FindCourseForUpdate(_ context.Context, id string) (*models.Course, error) {
	c, ok := t.store.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (t *fakeTx) FindEnrollment(_ context.Context, id string) (*models.Enrollment, error) {
	e, ok := t.store.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (t *fakeTx) FindByPair(_ context.Context, studentID, courseID string) (*models.Enrollment, error) {
	for _, e := range t.store.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (t *fakeTx) Insert(_ context.Context, enrollment *models.Enrollment) error {
	t.store.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", t.store.seq)
	t.store.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *fakeTx) Update(_ context.Context, enrollment *models.Enrollment) error {
	if _, ok := t.store.enrollments[enrollment.ID]; !ok {
		return sql.ErrNoRows
	}
	t.store.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *fakeTx) Delete(_ context.Context, id string) error {
	delete(t.store.enrollments, id)
	return nil
}

func (t *fakeTx) ReserveSeat(_ context.Context, courseID string) error {
	c, ok := t.store.courses[courseID]
	if !ok || c.SeatsAvailable <= 0 {
		return fmt.Errorf("no seats available for course %s", courseID)
	}
	c.SeatsAvailable--
	t.store.courses[courseID] = c
	return nil
}

func (t *fakeTx) ReleaseSeat(_ context.Context, courseID string) error {
	c, ok := t.store.courses[courseID]
	if !ok {
		return sql.ErrNoRows
	}
	c.SeatsAvailable++
	t.store.courses[courseID] = c
	return nil
}

func (t *fakeTx) ActiveCountByCourse(_ context.Context, courseID string) (int, error) {
	count := 0
	for _, e := range t.store.enrollments {
		if e.CourseID == courseID && e.Active() {
			count++
		}
	}
	return count, nil
}

func (t *fakeTx) RecordEvent(_ context.Context, event *models.EnrollmentEvent) error {
	t.store.seq++
	event.ID = fmt.Sprintf("evt-%d", t.store.seq)
	event.CreatedAt = time.Now().UTC()
	t.store.events = append(t.store.events, *event)
	return nil
}

type fakeCourseReader struct{ store *fakeEnrollmentStore }

func (f fakeCourseReader) FindByID(_ context.Context, id string) (*models.Course, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	c, ok := f.store.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

type fakeStudentReader struct{ store *fakeEnrollmentStore }

func (f fakeStudentReader) FindByID(_ context.Context, id string) (*models.Student, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	s, ok := f.store.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func branchRef(id string) *string { return &id }

func seedStore() *fakeEnrollmentStore {
	now := time.Now().UTC()
	store := newFakeEnrollmentStore()
	store.students["st-1"] = models.Student{ID: "st-1", Name: "Ada Reyes", Email: "ada@b1.test", BranchID: "b1"}
	store.students["st-2"] = models.Student{ID: "st-2", Name: "Ben Osei", Email: "ben@b1.test", BranchID: "b1"}
	store.students["st-3"] = models.Student{ID: "st-3", Name: "Cleo Tan", Email: "cleo@b2.test", BranchID: "b2"}
	store.courses["crs-1"] = models.Course{
		ID: "crs-1", Title: "Go Fundamentals", BranchID: "b1",
		StartDate: now.Add(-24 * time.Hour), EndDate: now.Add(30 * 24 * time.Hour),
		Capacity: 2, SeatsAvailable: 2,
	}
	store.courses["crs-2"] = models.Course{
		ID: "crs-2", Title: "Kubernetes Basics", BranchID: "b2",
		StartDate: now.Add(-24 * time.Hour), EndDate: now.Add(30 * 24 * time.Hour),
		Capacity: 5, SeatsAvailable: 5,
	}
	store.courses["crs-ended"] = models.Course{
		ID: "crs-ended", Title: "Legacy Course", BranchID: "b1",
		StartDate: now.Add(-60 * 24 * time.Hour), EndDate: now.Add(-24 * time.Hour),
		Capacity: 5, SeatsAvailable: 5,
	}
	return store
}

func newEnrollmentService(store *fakeEnrollmentStore) *EnrollmentService {
	cacheSvc := NewCacheService(nil, config.CacheConfig{}, nil, nil)
	return NewEnrollmentService(store, fakeCourseReader{store}, fakeStudentReader{store}, cacheSvc, nil, nil, nil)
}

func superadmin() models.AuthUser {
	return models.AuthUser{ID: "usr-root", Email: "root@hq.test", Role: models.RoleSuperAdmin}
}

func adminOf(branchID string) models.AuthUser {
	return models.AuthUser{ID: "usr-" + branchID, Email: branchID + "@test", Role: models.RoleAdmin, BranchID: branchRef(branchID)}
}

func assertLedger(t *testing.T, store *fakeEnrollmentStore, courseID string) {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	course := store.courses[courseID]
	active := 0
	for _, e := range store.enrollments {
		if e.CourseID == courseID && e.Active() {
			active++
		}
	}
	assert.Equal(t, course.Capacity-active, course.SeatsAvailable, "seat ledger out of sync for %s", courseID)
}

func TestEnrollReservesSeat(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, adminOf("b1"))
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, models.EnrollmentStateActive, detail.State)
	assert.Equal(t, "Ada Reyes", detail.StudentName)
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable)
	assertLedger(t, store, "crs-1")

	events, err := store.ListEvents(context.Background(), detail.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EnrollmentActionEnrolled, events[0].Action)
}

func TestEnrollDuplicateActive(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable)
}

func TestEnrollCompletedPairRejected(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), CompleteRequest{EnrollmentID: detail.ID}, actor)
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestEnrollEndedCourse(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-ended"}, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, 5, store.courses["crs-ended"].SeatsAvailable)
}

func TestEnrollNoSeats(t *testing.T) {
	store := seedStore()
	course := store.courses["crs-1"]
	course.Capacity = 1
	course.SeatsAvailable = 1
	store.courses["crs-1"] = course
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-2", CourseID: "crs-1"}, actor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, 0, store.courses["crs-1"].SeatsAvailable)
}

func TestEnrollCrossBranchPair(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)

	// st-1 is in b1, crs-2 in b2. Even a superadmin cannot pair them.
	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-2"}, superadmin())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestEnrollScopeEnforcement(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-3", CourseID: "crs-2"}, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	noBranch := models.AuthUser{ID: "usr-x", Role: models.RoleAdmin}
	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, noBranch)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestEnrollStudentNotFound(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-missing", CourseID: "crs-1"}, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestReEnrollReusesRow(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	first, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	seatsAfterEnroll := store.courses["crs-1"].SeatsAvailable

	canceled, err := svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: first.ID}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStateCanceled, canceled.State)
	assert.Equal(t, seatsAfterEnroll+1, store.courses["crs-1"].SeatsAvailable)

	again, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "re-enroll must reuse the row identity")
	assert.Equal(t, models.EnrollmentStateActive, again.State)
	assert.Nil(t, again.CanceledAt)
	assert.Nil(t, again.CompletionDate)
	assert.Equal(t, seatsAfterEnroll, store.courses["crs-1"].SeatsAvailable)
	assertLedger(t, store, "crs-1")

	events, err := store.ListEvents(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.EnrollmentActionEnrolled, events[0].Action)
	assert.Equal(t, models.EnrollmentActionCanceled, events[1].Action)
	assert.Equal(t, models.EnrollmentActionReEnrolled, events[2].Action)
}

func TestCompleteFreesSeatAndIsIdempotent(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable)

	completed, err := svc.Complete(context.Background(), CompleteRequest{EnrollmentID: detail.ID}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStateCompleted, completed.State)
	require.NotNil(t, completed.CompletionDate)
	assert.Equal(t, 2, store.courses["crs-1"].SeatsAvailable)
	assertLedger(t, store, "crs-1")

	again, err := svc.Complete(context.Background(), CompleteRequest{EnrollmentID: detail.ID}, actor)
	require.NoError(t, err)
	assert.Equal(t, completed.CompletionDate.Unix(), again.CompletionDate.Unix())
	assert.Equal(t, 2, store.courses["crs-1"].SeatsAvailable, "repeat completion must not touch the ledger")
}

func TestCompleteCanceledRejected(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	_, err = svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: detail.ID}, actor)
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), CompleteRequest{EnrollmentID: detail.ID}, actor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUnenrollCompletedRejectedAndIdempotent(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), CompleteRequest{EnrollmentID: detail.ID}, actor)
	require.NoError(t, err)

	_, err = svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: detail.ID}, actor)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	other, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-2", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	first, err := svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: other.ID}, actor)
	require.NoError(t, err)
	seats := store.courses["crs-1"].SeatsAvailable

	second, err := svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: other.ID}, actor)
	require.NoError(t, err)
	assert.Equal(t, first.CanceledAt.Unix(), second.CanceledAt.Unix())
	assert.Equal(t, seats, store.courses["crs-1"].SeatsAvailable, "repeat unenroll must not touch the ledger")
}

func TestDeleteReleasesSeatOnlyWhenActive(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	active, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	canceled, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-2", CourseID: "crs-1"}, actor)
	require.NoError(t, err)
	_, err = svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: canceled.ID}, actor)
	require.NoError(t, err)
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable)

	require.NoError(t, svc.Delete(context.Background(), canceled.ID, actor))
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable, "deleting a canceled row must not release a seat")

	require.NoError(t, svc.Delete(context.Background(), active.ID, actor))
	assert.Equal(t, 2, store.courses["crs-1"].SeatsAvailable, "deleting an active row must release its seat")
	assertLedger(t, store, "crs-1")
}

func TestUpdateRequiresSuperadmin(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, adminOf("b1"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), detail.ID, UpdateEnrollmentRequest{}, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestUpdateReDerivesLedgerOnCancelToggle(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	root := superadmin()

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, root)
	require.NoError(t, err)
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable)

	ts := time.Now().UTC()
	patched, err := svc.Update(context.Background(), detail.ID, UpdateEnrollmentRequest{CanceledAt: &ts}, root)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStateCanceled, patched.State)
	assert.Equal(t, 2, store.courses["crs-1"].SeatsAvailable, "setting canceled_at must release the seat")

	restored, err := svc.Update(context.Background(), detail.ID, UpdateEnrollmentRequest{ClearCanceledAt: true}, root)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStateActive, restored.State)
	assert.Equal(t, 1, store.courses["crs-1"].SeatsAvailable, "clearing canceled_at must reserve a seat again")
	assertLedger(t, store, "crs-1")
}

func TestConcurrentEnrollLastSeat(t *testing.T) {
	store := seedStore()
	course := store.courses["crs-1"]
	course.Capacity = 1
	course.SeatsAvailable = 1
	store.courses["crs-1"] = course
	svc := newEnrollmentService(store)
	actor := adminOf("b1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, studentID := range []string{"st-1", "st-2"} {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			_, errs[idx] = svc.Enroll(context.Background(), EnrollRequest{StudentID: id, CourseID: "crs-1"}, actor)
		}(i, studentID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one of two racing enrollments may win the last seat")
	assert.Equal(t, 0, store.courses["crs-1"].SeatsAvailable)
	assertLedger(t, store, "crs-1")
}

func TestListAppliesBranchScope(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	root := superadmin()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, root)
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-3", CourseID: "crs-2"}, root)
	require.NoError(t, err)

	all, err := svc.List(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.List(context.Background(), adminOf("b1"))
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "b1", scoped[0].BranchID)

	_, err = svc.List(context.Background(), models.AuthUser{ID: "usr-x", Role: models.RoleUser})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBadRequest))
}

func TestRosterOrderedByEnrollmentDate(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	root := superadmin()

	first, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, root)
	require.NoError(t, err)

	// Backdate the first enrollment so roster ordering is observable.
	store.mu.Lock()
	e := store.enrollments[first.ID]
	e.EnrolledDate = e.EnrolledDate.Add(-time.Hour)
	store.enrollments[first.ID] = e
	store.mu.Unlock()

	second, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-2", CourseID: "crs-1"}, root)
	require.NoError(t, err)

	roster, err := svc.Roster(context.Background(), "crs-1", adminOf("b1"))
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, first.ID, roster[0].ID)
	assert.Equal(t, second.ID, roster[1].ID)

	_, err = svc.Roster(context.Background(), "crs-1", adminOf("b2"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestHistoryReturnsAllStates(t *testing.T) {
	store := seedStore()
	svc := newEnrollmentService(store)
	root := superadmin()

	a, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "st-1", CourseID: "crs-1"}, root)
	require.NoError(t, err)
	_, err = svc.Unenroll(context.Background(), UnenrollRequest{EnrollmentID: a.ID}, root)
	require.NoError(t, err)

	history, err := svc.History(context.Background(), "st-1", adminOf("b1"))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.EnrollmentStateCanceled, history[0].State)
}
