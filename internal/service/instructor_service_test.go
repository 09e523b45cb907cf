package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasedu/academy-api/internal/models"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type fakeInstructorStore struct {
	instructors map[string]models.Instructor
	seq         int
}

func newFakeInstructorStore() *fakeInstructorStore {
	return &fakeInstructorStore{instructors: make(map[string]models.Instructor)}
}

func (f *fakeInstructorStore) List(_ context.Context, branchID string) ([]models.Instructor, error) {
	var out []models.Instructor
	for _, ins := range f.instructors {
		if branchID == "" || ins.BranchID == branchID {
			out = append(out, ins)
		}
	}
	return out, nil
}

func (f *fakeInstructorStore) FindByID(_ context.Context, id string) (*models.Instructor, error) {
	ins, ok := f.instructors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &ins, nil
}

func (f *fakeInstructorStore) EmailExists(_ context.Context, email, excludeID string) (bool, error) {
	for _, ins := range f.instructors {
		if ins.Email == email && ins.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInstructorStore) Create(_ context.Context, instructor *models.Instructor) error {
	f.seq++
	instructor.ID = fmt.Sprintf("ins-%d", f.seq)
	f.instructors[instructor.ID] = *instructor
	return nil
}

func (f *fakeInstructorStore) Update(_ context.Context, instructor *models.Instructor) error {
	if _, ok := f.instructors[instructor.ID]; !ok {
		return sql.ErrNoRows
	}
	f.instructors[instructor.ID] = *instructor
	return nil
}

func (f *fakeInstructorStore) Delete(_ context.Context, id string) error {
	delete(f.instructors, id)
	return nil
}

type fakeStudentEmailChecker struct {
	taken map[string]bool
}

func (f fakeStudentEmailChecker) EmailExists(_ context.Context, email, _ string) (bool, error) {
	return f.taken[email], nil
}

func newInstructorHarness() (*InstructorService, *fakeInstructorStore) {
	store := newFakeInstructorStore()
	students := fakeStudentEmailChecker{taken: map[string]bool{"taken@b1.test": true}}
	branches := fakeBranchChecker{branches: map[string]bool{"b1": true, "b2": true}}
	svc := NewInstructorService(store, students, branches, nil, nil)
	return svc, store
}

func TestCreateInstructorRecordsCreator(t *testing.T) {
	svc, store := newInstructorHarness()
	actor := adminOf("b1")

	created, err := svc.Create(context.Background(), CreateInstructorRequest{
		Name:  "Dana Wolfe",
		Email: "Dana.Wolfe@b1.test",
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, "b1", created.BranchID)
	assert.Equal(t, "dana.wolfe@b1.test", created.Email)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, actor.ID, *created.CreatedBy)

	stored := store.instructors[created.ID]
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, actor.ID, *stored.CreatedBy)
}

func TestCreateInstructorRejectsStudentEmail(t *testing.T) {
	svc, _ := newInstructorHarness()

	_, err := svc.Create(context.Background(), CreateInstructorRequest{
		Name:  "Emil Novak",
		Email: "taken@b1.test",
	}, adminOf("b1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUpdateInstructorKeepsCreator(t *testing.T) {
	svc, store := newInstructorHarness()
	actor := adminOf("b1")

	created, err := svc.Create(context.Background(), CreateInstructorRequest{
		Name:  "Dana Wolfe",
		Email: "dana.wolfe@b1.test",
	}, actor)
	require.NoError(t, err)

	name := "Dana W. Wolfe"
	updated, err := svc.Update(context.Background(), created.ID, UpdateInstructorRequest{Name: &name}, actor)
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	require.NotNil(t, updated.CreatedBy)
	assert.Equal(t, actor.ID, *updated.CreatedBy)

	stored := store.instructors[created.ID]
	require.NotNil(t, stored.CreatedBy)
}
