package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-api/internal/models"
	appErrors "github.com/classtrack/attendance-api/pkg/errors"
)

type fakeStudentRepo struct {
	students   map[int64]*models.Student
	lastFilter models.StudentFilter
	listErr    error
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	out := make([]models.Student, 0, len(f.students))
	for _, s := range f.students {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func TestStudentServiceGet(t *testing.T) {
	repo := &fakeStudentRepo{students: map[int64]*models.Student{
		1: {ID: 1, Name: "Alice Tan", Code: "S-001", Class: "10", Section: "A"},
	}}
	svc := NewStudentService(repo)

	student, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice Tan", student.Name)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	svc := NewStudentService(&fakeStudentRepo{students: map[int64]*models.Student{}})

	_, err := svc.Get(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceListNormalizesPagination(t *testing.T) {
	repo := &fakeStudentRepo{students: map[int64]*models.Student{
		1: {ID: 1, Name: "Alice Tan", Code: "S-001", Class: "10", Section: "A"},
	}}
	svc := NewStudentService(repo)

	_, pagination, err := svc.List(context.Background(), StudentListRequest{Page: 0, PageSize: 500, Class: "10", Section: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, "10", repo.lastFilter.Class)
	assert.Equal(t, "A", repo.lastFilter.Section)
}

func TestStudentServiceListRepoError(t *testing.T) {
	svc := NewStudentService(&fakeStudentRepo{listErr: errors.New("connection reset")})

	_, _, err := svc.List(context.Background(), StudentListRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
