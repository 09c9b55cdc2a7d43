package service

import (
	"context"

	"github.com/classtrack/attendance-api/internal/models"
	appErrors "github.com/classtrack/attendance-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

// StudentService exposes read-only roster lookups.
type StudentService struct {
	repo studentRepository
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository) *StudentService {
	return &StudentService{repo: repo}
}

// Get loads one student.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// StudentListRequest filters the roster listing.
type StudentListRequest struct {
	Class    string
	Section  string
	Search   string
	Page     int
	PageSize int
}

// List returns paginated roster entries.
func (s *StudentService) List(ctx context.Context, req StudentListRequest) ([]models.Student, *models.Pagination, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	students, total, err := s.repo.List(ctx, models.StudentFilter{
		Class:    req.Class,
		Section:  req.Section,
		Search:   req.Search,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}
