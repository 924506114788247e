package organizations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/symmetri/pkg/db/models"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/pagination"
)

// Service manages organizations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Organization, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type CreateInput struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

// UpdateInput carries optional changes. Nil fields are left as they are.
type UpdateInput struct {
	Code *string `json:"code,omitempty" validate:"omitempty,min=1,max=64"`
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
}

// ListResult wraps returned organizations and the cursor for the next page.
type ListResult struct {
	Items  []models.Organization `json:"items"`
	Cursor string                `json:"cursor"`
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService wires organization dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "organizations repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Create is idempotent by code: an existing organization is returned as is.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Organization, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization code required")
	}
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization name required")
	}

	existing, err := s.repo.GetByCode(ctx, code)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup organization")
	}

	now := s.now()
	org := &models.Organization{
		Code:      code,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return s.repo.GetByCode(ctx, code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create organization")
	}

	s.logg.Info(s.logg.WithOrganization(ctx, code), "organization.created")
	return org, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return org, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization code required")
	}
	org, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return org, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	query := listParams{Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organizations")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	if rows == nil {
		rows = []models.Organization{}
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Organization, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}

	fields := map[string]any{}
	if input.Code != nil {
		code := strings.TrimSpace(*input.Code)
		if code == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization code cannot be empty")
		}
		other, err := s.repo.GetByCode(ctx, code)
		switch {
		case err == nil && other.ID != id:
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "organization code %q already in use", code)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup organization")
		}
		fields["code"] = code
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "organization name cannot be empty")
		}
		fields["name"] = name
	}
	if len(fields) > 0 {
		fields["updated_at"] = s.now()
	}

	org, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "organization code already in use")
		}
		return nil, mapLookupError(err)
	}
	return org, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "organization id required")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete organization")
	}
	if deleted {
		s.logg.Info(s.logg.WithField(ctx, "organization_id", id.String()), "organization.deleted")
	}
	return deleted, nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup organization")
}
