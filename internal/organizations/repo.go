package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/symmetri/internal/repo"
	"github.com/angelmondragon/symmetri/pkg/db/models"
	"github.com/angelmondragon/symmetri/pkg/pagination"
)

// Repository exposes persistence helpers for organizations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
	List(ctx context.Context, params listParams) ([]models.Organization, *pagination.Cursor, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns an organizations repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

type listParams struct {
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, org *models.Organization) error {
	return r.DB(ctx).Create(org).Error
}

// GetByID returns gorm.ErrRecordNotFound when no row matches.
func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.DB(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// GetByCode returns gorm.ErrRecordNotFound when no row matches.
func (r *repositoryImpl) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	var org models.Organization
	if err := r.DB(ctx).Where("code = ?", code).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listParams) ([]models.Organization, *pagination.Cursor, error) {
	return repo.Page(r.DB(ctx).Model(&models.Organization{}), params.Limit, params.Cursor, func(org models.Organization) pagination.Cursor {
		return pagination.Cursor{CreatedAt: org.CreatedAt, ID: org.ID}
	})
}

// Update applies fields and returns the stored row. An empty field set
// returns the current row untouched.
func (r *repositoryImpl) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Organization, error) {
	if len(fields) > 0 {
		if _, ok := fields["updated_at"]; !ok {
			fields["updated_at"] = time.Now().UTC()
		}
		result := r.DB(ctx).Model(&models.Organization{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.GetByID(ctx, id)
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.DB(ctx).Where("id = ?", id).Delete(&models.Organization{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
