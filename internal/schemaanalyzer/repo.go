package schemaanalyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/symmetri/internal/repo"
	"github.com/angelmondragon/symmetri/pkg/db/models"
	dbtypes "github.com/angelmondragon/symmetri/pkg/db/types"
)

// Repository persists analyzed table metadata per organization.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TableSummaries(ctx context.Context, orgID uuid.UUID) ([]dbtypes.JSON, error)
	TableMetadata(ctx context.Context, orgID uuid.UUID, table string) (dbtypes.JSON, error)
	TableNames(ctx context.Context, orgID uuid.UUID) (map[string]bool, error)
	Store(ctx context.Context, orgID uuid.UUID, inserts, updates []Record, now time.Time) error
}

// Record is one table's metadata in stored form.
type Record struct {
	Table   string
	Full    dbtypes.JSON
	Summary dbtypes.JSON
}

type repositoryImpl struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) TableSummaries(ctx context.Context, orgID uuid.UUID) ([]dbtypes.JSON, error) {
	var summaries []dbtypes.JSON
	err := r.Scoped(ctx, orgID).Model(&models.SchemaAnalyzerMetadata{}).
		Order("table_name ASC").
		Pluck("summary_metadata", &summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// TableMetadata returns gorm.ErrRecordNotFound when the table was never analyzed.
func (r *repositoryImpl) TableMetadata(ctx context.Context, orgID uuid.UUID, table string) (dbtypes.JSON, error) {
	var row models.SchemaAnalyzerMetadata
	err := r.Scoped(ctx, orgID).
		Select("metadata").
		Where("table_name = ?", table).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return row.Metadata, nil
}

func (r *repositoryImpl) TableNames(ctx context.Context, orgID uuid.UUID) (map[string]bool, error) {
	var names []string
	err := r.Scoped(ctx, orgID).Model(&models.SchemaAnalyzerMetadata{}).
		Pluck("table_name", &names).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (r *repositoryImpl) Store(ctx context.Context, orgID uuid.UUID, inserts, updates []Record, now time.Time) error {
	if len(inserts) > 0 {
		rows := make([]models.SchemaAnalyzerMetadata, 0, len(inserts))
		for _, rec := range inserts {
			rows = append(rows, models.SchemaAnalyzerMetadata{
				OrganizationID:  orgID,
				Table:           rec.Table,
				Metadata:        rec.Full,
				SummaryMetadata: rec.Summary,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		if err := r.DB(ctx).Create(&rows).Error; err != nil {
			return err
		}
	}

	for _, rec := range updates {
		err := r.Scoped(ctx, orgID).Model(&models.SchemaAnalyzerMetadata{}).
			Where("table_name = ?", rec.Table).
			Updates(map[string]any{
				"metadata":         rec.Full,
				"summary_metadata": rec.Summary,
				"updated_at":       now,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
