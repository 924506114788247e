package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/symmetri/pkg/db/types"
)

// SchemaAnalyzerMetadata holds the analyzed metadata of one warehouse table
// for an organization, in full and as a card-sized summary.
type SchemaAnalyzerMetadata struct {
	ID              uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	OrganizationID  uuid.UUID    `gorm:"column:organization_id;type:uuid;not null;uniqueIndex:idx_schema_analyzer_metadata_org_table"`
	Table           string       `gorm:"column:table_name;not null;uniqueIndex:idx_schema_analyzer_metadata_org_table"`
	Metadata        dbtypes.JSON `gorm:"column:metadata;type:jsonb;not null"`
	SummaryMetadata dbtypes.JSON `gorm:"column:summary_metadata;type:jsonb;not null"`
	CreatedAt       time.Time    `gorm:"column:created_at"`
	UpdatedAt       time.Time    `gorm:"column:updated_at"`
}

func (SchemaAnalyzerMetadata) TableName() string { return "schema_analyzer_metadata" }

func (m *SchemaAnalyzerMetadata) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
