package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization owns warehouse schemas and their analyzed metadata.
type Organization struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"column:code;not null;uniqueIndex:idx_organizations_code" json:"code"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

func (o *Organization) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
