package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/symmetri/pkg/pagination"
)

// Base is embedded by the gorm repositories.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns the raw connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Scoped restricts queries to rows owned by one organization.
func (b Base) Scoped(ctx context.Context, orgID uuid.UUID) *gorm.DB {
	return b.DB(ctx).Where("organization_id = ?", orgID)
}

// Page runs a keyset query ordered by created_at, id and returns at most
// limit rows after the cursor, plus the cursor of the next page when more
// rows exist.
func Page[T any](query *gorm.DB, limit int, after *pagination.Cursor, key func(T) pagination.Cursor) ([]T, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	if after != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []T
	if err := query.Order("created_at ASC, id ASC").Limit(normalized + 1).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) <= normalized {
		return rows, nil, nil
	}

	rows = rows[:normalized]
	next := key(rows[normalized-1])
	return rows, &next, nil
}
