package models

import (
	"time"

	"gorm.io/datatypes"
)

// MappingTemplate is a reusable mapping configuration: join keys, aliases,
// and normalization policy independent of any single order.
type MappingTemplate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:varchar(255);not null"`      // Template display name.
	ItemType string `gorm:"type:varchar(32);not null;index"` // single_source or multi_source.

	CompanyID *uint64 `gorm:"index"` // Optional company scope; null means any.
	DocTypeID *uint64 `gorm:"index"` // Optional document-type scope; null means any.

	// Priority breaks ties when several templates match an order's scope;
	// higher wins.
	Priority int `gorm:"not null;default:0"` // Scope conflict priority.

	Config datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Mapping config document.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
