package models

import (
	"time"

	"gorm.io/datatypes"
)

// MappingDefault binds a (company, document type) pair to a template, with
// an optional partial config override layered on top. Exactly one default
// exists per (company, doctype, item_type) triple; writes upsert on it.
type MappingDefault struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompanyID uint64 `gorm:"not null;uniqueIndex:idx_mapping_defaults_scope"`                   // Company scope.
	DocTypeID uint64 `gorm:"not null;uniqueIndex:idx_mapping_defaults_scope"`                   // Document-type scope.
	ItemType  string `gorm:"type:varchar(32);not null;uniqueIndex:idx_mapping_defaults_scope"` // single_source or multi_source.

	TemplateID     uint64         `gorm:"not null;index"`                   // Referenced mapping template.
	ConfigOverride datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Partial config override.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
