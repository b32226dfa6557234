package models

import (
	"time"

	"gorm.io/datatypes"
)

// TemplateDocument stores an uploaded template.json used for special CSV
// output. Documents are validated before persistence.
type TemplateDocument struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name    string `gorm:"type:varchar(255);not null;index"` // Template name from the document.
	Version string `gorm:"type:varchar(64);not null"`        // Version string, storage-key safe.

	Document datatypes.JSON `gorm:"type:jsonb;not null"` // Raw template.json payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
