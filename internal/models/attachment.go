package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attachment is a secondary uploaded file of an order item. Multi-source
// mapping joins its extracted fields in via the internal join key.
type Attachment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrderItemID uint64 `gorm:"not null;index"` // Owning order item.

	SourcePath string `gorm:"type:varchar(512);not null"` // Storage path of the attachment.
	Filename   string `gorm:"type:varchar(255);not null"` // Original filename.

	Extracted datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Extracted field map.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
