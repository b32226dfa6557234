package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderItem is one primary uploaded file of an order, together with the
// flat field map the extraction collaborator produced for it.
type OrderItem struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OrderID uint64 `gorm:"not null;index"` // Owning order.

	ItemType   string `gorm:"type:varchar(32);not null"`  // single_source or multi_source.
	SourcePath string `gorm:"type:varchar(512);not null"` // Storage path of the uploaded file.
	Filename   string `gorm:"type:varchar(255);not null"` // Original filename.

	Extracted datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Extracted field map.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
