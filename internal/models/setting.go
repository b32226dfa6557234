package models

import (
	"encoding/json"
	"time"
)

// Setting stores a runtime configuration value as raw JSON.
type Setting struct {
	Key   string          `gorm:"type:varchar(255);primaryKey"` // Setting key.
	Value json.RawMessage `gorm:"type:jsonb"`                   // JSON-encoded value.

	UpdatedAt time.Time `gorm:"not null;index"` // Last update timestamp.
}
