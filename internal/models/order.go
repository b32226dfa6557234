package models

import "time"

// Order statuses. Transitions: pending -> processing -> done | failed.
// A failed order may be re-run, moving it back through processing.
const (
	// OrderStatusPending marks an order waiting for its first mapping run.
	OrderStatusPending = "pending"
	// OrderStatusProcessing marks an order with an active mapping run.
	OrderStatusProcessing = "processing"
	// OrderStatusDone marks an order whose deliverable has been produced.
	OrderStatusDone = "done"
	// OrderStatusFailed marks an order whose mapping run aborted.
	OrderStatusFailed = "failed"
)

// Order groups the uploaded items and attachments of one mapping run.
type Order struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompanyID uint64 `gorm:"not null;index"` // Owning company.
	DocTypeID uint64 `gorm:"not null;index"` // Document type of the uploaded files.

	Status        string `gorm:"type:varchar(32);not null;default:'pending';index"` // Lifecycle status.
	FailureReason string `gorm:"type:text"`                                         // Message preserved for user display on failure.

	OutputFormat string `gorm:"type:varchar(16);not null;default:'csv'"` // Deliverable format: csv or xlsx.
	OutputPath   string `gorm:"type:varchar(512)"`                       // Storage path of the produced deliverable.

	// TemplateDocumentID selects an uploaded template.json for special CSV
	// output; null renders the plain mapped table.
	TemplateDocumentID *uint64 `gorm:"index"` // Optional template document.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
