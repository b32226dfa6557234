package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docmapper/docmapper/internal/mapping"
	"github.com/docmapper/docmapper/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MappingDefaultHandler manages the per-scope template bindings.
type MappingDefaultHandler struct {
	db *gorm.DB // Database handle for mapping default records.
}

// NewMappingDefaultHandler constructs a mapping default handler.
func NewMappingDefaultHandler(db *gorm.DB) *MappingDefaultHandler {
	return &MappingDefaultHandler{db: db}
}

// upsertMappingDefaultRequest captures the payload for binding a scope to a
// template.
type upsertMappingDefaultRequest struct {
	CompanyID      uint64          `json:"company_id"`      // Company scope.
	DocTypeID      uint64          `json:"doc_type_id"`     // Document-type scope.
	ItemType       string          `json:"item_type"`       // single_source or multi_source.
	TemplateID     uint64          `json:"template_id"`     // Referenced mapping template.
	ConfigOverride json.RawMessage `json:"config_override"` // Optional partial config override.
}

// Upsert creates or replaces the default for a (company, doctype,
// item_type) triple. The merged effective config is validated before
// anything is persisted so a bad override can never be saved.
func (h *MappingDefaultHandler) Upsert(c *gin.Context) {
	var body upsertMappingDefaultRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.CompanyID == 0 || body.DocTypeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id and doc_type_id are required"})
		return
	}

	var tmpl models.MappingTemplate
	if errFind := h.db.WithContext(c.Request.Context()).First(&tmpl, body.TemplateID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if body.ItemType != tmpl.ItemType {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_type does not match template"})
		return
	}

	override := body.ConfigOverride
	if len(override) == 0 {
		override = json.RawMessage(`{}`)
	}
	effective, errMerge := mapping.ResolveEffectiveConfig([]byte(tmpl.Config), []byte(override))
	if errMerge != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMerge.Error()})
		return
	}
	if errValidate := effective.Validate(body.ItemType); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	now := time.Now().UTC()
	def := models.MappingDefault{
		CompanyID:      body.CompanyID,
		DocTypeID:      body.DocTypeID,
		ItemType:       body.ItemType,
		TemplateID:     body.TemplateID,
		ConfigOverride: datatypes.JSON(override),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var existing models.MappingDefault
	errFind := h.db.WithContext(c.Request.Context()).
		Where("company_id = ? AND doc_type_id = ? AND item_type = ?", body.CompanyID, body.DocTypeID, body.ItemType).
		First(&existing).Error
	switch {
	case errFind == nil:
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(&existing).Updates(map[string]any{
			"template_id":     body.TemplateID,
			"config_override": datatypes.JSON(override),
			"updated_at":      now,
		}).Error; errUpdate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update mapping default failed"})
			return
		}
		def.ID = existing.ID
		def.CreatedAt = existing.CreatedAt
		c.JSON(http.StatusOK, h.formatDefault(&def))
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		if errCreate := h.db.WithContext(c.Request.Context()).Create(&def).Error; errCreate != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create mapping default failed"})
			return
		}
		c.JSON(http.StatusCreated, h.formatDefault(&def))
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}

// List returns mapping defaults filtered by query parameters.
func (h *MappingDefaultHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.MappingDefault{})
	if companyQ := strings.TrimSpace(c.Query("company_id")); companyQ != "" {
		companyID, errParse := strconv.ParseUint(companyQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company_id"})
			return
		}
		q = q.Where("company_id = ?", companyID)
	}

	var rows []models.MappingDefault
	if errFind := q.Order("company_id ASC, doc_type_id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list mapping defaults failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatDefault(&row))
	}
	c.JSON(http.StatusOK, gin.H{"mapping_defaults": out})
}

// Delete removes a mapping default by ID.
func (h *MappingDefaultHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.MappingDefault{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// formatDefault converts a mapping default into a response payload.
func (h *MappingDefaultHandler) formatDefault(d *models.MappingDefault) gin.H {
	return gin.H{
		"id":              d.ID,
		"company_id":      d.CompanyID,
		"doc_type_id":     d.DocTypeID,
		"item_type":       d.ItemType,
		"template_id":     d.TemplateID,
		"config_override": json.RawMessage(d.ConfigOverride),
		"created_at":      d.CreatedAt,
		"updated_at":      d.UpdatedAt,
	}
}
