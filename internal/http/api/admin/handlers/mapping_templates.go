package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docmapper/docmapper/internal/db"
	"github.com/docmapper/docmapper/internal/mapping"
	"github.com/docmapper/docmapper/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MappingTemplateHandler manages admin CRUD endpoints for mapping templates.
type MappingTemplateHandler struct {
	db *gorm.DB // Database handle for mapping template records.
}

// NewMappingTemplateHandler constructs a mapping template handler.
func NewMappingTemplateHandler(db *gorm.DB) *MappingTemplateHandler {
	return &MappingTemplateHandler{db: db}
}

// createMappingTemplateRequest captures the payload for creating a template.
type createMappingTemplateRequest struct {
	Name      string          `json:"name"`        // Template display name.
	ItemType  string          `json:"item_type"`   // single_source or multi_source.
	CompanyID *uint64         `json:"company_id"`  // Optional company scope.
	DocTypeID *uint64         `json:"doc_type_id"` // Optional document-type scope.
	Priority  int             `json:"priority"`    // Scope conflict priority.
	Config    json.RawMessage `json:"config"`      // Mapping config document.
}

// Create validates input and inserts a new mapping template. The config is
// parsed and validated in full before anything is persisted.
func (h *MappingTemplateHandler) Create(c *gin.Context) {
	var body createMappingTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	cfg, errParse := mapping.ParseConfig(body.Config)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errParse.Error()})
		return
	}
	if errValidate := cfg.Validate(body.ItemType); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	now := time.Now().UTC()
	tmpl := models.MappingTemplate{
		Name:      strings.TrimSpace(body.Name),
		ItemType:  body.ItemType,
		CompanyID: body.CompanyID,
		DocTypeID: body.DocTypeID,
		Priority:  body.Priority,
		Config:    datatypes.JSON(body.Config),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&tmpl).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create mapping template failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatTemplate(&tmpl))
}

// List returns mapping templates filtered by query parameters.
func (h *MappingTemplateHandler) List(c *gin.Context) {
	var (
		itemTypeQ = strings.TrimSpace(c.Query("item_type"))
		companyQ  = strings.TrimSpace(c.Query("company_id"))
		nameQ     = strings.TrimSpace(c.Query("name"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.MappingTemplate{})
	if itemTypeQ != "" {
		q = q.Where("item_type = ?", itemTypeQ)
	}
	if nameQ != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(h.db, "name"), db.NormalizeLikePattern(h.db, "%"+nameQ+"%"))
	}
	if companyQ != "" {
		companyID, errParse := strconv.ParseUint(companyQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company_id"})
			return
		}
		q = q.Where("company_id IS NULL OR company_id = ?", companyID)
	}

	var rows []models.MappingTemplate
	if errFind := q.Order("priority DESC, created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list mapping templates failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatTemplate(&row))
	}
	c.JSON(http.StatusOK, gin.H{"mapping_templates": out})
}

// Get fetches a mapping template by ID.
func (h *MappingTemplateHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var tmpl models.MappingTemplate
	if errFind := h.db.WithContext(c.Request.Context()).First(&tmpl, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatTemplate(&tmpl))
}

// updateMappingTemplateRequest captures optional fields for template updates.
type updateMappingTemplateRequest struct {
	Name      *string         `json:"name"`        // Optional display name.
	ItemType  *string         `json:"item_type"`   // Optional item type.
	CompanyID *uint64         `json:"company_id"`  // Optional company scope.
	DocTypeID *uint64         `json:"doc_type_id"` // Optional document-type scope.
	Priority  *int            `json:"priority"`    // Optional priority.
	Config    json.RawMessage `json:"config"`      // Optional config document.
}

// Update validates and applies mapping template field updates.
func (h *MappingTemplateHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateMappingTemplateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var existing models.MappingTemplate
	if errFind := h.db.WithContext(c.Request.Context()).First(&existing, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	itemType := existing.ItemType
	if body.ItemType != nil {
		itemType = *body.ItemType
		updates["item_type"] = itemType
	}
	if body.CompanyID != nil {
		updates["company_id"] = *body.CompanyID
	}
	if body.DocTypeID != nil {
		updates["doc_type_id"] = *body.DocTypeID
	}
	if body.Priority != nil {
		updates["priority"] = *body.Priority
	}

	// A changed item_type re-validates the stored config even when the
	// config itself is untouched.
	configDoc := []byte(existing.Config)
	if len(body.Config) > 0 {
		configDoc = body.Config
		updates["config"] = datatypes.JSON(body.Config)
	}
	cfg, errConfig := mapping.ParseConfig(configDoc)
	if errConfig != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errConfig.Error()})
		return
	}
	if errValidate := cfg.Validate(itemType); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.MappingTemplate{}).Where("id = ?", id).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a mapping template by ID. Templates referenced by a
// mapping default cannot be removed.
func (h *MappingTemplateHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var refs int64
	if errCount := h.db.WithContext(c.Request.Context()).Model(&models.MappingDefault{}).Where("template_id = ?", id).Count(&refs).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if refs > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "template is referenced by mapping defaults"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Delete(&models.MappingTemplate{}, id)
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

// formatTemplate converts a mapping template into a response payload.
func (h *MappingTemplateHandler) formatTemplate(t *models.MappingTemplate) gin.H {
	return gin.H{
		"id":          t.ID,
		"name":        t.Name,
		"item_type":   t.ItemType,
		"company_id":  t.CompanyID,
		"doc_type_id": t.DocTypeID,
		"priority":    t.Priority,
		"config":      json.RawMessage(t.Config),
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	}
}
