package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/docmapper/docmapper/internal/models"
	"github.com/docmapper/docmapper/internal/template"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplateDocumentHandler manages uploaded template.json documents.
type TemplateDocumentHandler struct {
	db *gorm.DB // Database handle for template document records.
}

// NewTemplateDocumentHandler constructs a template document handler.
func NewTemplateDocumentHandler(db *gorm.DB) *TemplateDocumentHandler {
	return &TemplateDocumentHandler{db: db}
}

// Create validates and stores a template document. The request body is the
// raw template.json; name and version come from the document itself.
func (h *TemplateDocumentHandler) Create(c *gin.Context) {
	body, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	// Mapped columns are unknown at upload; placeholder references are
	// checked against them when a run renders the document.
	doc, errParse := template.ParseDocument(body, nil)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errParse.Error()})
		return
	}

	record := models.TemplateDocument{
		Name:     doc.TemplateName,
		Version:  doc.Version,
		Document: datatypes.JSON(body),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&record).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create template document failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatDocument(&record, false))
}

// List returns stored template documents without their payloads.
func (h *TemplateDocumentHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.TemplateDocument{})
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		q = q.Where("name = ?", name)
	}

	var rows []models.TemplateDocument
	if errFind := q.Order("name ASC, version ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list template documents failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatDocument(&row, false))
	}
	c.JSON(http.StatusOK, gin.H{"template_documents": out})
}

// Get returns one template document including its payload.
func (h *TemplateDocumentHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var record models.TemplateDocument
	if errFind := h.db.WithContext(c.Request.Context()).First(&record, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatDocument(&record, true))
}

// Delete removes a template document. Deletion is refused while any order
// still references the document.
func (h *TemplateDocumentHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var refs int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.Order{}).
		Where("template_document_id = ?", id).
		Count(&refs).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if refs > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "template document is referenced by orders"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Delete(&models.TemplateDocument{}, id)
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

// formatDocument converts a template document into a response payload.
func (h *TemplateDocumentHandler) formatDocument(d *models.TemplateDocument, withPayload bool) gin.H {
	out := gin.H{
		"id":         d.ID,
		"name":       d.Name,
		"version":    d.Version,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}
	if withPayload {
		out["document"] = json.RawMessage(d.Document)
	}
	return out
}
