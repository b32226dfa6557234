package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/docmapper/docmapper/internal/mapping"
	"github.com/docmapper/docmapper/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OrderHandler exposes order inspection and run triggering.
type OrderHandler struct {
	db     *gorm.DB        // Database handle for order records.
	runner *mapping.Runner // Executes mapping runs.
}

// NewOrderHandler constructs an order handler.
func NewOrderHandler(db *gorm.DB, runner *mapping.Runner) *OrderHandler {
	return &OrderHandler{db: db, runner: runner}
}

// List returns orders filtered by status and company, newest first.
func (h *OrderHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Order{})
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}
	if companyQ := strings.TrimSpace(c.Query("company_id")); companyQ != "" {
		companyID, errParse := strconv.ParseUint(companyQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company_id"})
			return
		}
		q = q.Where("company_id = ?", companyID)
	}

	var rows []models.Order
	if errFind := q.Order("updated_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list orders failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatOrder(&row))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// Get returns one order with its item count.
func (h *OrderHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var order models.Order
	if errFind := h.db.WithContext(c.Request.Context()).First(&order, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var itemCount int64
	if errCount := h.db.WithContext(c.Request.Context()).
		Model(&models.OrderItem{}).
		Where("order_id = ?", order.ID).
		Count(&itemCount).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := h.formatOrder(&order)
	out["item_count"] = itemCount
	c.JSON(http.StatusOK, out)
}

// Run triggers a mapping run for the order and waits for it to finish.
// A second trigger while a run is active gets a conflict.
func (h *OrderHandler) Run(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if errRun := h.runner.RunOrder(c.Request.Context(), id); errRun != nil {
		switch {
		case errors.Is(errRun, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errRun, mapping.ErrOrderBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "order is already processing"})
		case errors.Is(errRun, mapping.ErrNoTemplate):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no mapping template matches this order"})
		default:
			log.WithError(errRun).Warnf("mapping run failed for order %d", id)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errRun.Error()})
		}
		return
	}

	var order models.Order
	if errFind := h.db.WithContext(c.Request.Context()).First(&order, id).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatOrder(&order))
}

// formatOrder converts an order into a response payload.
func (h *OrderHandler) formatOrder(o *models.Order) gin.H {
	return gin.H{
		"id":                   o.ID,
		"company_id":           o.CompanyID,
		"doc_type_id":          o.DocTypeID,
		"status":               o.Status,
		"failure_reason":       o.FailureReason,
		"output_format":        o.OutputFormat,
		"output_path":          o.OutputPath,
		"template_document_id": o.TemplateDocumentID,
		"created_at":           o.CreatedAt,
		"updated_at":           o.UpdatedAt,
	}
}
