package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/docmapper/docmapper/internal/mapping"
	"github.com/docmapper/docmapper/internal/storage"
	"github.com/gin-gonic/gin"
)

// MasterCSVHandler exposes read-only views of stored master CSVs.
type MasterCSVHandler struct {
	store storage.Store // Blob store holding the master CSVs.
}

// NewMasterCSVHandler constructs a master CSV handler.
func NewMasterCSVHandler(store storage.Store) *MasterCSVHandler {
	return &MasterCSVHandler{store: store}
}

// Preview returns the headers and row count of the CSV at ?path= so admins
// can sanity-check a template's master_csv_path before binding it.
func (h *MasterCSVHandler) Preview(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	preview, errPreview := mapping.PreviewMaster(c.Request.Context(), h.store, path)
	if errPreview != nil {
		switch {
		case errors.Is(errPreview, mapping.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "master csv not found"})
		case errors.Is(errPreview, mapping.ErrFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": errPreview.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "preview failed"})
		}
		return
	}
	c.JSON(http.StatusOK, preview)
}
