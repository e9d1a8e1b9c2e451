package handlers

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/storage"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/logger"
)

const maxImageSize = 10 << 20 // 10 MiB

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageHandler serves note image attachments backed by MinIO
type ImageHandler struct {
	store *storage.MinIOStorage
}

func NewImageHandler(store *storage.MinIOStorage) *ImageHandler {
	return &ImageHandler{store: store}
}

func (h *ImageHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/api/images")
	g.POST("", h.Upload)
	g.GET("/:key/url", h.PresignedURL)
	g.DELETE("/:key", h.Delete)
}

// Upload accepts a multipart file and stores it under a generated key
func (h *ImageHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if file.Size > maxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	ext := strings.ToLower(path.Ext(file.Filename))
	key := uuid.NewString() + ext
	if err := h.store.UploadFile(c.Request.Context(), key, f, file.Size, contentType); err != nil {
		logger.Errorf("image upload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// PresignedURL returns a short-lived download URL for an image key
func (h *ImageHandler) PresignedURL(c *gin.Context) {
	key := c.Param("key")
	u, err := h.store.GetPresignedURL(c.Request.Context(), key, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

// Delete removes an image
func (h *ImageHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteFile(c.Request.Context(), c.Param("key")); err != nil {
		logger.Errorf("image delete failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
