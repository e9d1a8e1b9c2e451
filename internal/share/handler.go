package share

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
)

// RegisterShareRoutes wires share management. These sit behind auth.
func RegisterShareRoutes(r gin.IRoutes, svc *Service) {
	r.GET("/api/shares", func(c *gin.Context) {
		shares, err := svc.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		c.JSON(http.StatusOK, shares)
	})

	r.POST("/api/shares", func(c *gin.Context) {
		var req struct {
			NoteID      string `json:"noteId"`
			CustomAlias string `json:"customAlias"`
			Password    string `json:"password"`
			ExpiresIn   int64  `json:"expiresInSeconds"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sh, err := svc.Create(c.Request.Context(), CreateInput{
			NoteID:      req.NoteID,
			CustomAlias: req.CustomAlias,
			Password:    req.Password,
			ExpiresIn:   time.Duration(req.ExpiresIn) * time.Second,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sh)
	})

	r.DELETE("/api/shares/:slug", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("slug")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// RegisterPublicShareRoutes wires the unauthenticated resolver. The
// password, when required, travels in the X-Share-Password header.
func RegisterPublicShareRoutes(r gin.IRoutes, svc *Service) {
	r.GET("/share/:slug", func(c *gin.Context) {
		n, err := svc.Resolve(c.Request.Context(), c.Param("slug"), c.GetHeader("X-Share-Password"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"title":     n.Title,
			"content":   n.Content,
			"updatedAt": n.UpdatedAt,
		})
	})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, note.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, ErrPasswordRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBadPassword):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBadAlias), errors.Is(err, ErrAliasTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
