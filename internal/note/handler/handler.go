package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/note"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/patch"
)

// RegisterNoteRoutes wires the note CRUD and patch endpoints. Conflicting
// writes answer 409 with the server's current version so clients can
// re-fetch and resolve.
func RegisterNoteRoutes(r gin.IRoutes, svc *service.Service) {
	r.GET("/api/notes", func(c *gin.Context) {
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		res, err := svc.List(c.Request.Context(), service.ListInput{
			Page:   page,
			Limit:  limit,
			Tag:    c.Query("tag"),
			Search: c.Query("search"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.POST("/api/notes", func(c *gin.Context) {
		var req service.CreateInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, n)
	})

	r.GET("/api/notes/:id", func(c *gin.Context) {
		n, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	r.PUT("/api/notes/:id", func(c *gin.Context) {
		var req service.UpdateInput
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, err := svc.Update(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	r.POST("/api/notes/:id/patch", func(c *gin.Context) {
		var req struct {
			Ops     []patch.Op `json:"ops"`
			Version int64      `json:"version"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, err := svc.Patch(c.Request.Context(), c.Param("id"), req.Ops, req.Version)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	})

	r.DELETE("/api/notes/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func writeError(c *gin.Context, err error) {
	var ce *note.ConflictError
	var ae *patch.ApplyError
	switch {
	case errors.Is(err, note.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{"error": "version conflict", "serverVersion": ce.ServerVersion})
	case errors.As(err, &ae):
		// a patch that no longer fits means the base diverged
		c.JSON(http.StatusConflict, gin.H{"error": ae.Error()})
	case errors.Is(err, service.ErrTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
