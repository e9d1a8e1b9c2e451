package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudnote/cloudnote/backend/go-services/internal/config"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/tokens"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/logger"
)

// LoginRequest carries the single-user admin password
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.GET("/verify", h.Verify)
}

// Login checks the admin password and returns a bearer token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.cfg.Auth.AdminPassword == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login disabled: no admin password configured"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Auth.AdminPassword)) != 1 {
		logger.Warnf("rejected login attempt from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, "admin", h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken": access,
		"expiresIn":   int64(h.cfg.JWT.AccessTokenTTL.Seconds()),
	})
}

// Verify reports whether the presented bearer token is still valid
func (h *AuthHandler) Verify(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
		return
	}
	sub, err := tokens.ParseAccessToken(h.cfg, auth[len(prefix):])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "sub": sub})
}
