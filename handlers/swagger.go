package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the notes service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>cloudnote API docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the notes API surface.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "cloudnote", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange the admin password for a bearer token",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access token returned" }, "401": { "description": "wrong password" } }
      }
    },
    "/api/notes": {
      "get": { "summary": "List notes (page, limit, tag, search)", "responses": { "200": { "description": "paginated note list" } } },
      "post": { "summary": "Create a note", "responses": { "201": { "description": "created at version 1" } } }
    },
    "/api/notes/{id}": {
      "get": { "summary": "Get a note", "responses": { "200": { "description": "note" }, "404": { "description": "not found" } } },
      "put": { "summary": "Full save at a version", "responses": { "200": { "description": "saved" }, "409": { "description": "version conflict; body carries serverVersion" } } },
      "delete": { "summary": "Delete a note", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/notes/{id}/patch": {
      "post": { "summary": "Apply diff ops at a version", "responses": { "200": { "description": "saved" }, "409": { "description": "conflict or ops no longer fit" } } }
    },
    "/api/tags": {
      "get": { "summary": "List tags with note counts", "responses": { "200": { "description": "tags" } } },
      "post": { "summary": "Create a tag", "responses": { "201": { "description": "created" } } }
    },
    "/api/shares": {
      "post": { "summary": "Publish a share link", "responses": { "201": { "description": "slug returned" } } }
    },
    "/share/{slug}": {
      "get": { "summary": "Resolve a public share link", "responses": { "200": { "description": "shared note" }, "401": { "description": "password required" }, "410": { "description": "expired" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
