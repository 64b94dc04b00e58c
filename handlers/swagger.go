package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>loginza — Swagger</title>
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

// Minimal OpenAPI document describing the service endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "loginza", "version": "v0.1.0" },
  "paths": {
    "/auth/callback": {
      "post": {
        "summary": "Broker callback: upsert identity and resolve the account mapping",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["identity","provider"],"properties":{"identity":{"type":"string"},"provider":{"type":"string"},"email":{"type":"string"},"nickname":{"type":"string"},"name":{"type":"object"},"full_name":{"type":"string"},"photo":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens, user and return path" }, "400": { "description": "invalid payload" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/verify": {
      "post": { "summary": "Mark a mapping verified", "responses": { "200": { "description": "verified" } } }
    },
    "/auth/mappings/{id}": {
      "delete": { "summary": "Delete a mapping and its identity", "responses": { "200": { "description": "deleted" } } }
    },
    "/widget/{kind}": {
      "get": { "summary": "Render a login widget fragment (iframe|button|icons|string)", "responses": { "200": { "description": "HTML fragment" }, "404": { "description": "unknown kind" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Get user info", "responses": { "200": { "description": "user or claims" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
