package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/webident/loginza/internal/returnpath"
	"github.com/webident/loginza/internal/widget"
	"github.com/webident/loginza/pkg/logger"
)

// widgetSessionCookie ties a rendered widget to the return path captured for
// the visitor, so the callback can send them back where they came from.
const widgetSessionCookie = "loginza_sid"

// WidgetHandler renders login-widget HTML fragments
type WidgetHandler struct {
	renderer *widget.Renderer
	paths    returnpath.Store
}

func NewWidgetHandler(r *widget.Renderer, paths returnpath.Store) *WidgetHandler {
	return &WidgetHandler{renderer: r, paths: paths}
}

// Register routes under /widget
func (h *WidgetHandler) Register(rg *gin.RouterGroup) {
	w := rg.Group("/widget")
	w.GET("/:kind", h.Render)
}

// Render emits one of the four widget fragments. Query params: caption, lang,
// provider, providers_set, width, height, id, from (the page to return to
// after login; falls back to the Referer path).
func (h *WidgetHandler) Render(c *gin.Context) {
	kind, err := widget.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	opts := widget.Options{
		Lang:         c.Query("lang"),
		Provider:     c.Query("provider"),
		ProvidersSet: c.Query("providers_set"),
		Width:        c.Query("width"),
		Height:       c.Query("height"),
		ID:           c.Query("id"),
	}

	// capture the page the visitor came from, keyed by a widget session cookie
	sid, err := c.Cookie(widgetSessionCookie)
	if err != nil || sid == "" {
		sid = newSessionID()
		c.SetCookie(widgetSessionCookie, sid, 3600, "/", "", false, true)
	}
	if from := returnPathOf(c); from != "" {
		if err := h.paths.Save(c.Request.Context(), sid, from); err != nil {
			logger.Warnf("failed to record return path %q: %v", from, err)
		}
	}

	html, err := h.renderer.Render(kind, c.Query("caption"), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func returnPathOf(c *gin.Context) string {
	if from := c.Query("from"); from != "" {
		return from
	}
	if ref := c.Request.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil {
			return u.Path
		}
	}
	return ""
}

func newSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
