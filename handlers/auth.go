package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/webident/loginza/internal/config"
	"github.com/webident/loginza/internal/identity"
	"github.com/webident/loginza/internal/payload"
	"github.com/webident/loginza/internal/returnpath"
	"github.com/webident/loginza/internal/sessions"
	"github.com/webident/loginza/internal/tokens"
	"github.com/webident/loginza/internal/usermap"
	"github.com/webident/loginza/internal/users"
	"github.com/webident/loginza/pkg/logger"
	"github.com/webident/loginza/pkg/middleware"
)

// maxCallbackBody caps the broker payload size.
const maxCallbackBody = 1 << 20

// AuthHandler holds dependencies for the broker callback and session routes
type AuthHandler struct {
	cfg         *config.Config
	identities  *identity.Store
	maps        *usermap.Service
	usersRepo   users.Repository
	sessionsSvc *sessions.Service
	paths       returnpath.Store
}

func NewAuthHandler(cfg *config.Config, ids *identity.Store, maps *usermap.Service, u users.Repository, s *sessions.Service, paths returnpath.Store) *AuthHandler {
	return &AuthHandler{cfg: cfg, identities: ids, maps: maps, usersRepo: u, sessionsSvc: s, paths: paths}
}

// Register routes under /auth. Mutating map routes require a verified token
// when a verifier is provided.
func (h *AuthHandler) Register(rg *gin.RouterGroup, ver middleware.Verifier) {
	a := rg.Group("/auth")
	a.POST("/callback", h.Callback)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)

	p := rg.Group("/auth")
	if ver != nil {
		p.Use(middleware.AuthMiddleware(ver))
	}
	p.POST("/verify", h.Verify)
	p.DELETE("/mappings/:id", h.DeleteMapping)
}

// Callback consumes the verified payload the broker posts after a login:
// upsert the identity, find-or-create the local account mapping, sync profile
// attributes, then hand out tokens and the captured return path.
func (h *AuthHandler) Callback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ident, err := h.identities.Upsert(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, payload.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}
		logger.Errorf("identity upsert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity upsert failed"})
		return
	}

	req := &usermap.RequestInfo{
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Path:       c.Request.URL.Path,
	}
	m, err := h.maps.ForIdentity(c.Request.Context(), ident, req)
	if err != nil {
		logger.Errorf("mapping resolution error for identity %q: %v", ident.Identity, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping resolution failed", "details": err.Error()})
		return
	}

	u, err := h.usersRepo.GetByID(c.Request.Context(), m.UserID)
	if err != nil || u == nil {
		logger.Errorf("mapped user %d lookup failed: %v", m.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}

	if err := h.maps.ApplyProfile(c.Request.Context(), ident, u); err != nil {
		logger.Errorf("profile sync error for user %d: %v", u.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile sync failed"})
		return
	}

	rft, err := h.sessionsSvc.CreateSession(c.Request.Context(), u.ID, h.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}

	// where the user was before heading into the login widget
	returnPath := "/"
	if sid, err := c.Cookie(widgetSessionCookie); err == nil && sid != "" {
		if p, err := h.paths.Get(c.Request.Context(), sid); err == nil {
			returnPath = p
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"user":         u,
		"mapping":      m,
		"returnPath":   returnPath,
		"expiresIn":    int(h.cfg.JWT.AccessTokenTTL.Seconds()),
	})
}

// Refresh accepts a refresh token and returns a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.sessionsSvc.ValidateRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	u, err := h.usersRepo.GetByID(c.Request.Context(), sess.UserID)
	if err != nil || u == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, u, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access, "expires_in": int(h.cfg.JWT.AccessTokenTTL.Seconds())})
}

// Logout invalidates the refresh token and (optionally) blacklists the current access token
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// If the client supplied an Authorization Bearer token, attempt to blacklist it
	auth := c.GetHeader("Authorization")
	if auth != "" {
		var at string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &at); n == 1 {
			if exp, err := parseExpFromJWT(at); err == nil {
				ttl := time.Until(exp)
				if ttl > 0 {
					if err := sessions.BlacklistAccessToken(c.Request.Context(), at, ttl); err != nil {
						c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
						return
					}
				}
			}
		}
	}

	if err := h.sessionsSvc.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Verify marks a mapping as confirmed active.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req struct {
		MappingID int64 `json:"mapping_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.maps.SetVerified(c.Request.Context(), req.MappingID, true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify mapping"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verified"})
}

// DeleteMapping removes a mapping; its identity record is deleted with it.
func (h *AuthHandler) DeleteMapping(c *gin.Context) {
	var id int64
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mapping id"})
		return
	}
	if err := h.maps.DeleteMapping(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete mapping"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// parseExpFromJWT decodes the JWT payload and returns the `exp` claim as time.Time.
// This performs payload-only parsing (no signature verification) and is suitable
// for computing remaining TTLs for blacklisting purposes.
func parseExpFromJWT(tok string) (time.Time, error) {
	parts := strings.Split(tok, ".")
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("invalid token")
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		// try standard base64 (pad) as a fallback
		b, err = base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return time.Time{}, err
		}
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(b, &claims); err != nil {
		return time.Time{}, err
	}
	v, ok := claims["exp"]
	if !ok {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	switch vv := v.(type) {
	case float64:
		return time.Unix(int64(vv), 0), nil
	case json.Number:
		i64, err := vv.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(i64, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported exp type %T", v)
	}
}
