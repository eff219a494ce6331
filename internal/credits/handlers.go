package credits

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ipvlabs/vendord/internal/auth"
	"github.com/ipvlabs/vendord/internal/license"
)

// LicenseResolver resolves raw license keys to license records.
// Satisfied by the license service.
type LicenseResolver interface {
	GetByKey(ctx context.Context, key string) (*license.License, error)
}

// Handler provides HTTP endpoints for credit queries and admin operations.
type Handler struct {
	service  *Service
	resolver LicenseResolver
}

// NewHandler creates a new credits handler.
func NewHandler(service *Service, resolver LicenseResolver) *Handler {
	return &Handler{service: service, resolver: resolver}
}

// RegisterRoutes sets up the plugin-facing credit routes. Both resolve the
// calling license from the auth headers.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/credits", h.Info)
	r.GET("/usage", h.Usage)
}

// RegisterAdminRoutes sets up admin-only credit management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/licenses/:id/reset", h.Reset)
	r.POST("/licenses/:id/adjust", h.Adjust)
	r.GET("/licenses/:id/ledger", h.Ledger)
	r.POST("/reset-all", h.ResetAll)
}

// Info handles GET /credits
func (h *Handler) Info(c *gin.Context) {
	lic, ok := h.resolveLicense(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.service.InfoFor(lic))
}

// Usage handles GET /usage
func (h *Handler) Usage(c *gin.Context) {
	lic, ok := h.resolveLicense(c)
	if !ok {
		return
	}

	stats, err := h.service.Usage(c.Request.Context(), lic.ID, c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	total := 0
	for _, s := range stats {
		total += s.Credits
	}

	c.JSON(http.StatusOK, gin.H{
		"usage": stats,
		"total": total,
	})
}

// Reset handles POST /admin/licenses/:id/reset
func (h *Handler) Reset(c *gin.Context) {
	reset, err := h.service.ResetLicense(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No such license",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reset":   reset,
		"message": resetMessage(reset),
	})
}

// Adjust handles POST /admin/licenses/:id/adjust
func (h *Handler) Adjust(c *gin.Context) {
	var req struct {
		Amount int    `json:"amount" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	lic, err := h.service.Adjust(c.Request.Context(), c.Param("id"), req.Amount, req.Note)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No such license",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"license": lic,
		"credits": h.service.InfoFor(lic),
	})
}

// Ledger handles GET /admin/licenses/:id/ledger
func (h *Handler) Ledger(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := h.service.Ledger(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// ResetAll handles POST /admin/reset-all
func (h *Handler) ResetAll(c *gin.Context) {
	count, err := h.service.ResetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": count})
}

// resolveLicense loads the license record behind the caller's key, writing
// the error response itself when that fails.
func (h *Handler) resolveLicense(c *gin.Context) (*license.License, bool) {
	key, ok := auth.LicenseKey(c)
	if !ok || key == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "License key required",
		})
		return nil, false
	}

	lic, err := h.resolver.GetByKey(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No license matches the supplied key",
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return nil, false
	}
	return lic, true
}

func resetMessage(reset bool) string {
	if reset {
		return "Credits reset"
	}
	return "Subscription inactive, license cancelled"
}
