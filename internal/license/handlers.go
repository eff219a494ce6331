package license

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ipvlabs/vendord/internal/auth"
	"github.com/ipvlabs/vendord/internal/pagination"
	"github.com/ipvlabs/vendord/internal/plans"
	"github.com/ipvlabs/vendord/internal/validation"
)

// CreditsReporter summarizes a license's credit state for the info endpoint.
// Implemented by the credits service via an adapter in the server package.
type CreditsReporter interface {
	CreditsFor(lic *License) interface{}
}

// Handler provides HTTP endpoints for license operations.
type Handler struct {
	service *Service
	credits CreditsReporter
}

// NewHandler creates a new license handler.
func NewHandler(service *Service, credits CreditsReporter) *Handler {
	return &Handler{service: service, credits: credits}
}

// RegisterRoutes sets up the plugin-facing license routes. Activate and
// deactivate carry the key in the request body; info takes it from the
// auth headers or a query parameter.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/license/activate", h.Activate)
	r.POST("/license/deactivate", h.Deactivate)
	r.GET("/license/info", h.Info)
}

// RegisterAdminRoutes sets up admin-only license management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/licenses", h.Create)
	r.GET("/licenses", h.List)
	r.GET("/licenses/:id", h.Get)
	r.PUT("/licenses/:id/status", h.UpdateStatus)
	r.POST("/licenses/:id/plan", h.ChangePlan)
	r.GET("/licenses/:id/activations", h.ListActivations)
}

// Activate handles POST /license/activate
func (h *Handler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if verrs := validation.Validate(
		validation.ValidSiteURL("site_url", req.SiteURL),
		validation.MaxLength("site_name", req.SiteName, 255),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
			"fields":  verrs,
		})
		return
	}
	if !validation.IsValidKeyShape(req.LicenseKey) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "license_not_found",
			"message": "No license matches the supplied key",
		})
		return
	}

	siteName := validation.SanitizeString(req.SiteName, 255)
	lic, err := h.service.Activate(c.Request.Context(), req.LicenseKey, req.SiteURL, siteName)
	if err != nil {
		h.activationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"license": lic,
	})
}

// Deactivate handles POST /license/deactivate
func (h *Handler) Deactivate(c *gin.Context) {
	var req DeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if verrs := validation.Validate(
		validation.ValidSiteURL("site_url", req.SiteURL),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
			"fields":  verrs,
		})
		return
	}
	if !validation.IsValidKeyShape(req.LicenseKey) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "license_not_found",
			"message": "No license matches the supplied key",
		})
		return
	}

	err := h.service.Deactivate(c.Request.Context(), req.LicenseKey, req.SiteURL)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No license matches the supplied key",
			})
		case errors.Is(err, ErrDomainMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "domain_mismatch",
				"message": "This site is not the one registered to the license",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "License deactivated",
	})
}

// Info handles GET /license/info
func (h *Handler) Info(c *gin.Context) {
	key, ok := auth.LicenseKey(c)
	if !ok {
		// Legacy clients pass the key as a query parameter.
		key = c.Query("license_key")
	}
	if key == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "License key required",
		})
		return
	}

	lic, err := h.service.GetByKey(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No license matches the supplied key",
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
		"credits": h.credits.CreditsFor(lic),
	})
}

// Create handles POST /admin/licenses
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	lic, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrKeyspaceExhausted) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "key_generation_failed",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"license": lic})
}

// List handles GET /admin/licenses
func (h *Handler) List(c *gin.Context) {
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}

	limit := intQuery(c, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filter := ListFilter{
		Status: Status(c.Query("status")),
		Plan:   plans.Plan(c.Query("plan")),
		Limit:  limit + 1,
		Offset: intQuery(c, "offset", 0),
		Before: cursor,
	}

	licenses, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	page, next, more := pagination.Page(licenses, limit, func(l *License) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})

	c.JSON(http.StatusOK, gin.H{
		"licenses":    page,
		"count":       len(page),
		"next_cursor": next,
		"has_more":    more,
	})
}

// Get handles GET /admin/licenses/:id
func (h *Handler) Get(c *gin.Context) {
	lic, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
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
	c.JSON(http.StatusOK, gin.H{"license": lic})
}

// UpdateStatus handles PUT /admin/licenses/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	lic, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), Status(req.Status))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No such license",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"license": lic})
}

// ChangePlan handles POST /admin/licenses/:id/plan
func (h *Handler) ChangePlan(c *gin.Context) {
	var req struct {
		Plan         string `json:"plan" binding:"required"`
		BillingCycle string `json:"billing_cycle" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	lic, result, err := h.service.ChangePlan(c.Request.Context(), c.Param("id"),
		plans.Plan(req.Plan), plans.BillingCycle(req.BillingCycle))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "license_not_found",
				"message": "No such license",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if !result.Allowed {
		c.JSON(http.StatusConflict, gin.H{
			"error":   string(result.Kind),
			"message": result.Reason,
			"change":  result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"license": lic,
		"change":  result,
	})
}

// ListActivations handles GET /admin/licenses/:id/activations
func (h *Handler) ListActivations(c *gin.Context) {
	acts, err := h.service.Activations(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activations": acts,
		"count":       len(acts),
	})
}

func (h *Handler) activationError(c *gin.Context, err error) {
	var limitErr *ActivationLimitError
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "license_not_found",
			"message": "No license matches the supplied key",
		})
	case errors.Is(err, ErrInactive):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "license_inactive",
			"message": "License is not active",
		})
	case errors.Is(err, ErrExpired):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "license_expired",
			"message": "License has expired",
		})
	case errors.As(err, &limitErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "activation_limit_reached",
			"message": limitErr.Error(),
			"current": limitErr.Count,
			"limit":   limitErr.Limit,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}

func intQuery(c *gin.Context, name string, def int) int {
	if raw := c.Query(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}
