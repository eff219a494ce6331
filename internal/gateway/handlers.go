package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ipvlabs/vendord/internal/auth"
	"github.com/ipvlabs/vendord/internal/license"
	"github.com/ipvlabs/vendord/internal/metrics"
)

// LicenseResolver resolves raw license keys to license records.
// Satisfied by the license service.
type LicenseResolver interface {
	GetByKey(ctx context.Context, key string) (*license.License, error)
}

// CreditMeter gates and records credit spend. Satisfied by the credits
// service.
type CreditMeter interface {
	Has(lic *license.License, required int) bool
	Use(ctx context.Context, licenseID string, amount int, note string) (*license.License, error)
}

// Handler provides the metered provider endpoints.
type Handler struct {
	service  *Service
	licenses LicenseResolver
	credits  CreditMeter
	logger   *slog.Logger
}

// NewHandler creates a new gateway handler.
func NewHandler(service *Service, licenses LicenseResolver, credits CreditMeter, logger *slog.Logger) *Handler {
	return &Handler{service: service, licenses: licenses, credits: credits, logger: logger}
}

// RegisterRoutes sets up the metered routes. Both require a license key.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transcript", h.Transcript)
	r.POST("/description", h.Description)
}

// Transcript handles POST /transcript. Cache hits cost nothing; provider
// fetches debit one credit after they succeed.
func (h *Handler) Transcript(c *gin.Context) {
	lic, ok := h.authorize(c)
	if !ok {
		return
	}

	var req TranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.service.Transcript(c.Request.Context(), req)
	if err != nil {
		h.providerError(c, err)
		return
	}

	remaining := lic.CreditsRemaining
	if !result.Cached {
		remaining = h.debit(c.Request.Context(), lic, "transcript")
	}

	c.JSON(http.StatusOK, gin.H{
		"transcript":        result,
		"credits_remaining": remaining,
	})
}

// Description handles POST /description.
func (h *Handler) Description(c *gin.Context) {
	lic, ok := h.authorize(c)
	if !ok {
		return
	}

	var req DescribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.service.Describe(c.Request.Context(), req)
	if err != nil {
		h.providerError(c, err)
		return
	}

	remaining := h.debit(c.Request.Context(), lic, "description")

	c.JSON(http.StatusOK, gin.H{
		"description":       result,
		"credits_remaining": remaining,
	})
}

// debit charges one credit for a delivered result and returns the balance
// to report. The result has already been sent upstream of the charge, so a
// failed debit cannot be surfaced to the caller; it is logged and counted
// instead, and the pre-charge balance is reported.
func (h *Handler) debit(ctx context.Context, lic *license.License, note string) int {
	updated, err := h.credits.Use(ctx, lic.ID, 1, note)
	if err != nil {
		metrics.CreditDebitFailuresTotal.Inc()
		h.logger.Error("failed to debit credit for delivered result",
			"license_id", lic.ID, "operation", note, "error", err)
		return lic.CreditsRemaining
	}
	return updated.CreditsRemaining
}

// authorize resolves the caller's license and gates on status and balance,
// writing the error response itself when a check fails.
func (h *Handler) authorize(c *gin.Context) (*license.License, bool) {
	key, ok := auth.LicenseKey(c)
	if !ok || key == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "License key required",
		})
		return nil, false
	}

	lic, err := h.licenses.GetByKey(c.Request.Context(), key)
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

	if err := lic.Usable(time.Now()); err != nil {
		code := "license_inactive"
		if errors.Is(err, license.ErrExpired) {
			code = "license_expired"
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error":   code,
			"message": err.Error(),
		})
		return nil, false
	}

	if !h.credits.Has(lic, 1) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "insufficient_credits",
			"message": "No credits remaining for this billing period",
		})
		return nil, false
	}

	return lic, true
}

// providerError maps the closed error taxonomy to HTTP statuses.
func (h *Handler) providerError(c *gin.Context, err error) {
	ge := AsError(err)
	if ge == nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "provider_error",
			"message": err.Error(),
		})
		return
	}

	status := http.StatusBadGateway
	switch {
	case ge.rotatable():
		// A rotatable error surfacing here means every key was tried.
		status = http.StatusServiceUnavailable
	case ge.Kind == KindNativeUnavailable:
		status = http.StatusNotFound
	case ge.Kind == KindJobTimeout:
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, gin.H{
		"error":   string(ge.Kind),
		"message": ge.Message,
	})
}
