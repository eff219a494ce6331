// Package auth provides request authentication middleware.
//
// Plugin clients authenticate with their license key as the sole bearer
// credential, sent either as "Authorization: Bearer <key>" or in the
// X-License-Key header. Admin endpoints use a separate static admin key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyLicenseKey is the gin context key holding the raw license key.
	ContextKeyLicenseKey = "licenseKey"
)

// Middleware extracts the license key from the request headers and stores
// it in the gin context. It does not validate the key; handlers that need
// the license resolve it through the license service.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Authorization")
		if strings.HasPrefix(key, "Bearer ") {
			key = strings.TrimSpace(strings.TrimPrefix(key, "Bearer "))
		}
		if key == "" {
			key = strings.TrimSpace(c.GetHeader("X-License-Key"))
		}

		if key != "" {
			c.Set(ContextKeyLicenseKey, key)
		}

		c.Next()
	}
}

// RequireLicense rejects requests that carry no license key.
func RequireLicense() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyLicenseKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "License key required. Include 'Authorization: Bearer <key>' or 'X-License-Key' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests that do not carry the configured admin key
// in the X-Admin-Key header. An empty configured key disables admin routes.
func RequireAdmin(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin API is not configured.",
			})
			return
		}
		got := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Valid X-Admin-Key header required.",
			})
			return
		}
		c.Next()
	}
}

// LicenseKey returns the license key from context (if present).
func LicenseKey(c *gin.Context) (string, bool) {
	key, exists := c.Get(ContextKeyLicenseKey)
	if !exists {
		return "", false
	}
	return key.(string), true
}
