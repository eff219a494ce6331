// Package validation provides input validation middleware and helpers.
package validation

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// licenseKeyRegex validates issued key shapes: three or more segments
	// of five characters from the unambiguous alphabet, optionally
	// prefixed.
	licenseKeyRegex = regexp.MustCompile(`^(IPV-)?([A-HJ-NP-Z2-9]{5}-){2,4}[A-HJ-NP-Z2-9]{5}$`)
	// idRegex validates internal record IDs like lic_a1b2c3.
	idRegex = regexp.MustCompile(`^[a-z]+_[A-Za-z0-9]+$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidKeyShape checks whether a string looks like an issued license
// key. It collapses whitespace the same way lookup does, so anything it
// rejects could never match a stored key.
func IsValidKeyShape(key string) bool {
	return licenseKeyRegex.MatchString(strings.ToUpper(strings.Join(strings.Fields(key), "")))
}

// IsValidID checks if a string is a well-formed record ID.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// MaxLength checks if a field exceeds max length.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidSiteURL checks if a field parses as an http(s) URL or a bare
// hostname.
func ValidSiteURL(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // presence is enforced by binding tags
		}
		candidate := value
		if !strings.Contains(candidate, "://") {
			candidate = "https://" + candidate
		}
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: field, Message: "must be a valid site URL"}
		}
		return nil
	}
}

// IDParamMiddleware validates the :id URL parameter on routes that use it.
// Apply to admin route groups to reject malformed IDs early.
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_id",
				"message": "id must be a well-formed record identifier",
			})
			return
		}
		c.Next()
	}
}
