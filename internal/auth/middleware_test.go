package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Middleware() ---

func TestMiddleware_BearerHeader_SetsContext(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "Bearer ABCDE-FGHJK-LMNPQ")

	Middleware()(c)

	key, exists := c.Get(ContextKeyLicenseKey)
	if !exists {
		t.Fatal("Expected license key to be set in context")
	}
	if key.(string) != "ABCDE-FGHJK-LMNPQ" {
		t.Errorf("Expected ABCDE-FGHJK-LMNPQ, got %s", key.(string))
	}
}

func TestMiddleware_XLicenseKeyFallback(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("X-License-Key", "ABCDE-FGHJK-LMNPQ")

	Middleware()(c)

	key, exists := c.Get(ContextKeyLicenseKey)
	if !exists {
		t.Fatal("Expected license key set via X-License-Key header")
	}
	if key.(string) != "ABCDE-FGHJK-LMNPQ" {
		t.Errorf("Unexpected key %s", key.(string))
	}
}

func TestMiddleware_BearerWins_OverXLicenseKey(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "Bearer FROM-BEARER")
	c.Request.Header.Set("X-License-Key", "FROM-FALLBACK")

	Middleware()(c)

	key, _ := c.Get(ContextKeyLicenseKey)
	if key.(string) != "FROM-BEARER" {
		t.Errorf("Expected Authorization header to win, got %s", key.(string))
	}
}

func TestMiddleware_MissingHeader_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)

	Middleware()(c)

	if _, exists := c.Get(ContextKeyLicenseKey); exists {
		t.Error("Expected no license key in context when headers missing")
	}
	if c.IsAborted() {
		t.Error("Middleware should not abort when headers missing")
	}
}

// --- RequireLicense() ---

func TestRequireLicense_NoKey_Returns401(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)

	RequireLicense()(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
	if !c.IsAborted() {
		t.Error("Expected request to be aborted")
	}
}

func TestRequireLicense_WithKey_Passes(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Set(ContextKeyLicenseKey, "ABCDE-FGHJK-LMNPQ")

	RequireLicense()(c)

	if c.IsAborted() {
		t.Error("Expected request to pass through with key present")
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

// --- RequireAdmin() ---

func TestRequireAdmin_CorrectKey_Passes(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/licenses", nil)
	c.Request.Header.Set("X-Admin-Key", "supersecret123")

	RequireAdmin("supersecret123")(c)

	if c.IsAborted() {
		t.Error("Expected correct admin key to pass")
	}
}

func TestRequireAdmin_WrongKey_Returns401(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/licenses", nil)
	c.Request.Header.Set("X-Admin-Key", "wrongsecret")

	RequireAdmin("supersecret123")(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong key, got %d", w.Code)
	}
}

func TestRequireAdmin_MissingHeader_Returns401(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/licenses", nil)

	RequireAdmin("supersecret123")(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for missing header, got %d", w.Code)
	}
}

func TestRequireAdmin_Unconfigured_Returns403(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/admin/licenses", nil)
	c.Request.Header.Set("X-Admin-Key", "anything")

	RequireAdmin("")(c)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 when admin API unconfigured, got %d", w.Code)
	}
}

// --- Helpers ---

func TestLicenseKey_Present(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(ContextKeyLicenseKey, "ABCDE-FGHJK-LMNPQ")

	key, ok := LicenseKey(c)
	if !ok {
		t.Fatal("Expected LicenseKey to return true")
	}
	if key != "ABCDE-FGHJK-LMNPQ" {
		t.Errorf("Unexpected key %s", key)
	}
}

func TestLicenseKey_Missing(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	_, ok := LicenseKey(c)
	if ok {
		t.Error("Expected LicenseKey to return false when no key in context")
	}
}
