package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:   ts.URL,
		AdminKey: "adm_test_key",
	}
	client := NewVendordClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_LicenseHeaderWins(t *testing.T) {
	var gotLicense, gotAdmin string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLicense = r.Header.Get("X-License-Key")
		gotAdmin = r.Header.Get("X-Admin-Key")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewVendordClient(Config{APIURL: ts.URL, AdminKey: "adm_secret"})
	_, err := client.CreditsInfo(context.Background(), "IPV-AAAAA-BBBBB-CCCCC")
	require.NoError(t, err)
	assert.Equal(t, "IPV-AAAAA-BBBBB-CCCCC", gotLicense)
	assert.Empty(t, gotAdmin, "admin key must not leak on license-keyed calls")
}

func TestClient_AdminHeaderOnAdminRoutes(t *testing.T) {
	var gotAdmin string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAdmin = r.Header.Get("X-Admin-Key")
		_, _ = w.Write([]byte(`{"licenses":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewVendordClient(Config{APIURL: ts.URL, AdminKey: "adm_secret"})
	_, err := client.ListLicenses(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "adm_secret", gotAdmin)
}

func TestClient_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "unauthorized",
			"message": "Valid X-Admin-Key header required.",
		})
	}))
	defer ts.Close()

	client := NewVendordClient(Config{APIURL: ts.URL, AdminKey: "bad"})
	_, err := client.ListLicenses(context.Background(), "", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Valid X-Admin-Key header required")
}

// ============================================================
// validate_license
// ============================================================

func TestHandleValidateLicense(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/license/info", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"license": map[string]any{
				"id":              "lic_abc",
				"status":          "active",
				"plan":            "pro",
				"billingCycle":    "monthly",
				"domain":          "example.com",
				"activationCount": 1,
				"activationLimit": 3,
			},
			"credits": map[string]any{
				"credits_remaining": 420,
				"credits_total":     600,
				"status":            "ok",
				"days_until_reset":  12,
			},
		})
	}))
	defer done()

	result, err := h.HandleValidateLicense(context.Background(), makeRequest(map[string]any{
		"license_key": "IPV-AAAAA-BBBBB-CCCCC",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "lic_abc")
	assert.Contains(t, text, "Status: active")
	assert.Contains(t, text, "pro (monthly)")
	assert.Contains(t, text, "example.com")
	assert.Contains(t, text, "1/3")
	assert.Contains(t, text, "420/600")
}

func TestHandleValidateLicense_MissingKey(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without a key")
	}))
	defer done()

	result, err := h.HandleValidateLicense(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleValidateLicense_NotFound(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "license_not_found",
			"message": "No license matches the supplied key",
		})
	}))
	defer done()

	result, err := h.HandleValidateLicense(context.Background(), makeRequest(map[string]any{
		"license_key": "IPV-AAAAA-BBBBB-XXXXX",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No license matches")
}

// ============================================================
// credits_info
// ============================================================

func TestHandleCreditsInfo(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/credits", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"credits_remaining": 30,
			"credits_total":     600,
			"credits_used":      570,
			"percentage":        5.0,
			"status":            "critical",
			"days_until_reset":  3,
		})
	}))
	defer done()

	result, err := h.HandleCreditsInfo(context.Background(), makeRequest(map[string]any{
		"license_key": "IPV-AAAAA-BBBBB-CCCCC",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "30 of 600")
	assert.Contains(t, text, "critical")
	assert.Contains(t, text, "in 3 days")
}

// ============================================================
// list_licenses
// ============================================================

func TestHandleListLicenses(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/licenses", r.URL.Path)
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"licenses": []map[string]any{
				{"id": "lic_a", "status": "active", "plan": "starter", "creditsRemaining": 10, "creditsTotal": 60},
				{"id": "lic_b", "status": "active", "plan": "pro", "creditsRemaining": 600, "creditsTotal": 600, "customerEmail": "a@b.co"},
			},
			"count": 2,
		})
	}))
	defer done()

	result, err := h.HandleListLicenses(context.Background(), makeRequest(map[string]any{
		"status": "active",
		"limit":  5,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "2 license(s)")
	assert.Contains(t, text, "lic_a")
	assert.Contains(t, text, "a@b.co")
}

func TestHandleListLicenses_Empty(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"licenses": []any{}, "count": 0})
	}))
	defer done()

	result, err := h.HandleListLicenses(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No licenses match")
}

// ============================================================
// create_license
// ============================================================

func TestHandleCreateLicense(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "pro", body["plan"])
		assert.Equal(t, "yearly", body["billing_cycle"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"license": map[string]any{
				"id":           "lic_new",
				"licenseKey":   "IPV-AAAAA-BBBBB-CCCCC",
				"plan":         "pro",
				"billingCycle": "yearly",
				"creditsTotal": 600,
			},
		})
	}))
	defer done()

	result, err := h.HandleCreateLicense(context.Background(), makeRequest(map[string]any{
		"plan":          "pro",
		"billing_cycle": "yearly",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "lic_new")
	assert.Contains(t, text, "IPV-AAAAA-BBBBB-CCCCC")
}

// ============================================================
// reset_credits / adjust_credits
// ============================================================

func TestHandleResetCredits(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/licenses/lic_abc/reset", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reset":   true,
			"message": "Credits reset to plan allowance",
		})
	}))
	defer done()

	result, err := h.HandleResetCredits(context.Background(), makeRequest(map[string]any{
		"license_id": "lic_abc",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "reset to plan allowance")
}

func TestHandleAdjustCredits(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/licenses/lic_abc/adjust", r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, float64(50), body["amount"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"license": map[string]any{"id": "lic_abc"},
			"credits": map[string]any{
				"credits_remaining": 110,
				"credits_total":     600,
			},
		})
	}))
	defer done()

	result, err := h.HandleAdjustCredits(context.Background(), makeRequest(map[string]any{
		"license_id": "lic_abc",
		"amount":     50,
		"note":       "outage goodwill",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Balance now 110 of 600")
}

func TestHandleAdjustCredits_ZeroAmount(t *testing.T) {
	h, done := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made with a zero amount")
	}))
	defer done()

	result, err := h.HandleAdjustCredits(context.Background(), makeRequest(map[string]any{
		"license_id": "lic_abc",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
