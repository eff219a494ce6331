package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the vendord API.
type Config struct {
	APIURL   string // Base URL, e.g. "http://localhost:8080"
	AdminKey string // Admin API key for management tools
}

// VendordClient is a pure HTTP client for the vendord API.
type VendordClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewVendordClient creates a new client for the vendord API.
func NewVendordClient(cfg Config) *VendordClient {
	return &VendordClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the service.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request and returns the response body. A non-empty
// licenseKey is sent as the license header; admin routes use the admin key.
func (c *VendordClient) doRequest(ctx context.Context, method, path string, query url.Values, body any, licenseKey string) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if licenseKey != "" {
		req.Header.Set("X-License-Key", licenseKey)
	} else if c.cfg.AdminKey != "" {
		req.Header.Set("X-Admin-Key", c.cfg.AdminKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// LicenseInfo returns the license record and credit summary for a key.
func (c *VendordClient) LicenseInfo(ctx context.Context, licenseKey string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/license/info", nil, nil, licenseKey)
}

// CreditsInfo returns the credit balance for a key.
func (c *VendordClient) CreditsInfo(ctx context.Context, licenseKey string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/credits", nil, nil, licenseKey)
}

// ListLicenses lists licenses, optionally filtered by status and plan.
func (c *VendordClient) ListLicenses(ctx context.Context, status, plan string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if plan != "" {
		q.Set("plan", plan)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/v1/admin/licenses", q, nil, "")
}

// CreateLicense issues a new license on the given plan.
func (c *VendordClient) CreateLicense(ctx context.Context, plan, billingCycle, email string) (json.RawMessage, error) {
	body := map[string]string{"plan": plan}
	if billingCycle != "" {
		body["billing_cycle"] = billingCycle
	}
	if email != "" {
		body["customer_email"] = email
	}
	return c.doRequest(ctx, http.MethodPost, "/api/v1/admin/licenses", nil, body, "")
}

// ResetCredits resets a license's monthly credit allowance.
func (c *VendordClient) ResetCredits(ctx context.Context, licenseID string) (json.RawMessage, error) {
	path := "/api/v1/admin/licenses/" + licenseID + "/reset"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil, "")
}

// AdjustCredits grants or removes credits on a license.
func (c *VendordClient) AdjustCredits(ctx context.Context, licenseID string, amount int, note string) (json.RawMessage, error) {
	path := "/api/v1/admin/licenses/" + licenseID + "/adjust"
	body := map[string]any{"amount": amount}
	if note != "" {
		body["note"] = note
	}
	return c.doRequest(ctx, http.MethodPost, path, nil, body, "")
}
