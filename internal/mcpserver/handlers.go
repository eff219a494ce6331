package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *VendordClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *VendordClient) *Handlers {
	return &Handlers{client: client}
}

// licenseView is the subset of the license record the tools report.
type licenseView struct {
	ID               string `json:"id"`
	Key              string `json:"licenseKey"`
	Domain           string `json:"domain"`
	Status           string `json:"status"`
	Plan             string `json:"plan"`
	BillingCycle     string `json:"billingCycle"`
	CreditsTotal     int    `json:"creditsTotal"`
	CreditsRemaining int    `json:"creditsRemaining"`
	ActivationLimit  int    `json:"activationLimit"`
	ActivationCount  int    `json:"activationCount"`
	ExpiresAt        string `json:"expiresAt"`
	CustomerEmail    string `json:"customerEmail"`
}

type creditsView struct {
	Remaining      int     `json:"credits_remaining"`
	Total          int     `json:"credits_total"`
	Used           int     `json:"credits_used"`
	Percentage     float64 `json:"percentage"`
	Status         string  `json:"status"`
	DaysUntilReset int     `json:"days_until_reset"`
}

// HandleValidateLicense looks up a license by key.
func (h *Handlers) HandleValidateLicense(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("license_key", "")
	if key == "" {
		return mcp.NewToolResultError("license_key is required"), nil
	}

	raw, err := h.client.LicenseInfo(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
	}

	var resp struct {
		License licenseView `json:"license"`
		Credits creditsView `json:"credits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "License %s\n", resp.License.ID)
	fmt.Fprintf(&sb, "Status: %s\n", resp.License.Status)
	fmt.Fprintf(&sb, "Plan: %s (%s)\n", resp.License.Plan, resp.License.BillingCycle)
	if resp.License.Domain != "" {
		fmt.Fprintf(&sb, "Bound domain: %s\n", resp.License.Domain)
	} else {
		sb.WriteString("Bound domain: none\n")
	}
	fmt.Fprintf(&sb, "Activations: %d/%d\n", resp.License.ActivationCount, resp.License.ActivationLimit)
	if resp.License.ExpiresAt != "" {
		fmt.Fprintf(&sb, "Expires: %s\n", resp.License.ExpiresAt)
	} else {
		sb.WriteString("Expires: never\n")
	}
	fmt.Fprintf(&sb, "Credits: %d/%d remaining (%s), resets in %d days\n",
		resp.Credits.Remaining, resp.Credits.Total, resp.Credits.Status, resp.Credits.DaysUntilReset)

	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCreditsInfo returns the credit balance for a key.
func (h *Handlers) HandleCreditsInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("license_key", "")
	if key == "" {
		return mcp.NewToolResultError("license_key is required"), nil
	}

	raw, err := h.client.CreditsInfo(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
	}

	var info creditsView
	if err := json.Unmarshal(raw, &info); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	text := fmt.Sprintf(
		"Credits: %d of %d remaining (%d used, %.1f%%)\nStatus: %s\nNext reset: in %d days",
		info.Remaining, info.Total, info.Used, info.Percentage, info.Status, info.DaysUntilReset)

	return mcp.NewToolResultText(text), nil
}

// HandleListLicenses browses issued licenses.
func (h *Handlers) HandleListLicenses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	plan := req.GetString("plan", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListLicenses(ctx, status, plan, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list licenses: %v", err)), nil
	}

	var resp struct {
		Licenses []licenseView `json:"licenses"`
		Count    int           `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	if len(resp.Licenses) == 0 {
		return mcp.NewToolResultText("No licenses match."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d license(s):\n\n", resp.Count)
	for _, lic := range resp.Licenses {
		fmt.Fprintf(&sb, "%s  %s  %s  credits %d/%d",
			lic.ID, lic.Status, lic.Plan, lic.CreditsRemaining, lic.CreditsTotal)
		if lic.CustomerEmail != "" {
			fmt.Fprintf(&sb, "  %s", lic.CustomerEmail)
		}
		sb.WriteString("\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCreateLicense issues a new license.
func (h *Handlers) HandleCreateLicense(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan := req.GetString("plan", "")
	if plan == "" {
		return mcp.NewToolResultError("plan is required"), nil
	}
	cycle := req.GetString("billing_cycle", "")
	email := req.GetString("customer_email", "")

	raw, err := h.client.CreateLicense(ctx, plan, cycle, email)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create license: %v", err)), nil
	}

	var resp struct {
		License licenseView `json:"license"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	text := fmt.Sprintf(
		"License issued.\nID: %s\nKey: %s\nPlan: %s (%s)\nCredits: %d",
		resp.License.ID, resp.License.Key, resp.License.Plan,
		resp.License.BillingCycle, resp.License.CreditsTotal)

	return mcp.NewToolResultText(text), nil
}

// HandleResetCredits resets a license to its plan allowance.
func (h *Handlers) HandleResetCredits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("license_id", "")
	if id == "" {
		return mcp.NewToolResultError("license_id is required"), nil
	}

	raw, err := h.client.ResetCredits(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reset failed: %v", err)), nil
	}

	var resp struct {
		Reset   bool   `json:"reset"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	return mcp.NewToolResultText(resp.Message), nil
}

// HandleAdjustCredits grants or removes credits.
func (h *Handlers) HandleAdjustCredits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("license_id", "")
	if id == "" {
		return mcp.NewToolResultError("license_id is required"), nil
	}
	amount := req.GetInt("amount", 0)
	if amount == 0 {
		return mcp.NewToolResultError("amount must be non-zero"), nil
	}
	note := req.GetString("note", "")

	raw, err := h.client.AdjustCredits(ctx, id, amount, note)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Adjustment failed: %v", err)), nil
	}

	var resp struct {
		Credits creditsView `json:"credits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	text := fmt.Sprintf("Adjusted by %d. Balance now %d of %d.",
		amount, resp.Credits.Remaining, resp.Credits.Total)

	return mcp.NewToolResultText(text), nil
}
