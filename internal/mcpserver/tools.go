package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the vendord MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolValidateLicense = mcp.NewTool("validate_license",
	mcp.WithDescription(
		"Look up a license by key and report its status, plan, expiry and "+
			"remaining credits. Use this to answer 'is this customer's key valid?'"),
	mcp.WithString("license_key",
		mcp.Required(),
		mcp.Description("The customer's license key (e.g. 'IPV-XXXXX-XXXXX-XXXXX')")),
)

var ToolCreditsInfo = mcp.NewTool("credits_info",
	mcp.WithDescription(
		"Get the credit balance for a license: remaining, total, usage "+
			"percentage and days until the next monthly reset."),
	mcp.WithString("license_key",
		mcp.Required(),
		mcp.Description("The customer's license key")),
)

var ToolListLicenses = mcp.NewTool("list_licenses",
	mcp.WithDescription(
		"Browse issued licenses. Optionally filter by status or plan. "+
			"Requires the admin key."),
	mcp.WithString("status",
		mcp.Description("Filter by status"),
		mcp.Enum("active", "suspended", "cancelled", "expired", "on-hold")),
	mcp.WithString("plan",
		mcp.Description("Filter by plan (e.g. 'starter', 'pro', 'agency')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of licenses to return (default 20)")),
)

var ToolCreateLicense = mcp.NewTool("create_license",
	mcp.WithDescription(
		"Issue a new license on a plan. Returns the generated license key. "+
			"Requires the admin key."),
	mcp.WithString("plan",
		mcp.Required(),
		mcp.Description("Plan to issue (e.g. 'starter', 'pro', 'agency')")),
	mcp.WithString("billing_cycle",
		mcp.Description("Billing cycle: 'monthly' or 'yearly' (default monthly)"),
		mcp.Enum("monthly", "yearly")),
	mcp.WithString("customer_email",
		mcp.Description("Customer email to attach to the license")),
)

var ToolResetCredits = mcp.NewTool("reset_credits",
	mcp.WithDescription(
		"Reset a license's credits to its plan allowance, as the monthly "+
			"reset would. Skips licenses whose subscription has lapsed. "+
			"Requires the admin key."),
	mcp.WithString("license_id",
		mcp.Required(),
		mcp.Description("The license ID (e.g. 'lic_...'), not the key")),
)

var ToolAdjustCredits = mcp.NewTool("adjust_credits",
	mcp.WithDescription(
		"Grant or remove credits on a license, e.g. a goodwill top-up after "+
			"an outage. Positive amounts add, negative amounts remove. "+
			"Requires the admin key."),
	mcp.WithString("license_id",
		mcp.Required(),
		mcp.Description("The license ID (e.g. 'lic_...'), not the key")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Credits to add (positive) or remove (negative)")),
	mcp.WithString("note",
		mcp.Description("Reason recorded in the credit ledger")),
)
