package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all vendord tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("vendord", "1.0.0")
	client := NewVendordClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolValidateLicense, h.HandleValidateLicense)
	s.AddTool(ToolCreditsInfo, h.HandleCreditsInfo)
	s.AddTool(ToolListLicenses, h.HandleListLicenses)
	s.AddTool(ToolCreateLicense, h.HandleCreateLicense)
	s.AddTool(ToolResetCredits, h.HandleResetCredits)
	s.AddTool(ToolAdjustCredits, h.HandleAdjustCredits)

	return s
}
