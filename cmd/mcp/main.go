// Vendord MCP Server - Exposes license and credit administration as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ipvlabs/vendord/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:   envOrDefault("VENDORD_API_URL", "http://localhost:8080"),
		AdminKey: os.Getenv("VENDORD_ADMIN_KEY"),
	}

	if cfg.AdminKey == "" {
		fmt.Fprintln(os.Stderr, "VENDORD_ADMIN_KEY is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
