package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing the query pipeline as a
// find_schemes tool, so agent frontends can run the same grounded flow the
// HTTP API serves.
func NewMCPServer(h QueryHandler) *server.MCPServer {
	s := server.NewMCPServer(
		"saarthi",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("saarthi — grounded assistant for government, skill and education schemes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("find_schemes",
			mcp.WithDescription("Answer a question about government/skill/education schemes, grounded in the scheme database and cited with source URLs."),
			mcp.WithString("user_id", mcp.Description("ID of the user profile to match eligibility against"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session ID from a previous call, for conversational context")),
		),
		mcpFindSchemes(h),
	)

	return s
}

func mcpFindSchemes(h QueryHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		res, err := h.HandleQuery(ctx, userID, query, sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.Marshal(QueryResponse{
			ResponseText: res.ResponseText,
			CitedSchemes: citedSchemes(res.CitedSchemes),
			SessionID:    res.SessionID,
			Degraded:     res.Degraded,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
