package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/counselai/counsel/internal/session"
	"github.com/counselai/counsel/internal/storage"
	"github.com/counselai/counsel/internal/team"
)

// MCPDeps holds dependencies for the MCP server. Tools operate on live
// sessions from the same manager the HTTP surface uses.
type MCPDeps struct {
	Sessions *session.Manager
	History  *storage.Store
}

// NewMCPServer creates an MCP server exposing document search and analysis
// as tools for agent hosts.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"counsel",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("counsel — legal document analysis over an indexed knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Semantically search the ingested legal documents and return relevant chunks."),
			mcp.WithString("session_id", mcp.Description("Session to search in"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpSearchKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_document",
			mcp.WithDescription("Run a multi-agent analysis over the ingested documents. "+
				"Modes: contract-review, legal-research, risk-assessment, compliance-check, custom."),
			mcp.WithString("session_id", mcp.Description("Session to analyze in"), mcp.Required()),
			mcp.WithString("mode", mcp.Description("Analysis mode"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Query for custom mode")),
		),
		mcpAnalyzeDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"counsel://analyses/recent",
			"Recent Analyses",
			mcp.WithResourceDescription("Last 10 stored analyses (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentAnalyses(deps),
	)

	return s
}

func mcpSearchKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		s, err := deps.Sessions.Get(sessionID)
		if err != nil {
			return mcpError("session not found"), nil
		}

		chunks, err := s.Components.Retriever.Retrieve(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			DocumentID string  `json:"document_id"`
			ChunkIndex int     `json:"chunk_index"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				DocumentID: c.DocumentID,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				Score:      c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAnalyzeDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		modeName, err := req.RequireString("mode")
		if err != nil {
			return mcpError("mode is required"), nil
		}
		query := req.GetString("query", "")

		s, err := deps.Sessions.Get(sessionID)
		if err != nil {
			return mcpError("session not found"), nil
		}

		mode, err := team.ParseMode(modeName)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		result, runErr := s.Components.Team.Run(ctx, mode, query)
		if result == nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", runErr)), nil
		}

		out := map[string]string{
			"mode":            string(result.Mode),
			"analysis":        result.Analysis,
			"key_points":      result.KeyPoints,
			"recommendations": result.Recommendations,
		}
		if runErr != nil {
			out["error"] = runErr.Error()
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal analysis: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentAnalyses(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		analyses, err := deps.History.ListAnalyses(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list analyses: %w", err)
		}

		type analysisSummary struct {
			ID        string `json:"id"`
			Mode      string `json:"mode"`
			Query     string `json:"query"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]analysisSummary, len(analyses))
		for i, a := range analyses {
			query := a.Query
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = analysisSummary{
				ID:        a.ID,
				Mode:      a.Mode,
				Query:     query,
				Status:    a.Status,
				CreatedAt: a.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analyses: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
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
