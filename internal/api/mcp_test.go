package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/llm"
	"github.com/counselai/counsel/internal/session"
	"github.com/counselai/counsel/internal/storage"
	"github.com/counselai/counsel/internal/vectorstore"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, string) {
	t.Helper()

	chat := &mockChat{
		chatFunc: func(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
			return "model output", nil
		},
	}
	sessions := session.NewManager(func(ctx context.Context, creds session.Credentials) (*session.Components, error) {
		if creds.OpenAIKey == "" {
			return nil, fault.New(fault.KindConfiguration, "llm.new", "OpenAI API key is required")
		}
		return testComponents(chat), nil
	}, nil)

	s, err := sessions.Create(context.Background(), session.Credentials{OpenAIKey: "sk-test"})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}

	history, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	return MCPDeps{Sessions: sessions, History: history}, s.ID
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_SearchKnowledge(t *testing.T) {
	deps, sessionID := newTestMCPDeps(t)

	// Seed the session's vector store directly.
	s, err := deps.Sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	err = s.Components.Store.Upsert(context.Background(), []vectorstore.Record{
		{DocumentID: "lease", ChunkIndex: 0, Text: "termination clause", Embedding: []float32{18, 1, 1}},
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	handler := mcpSearchKnowledge(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search_knowledge", map[string]interface{}{
		"session_id": sessionID,
		"query":      "termination",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}

	var chunks []json.RawMessage
	if err := json.Unmarshal([]byte(toolText(t, result)), &chunks); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestMCPTool_SearchKnowledge_UnknownSession(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSearchKnowledge(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_knowledge", map[string]interface{}{
		"session_id": "nope",
		"query":      "q",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown session")
	}
}

func TestMCPTool_AnalyzeDocument(t *testing.T) {
	deps, sessionID := newTestMCPDeps(t)
	handler := mcpAnalyzeDocument(deps)

	result, err := handler(context.Background(), makeCallToolRequest("analyze_document", map[string]interface{}{
		"session_id": sessionID,
		"mode":       "risk-assessment",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}

	var out map[string]string
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if out["analysis"] != "model output" {
		t.Errorf("analysis = %q", out["analysis"])
	}
	if out["mode"] != "risk-assessment" {
		t.Errorf("mode = %q", out["mode"])
	}
}

func TestMCPTool_AnalyzeDocument_BadMode(t *testing.T) {
	deps, sessionID := newTestMCPDeps(t)
	handler := mcpAnalyzeDocument(deps)

	result, err := handler(context.Background(), makeCallToolRequest("analyze_document", map[string]interface{}{
		"session_id": sessionID,
		"mode":       "vibes-check",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown mode")
	}
}

func TestMCPResource_RecentAnalyses(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	err := deps.History.SaveAnalysis(storage.Analysis{
		ID:        "an-1",
		SessionID: "s",
		Mode:      "contract-review",
		Query:     "Review this contract.",
		Analysis:  "details",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("saving analysis: %v", err)
	}

	handler := mcpResourceRecentAnalyses(deps)
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "counsel://analyses/recent"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var summaries []json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(summaries))
	}
}
