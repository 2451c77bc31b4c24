package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/counselai/counsel/internal/agent"
	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/ingest"
	"github.com/counselai/counsel/internal/llm"
	"github.com/counselai/counsel/internal/retrieval"
	"github.com/counselai/counsel/internal/session"
	"github.com/counselai/counsel/internal/storage"
	"github.com/counselai/counsel/internal/team"
	"github.com/counselai/counsel/internal/vectorstore"
	"github.com/counselai/counsel/internal/vectorstore/memory"
)

const testToken = "test-token"

type mockChat struct {
	chatFunc func(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

func (m *mockChat) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	return m.chatFunc(ctx, messages, opts)
}

type mockRunner struct {
	role agent.Role
}

func (m *mockRunner) Role() agent.Role { return m.role }

func (m *mockRunner) Run(ctx context.Context, query string, chunks []retrieval.ContextChunk) (string, error) {
	return string(m.role) + " findings", nil
}

type mockEmbedder struct{}

func (mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 1}, nil
}

func (e mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

// testComponents wires a fully in-process session: memory vector store, mock
// embedder, mock chat.
func testComponents(chat agent.ChatClient) *session.Components {
	store := memory.New()
	store.EnsureCollection(context.Background(), 3, vectorstore.MetricCosine)

	emb := mockEmbedder{}
	runners := []team.Runner{
		&mockRunner{role: agent.RoleResearcher},
		&mockRunner{role: agent.RoleAnalyst},
		&mockRunner{role: agent.RoleStrategist},
	}
	retriever := retrieval.New(emb, store, 3, 5, nil)

	return &session.Components{
		Store:     store,
		Pipeline:  ingest.NewPipeline(ingest.NewChunker(0, 0), emb, store, nil),
		Retriever: retriever,
		Team:      team.New(retriever, runners, chat, nil),
	}
}

func newTestServer(t *testing.T, chat agent.ChatClient) (*httptest.Server, *session.Manager, *storage.Store) {
	t.Helper()
	if chat == nil {
		chat = &mockChat{
			chatFunc: func(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
				return "model output", nil
			},
		}
	}

	sessions := session.NewManager(func(ctx context.Context, creds session.Credentials) (*session.Components, error) {
		if creds.OpenAIKey == "" {
			return nil, fault.New(fault.KindConfiguration, "llm.new", "OpenAI API key is required")
		}
		return testComponents(chat), nil
	}, nil)

	history, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	srv := httptest.NewServer(NewHandler(Deps{Sessions: sessions, History: history, Token: testToken}))
	t.Cleanup(srv.Close)
	return srv, sessions, history
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]string{
		"openai_api_key": "sk-proj-abcdef123456",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var s SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	return s.ID
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/documents")
	if err != nil {
		t.Fatalf("GET /documents: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateSessionRedactsKey(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]string{
		"openai_api_key": "sk-proj-abcdef123456",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var s SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if strings.Contains(s.Key, "abcdef123456") {
		t.Errorf("response leaks the key: %q", s.Key)
	}
	if s.ID == "" {
		t.Error("session ID empty")
	}
}

func TestCreateSessionBadCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	first := createSession(t, srv)
	second := createSession(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var sessions []SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	ids := map[string]bool{sessions[0].ID: true, sessions[1].ID: true}
	if !ids[first] || !ids[second] {
		t.Errorf("listed IDs %v missing %s or %s", ids, first, second)
	}
	for _, s := range sessions {
		if strings.Contains(s.Key, "abcdef123456") {
			t.Errorf("list leaks the key: %q", s.Key)
		}
	}
}

func TestCloseSession(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	id := createSession(t, srv)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second close status = %d, want 404", resp.StatusCode)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	id := createSession(t, srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("just some plain text"))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sessions/"+id+"/documents", &buf)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestUploadUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions/nope/documents", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRunAnalysisAndFetch(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	id := createSession(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/analyses", map[string]string{
		"mode": "contract-review",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var a AnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if a.Status != storage.AnalysisCompleted {
		t.Errorf("status = %q, want completed", a.Status)
	}
	if a.Analysis != "model output" {
		t.Errorf("analysis = %q", a.Analysis)
	}

	got := doJSON(t, http.MethodGet, srv.URL+"/analyses/"+a.ID, nil)
	if got.StatusCode != http.StatusOK {
		t.Errorf("GET analysis status = %d, want 200", got.StatusCode)
	}

	list := doJSON(t, http.MethodGet, srv.URL+"/analyses", nil)
	var analyses []AnalysisResponse
	if err := json.NewDecoder(list.Body).Decode(&analyses); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(analyses) != 1 {
		t.Errorf("analyses = %d, want 1", len(analyses))
	}
}

func TestRunAnalysisUnknownMode(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	id := createSession(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/analyses", map[string]string{
		"mode": "vibes-check",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRunAnalysisPartialKeepsFirstStage(t *testing.T) {
	calls := 0
	chat := &mockChat{
		chatFunc: func(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
			calls++
			if calls == 1 {
				return "merged analysis", nil
			}
			return "", errors.New("model unavailable")
		},
	}
	srv, _, history := newTestServer(t, chat)
	id := createSession(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/sessions/"+id+"/analyses", map[string]string{
		"mode": "contract-review",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var a AnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if a.Status != storage.AnalysisPartial {
		t.Errorf("status = %q, want partial", a.Status)
	}
	if a.Analysis != "merged analysis" {
		t.Errorf("analysis = %q, want it preserved", a.Analysis)
	}
	if a.Error == "" {
		t.Error("partial response missing error detail")
	}

	stored, err := history.GetAnalysis(a.ID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if stored.Status != storage.AnalysisPartial || stored.Analysis != "merged analysis" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodGet, srv.URL+"/analyses/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
