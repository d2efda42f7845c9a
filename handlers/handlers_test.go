package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"casecounsel-backend/auth"
	"casecounsel-backend/extract"
	"casecounsel-backend/models"
	"casecounsel-backend/repository"
	"casecounsel-backend/service"
	"casecounsel-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

// stubGateway answers every model call with the same text and keeps the prompts
type stubGateway struct {
	reply string
	mu    sync.Mutex
	calls [][]service.Message
}

func (g *stubGateway) Invoke(ctx context.Context, key service.ModelKey, messages []service.Message, opts service.InvokeOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, messages)
	return g.reply, nil
}

func (g *stubGateway) lastUserPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		return ""
	}
	last := g.calls[len(g.calls)-1]
	return last[len(last)-1].Content
}

type stubScheduler struct {
	mu    sync.Mutex
	cases []string
}

func (s *stubScheduler) Schedule(caseID, requesterID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, caseID)
	return true
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	t         *testing.T
	router    *gin.Engine
	store     *repository.MemoryCaseStore
	scheduler *stubScheduler
	gateway   *stubGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryCaseStore()
	files := repository.NewMemoryFileStore()
	fileStorage, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	gateway := &stubGateway{reply: "Counsel's view: file the reply within 30 days."}
	scheduler := &stubScheduler{}
	aggregator := service.NewContextAggregator(store, scheduler)
	orchestrator := service.NewOrchestrator(
		service.OrchestratorWithCaseStore(store),
		service.OrchestratorWithAggregator(aggregator),
		service.OrchestratorWithGatekeeper(service.NewGatekeeper(gateway)),
		service.OrchestratorWithGrounding(service.NewGroundingAgent(gateway, nil, nil)),
		service.OrchestratorWithGateway(gateway),
	)
	caseService := service.NewCaseService(store)

	r := gin.New()
	Routes{
		Cases: NewCaseHandler(caseService, aggregator, scheduler, nil),
		Chat:  NewChatHandler(orchestrator),
		Files: NewFileHandler(files, caseService, fileStorage, extract.NewBasicExtractor(0), nil),
	}.Register(r, auth.NewStaticVerifier(map[string]string{aliceToken: "alice", bobToken: "bob"}))

	return &testServer{t: t, router: r, store: store, scheduler: scheduler, gateway: gateway}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *testServer) serve(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) createCase(token string, body gin.H) models.Case {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/cases", token, body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var c models.Case
	require.NoError(s.t, json.Unmarshal(env.Data, &c))
	return c
}

func (s *testServer) upload(token, caseID, filename string, content []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cases/"+caseID+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return s.serve(req)
}

func TestRequireAuth(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, _ = s.do(http.MethodGet, "/api/cases", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodGet, "/api/cases", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestCaseLifecycle(t *testing.T) {
	s := newTestServer(t)
	created := s.createCase(aliceToken, gin.H{
		"title":        "State v. Mehta",
		"legal_side":   "defence",
		"jurisdiction": gin.H{"country": "India", "state": "Maharashtra"},
	})
	assert.Equal(t, "alice", created.CreatorUID)
	assert.Equal(t, models.LegalSideDefense, created.LegalSide)
	assert.Equal(t, models.CaseStatusOpen, created.Status)

	w, _ := s.do(http.MethodGet, "/api/cases/"+created.ID, aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(http.MethodGet, "/api/cases/"+created.ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, env = s.do(http.MethodGet, "/api/cases/nope", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = s.do(http.MethodPut, "/api/cases/"+created.ID, aliceToken, gin.H{"status": "active", "client": "R. Mehta"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Case
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, models.CaseStatusActive, updated.Status)
	assert.Equal(t, "R. Mehta", updated.Client)
	assert.Equal(t, "State v. Mehta", updated.Title)

	w, _ = s.do(http.MethodPost, "/api/cases", aliceToken, gin.H{"client": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodGet, "/api/cases", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestChatPersistsTurn(t *testing.T) {
	s := newTestServer(t)
	created := s.createCase(aliceToken, gin.H{"title": "Lease dispute"})

	w, env := s.do(http.MethodPost, "/api/chat", aliceToken, gin.H{
		"prompt":     "When must we reply to the eviction notice?",
		"case_id":    created.ID,
		"session_id": "s1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result models.ReasoningResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, models.RoleAssistant, result.Role)
	assert.Equal(t, "Counsel's view: file the reply within 30 days.", result.Content)

	stored, err := s.store.GetCase(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "When must we reply to the eviction notice?", stored.Messages[0].Content)

	w, _ = s.do(http.MethodPost, "/api/chat", aliceToken, gin.H{"case_id": created.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/chat", bobToken, gin.H{"prompt": "Show me their strategy", "case_id": created.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestResearchRedraftAnalyze(t *testing.T) {
	s := newTestServer(t)
	created := s.createCase(aliceToken, gin.H{"title": "Cheque bounce"})

	w, env := s.do(http.MethodPost, "/api/research", aliceToken, gin.H{"query": "Section 138 NI Act limitation", "case_id": created.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var grounded models.GroundingResult
	require.NoError(t, json.Unmarshal(env.Data, &grounded))
	for _, h := range []string{"### Facts", "### Held", "### Ratio Decidendi", "### Judgment"} {
		assert.Contains(t, grounded.Answer, h)
	}

	w, _ = s.do(http.MethodPost, "/api/cases/"+created.ID+"/redraft", aliceToken, gin.H{"text": "Clause 1.", "instruction": "Tighten clause 1"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/api/cases/"+created.ID+"/redraft", aliceToken, gin.H{"text": "Clause 1."})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/cases/"+created.ID+"/analyze", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(http.MethodPost, "/api/cases/temp-draft/analyze", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestAnalyzeReadsChunkedBody(t *testing.T) {
	s := newTestServer(t)
	created := s.createCase(aliceToken, gin.H{"title": "Cheque bounce"})

	req := httptest.NewRequest(http.MethodPost, "/api/cases/"+created.ID+"/analyze",
		bytes.NewReader([]byte(`{"legal_side":"prosecution","focus":"limitation period"}`)))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	w, _ := s.serve(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, s.gateway.lastUserPrompt(), "Focus especially on: limitation period")

	w, env := s.do(http.MethodPost, "/api/cases/"+created.ID+"/analyze", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code, env.Error.Message)
}

func TestDocumentUploadAndDownload(t *testing.T) {
	s := newTestServer(t)
	created := s.createCase(aliceToken, gin.H{"title": "Accident claim"})
	content := []byte("FIR No. 112/2024 registered at Andheri police station.")

	w, env := s.upload(aliceToken, created.ID, "fir.txt", content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var uploaded struct {
		Document models.CaseDocument `json:"document"`
		FileID   string              `json:"file_id"`
		Size     int64               `json:"size"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	assert.Equal(t, int64(len(content)), uploaded.Size)
	assert.Equal(t, uploaded.FileID, uploaded.Document.FileID)
	assert.Equal(t, "text/plain", uploaded.Document.Type)

	stored, err := s.store.GetCase(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Documents, 1)
	assert.Contains(t, stored.Documents[0].ExtractedText, "FIR No. 112/2024")
	assert.NotEmpty(t, stored.Documents[0].ForensicMetadata["sha256"])

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+uploaded.FileID, nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	w, _ = s.serve(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/api/files/"+uploaded.FileID, nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)
	w, _ = s.serve(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, "/api/files/not-a-uuid", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	w, env = s.upload(aliceToken, created.ID, "photo.png", png)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE_TYPE", env.Error.Code)

	w, _ = s.upload(bobToken, created.ID, "fir.txt", content)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestContextAndSummaryEndpoints(t *testing.T) {
	s := newTestServer(t)
	created := s.createCase(aliceToken, gin.H{"title": "Partition suit", "description": "Ancestral property in Pune"})

	w, env := s.do(http.MethodGet, "/api/cases/"+created.ID+"/context", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ctxResp struct {
		Context    string `json:"context"`
		RawChars   int    `json:"raw_chars"`
		Summarized bool   `json:"summarized"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ctxResp))
	assert.Contains(t, ctxResp.Context, "=== CASE METADATA ===")
	assert.Contains(t, ctxResp.Context, "Ancestral property in Pune")
	assert.False(t, ctxResp.Summarized)
	assert.Positive(t, ctxResp.RawChars)

	w, env = s.do(http.MethodPost, "/api/cases/"+created.ID+"/summarize", aliceToken, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"case_id":"`+created.ID+`","queued":true}`, string(env.Data))
	assert.Equal(t, []string{created.ID}, s.scheduler.cases)

	w, _ = s.do(http.MethodPost, "/api/cases/"+created.ID+"/summarize", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, "/api/cases/"+created.ID+"/summary", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"summary":null,"last_summarized_at":null}`, string(env.Data))
}
