package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autoasesor/internal/config"
	"autoasesor/internal/llm"
	"autoasesor/internal/model"
	"autoasesor/internal/normalize"
	"autoasesor/internal/repository"
	"autoasesor/internal/service"
)

// stubLLM replays canned responses in call order.
type stubLLM struct {
	replies []string
}

func (s *stubLLM) next() string {
	if len(s.replies) == 0 {
		return ""
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply
}

func (s *stubLLM) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return s.next(), nil
}

func (s *stubLLM) CompleteStructured(ctx context.Context, prompt string, out interface{}, temperature float64, maxTokens int) error {
	return json.Unmarshal([]byte(s.next()), out)
}

func (s *stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) Model() string    { return "stub-model" }

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters, collection repository.Collection) ([]repository.Hit, error) {
	return nil, nil
}

type stubChatStore struct{}

func (stubChatStore) GetRecentTurns(ctx context.Context, userID string, limit int) ([]model.ChatInteraction, error) {
	return nil, nil
}

func (stubChatStore) AppendTurn(ctx context.Context, turn model.ChatInteraction) error {
	return nil
}

func newTestAgent(client llm.Client) (*service.Agent, *service.Runner) {
	logger := zap.NewNop()
	vocab := normalize.NewVocabulary(func(ctx context.Context) ([]string, []string, error) {
		return nil, nil, nil
	}, logger)
	searchCfg := config.SearchConfig{CatalogTopK: 5, KnowledgeTopK: 3}
	gateway := service.NewGateway(
		stubSearcher{},
		client,
		vocab,
		service.NewReranker(config.RerankConfig{}, logger),
		searchCfg,
		logger,
	)
	router := service.NewRouter(
		client,
		gateway,
		service.NewClassifier(client, logger),
		service.NewExtractor(client, logger),
		nil,
		searchCfg,
		config.FinancingConfig{AnnualRate: 0.10, MinYears: 3, MaxYears: 6},
		logger,
	)
	runner := service.NewRunner(logger)
	return service.NewAgent(router, stubChatStore{}, runner, client, logger), runner
}

func newChatRouter(client llm.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	agent, _ := newTestAgent(client)
	h := NewChatHandler(agent, zap.NewNop())

	r := gin.New()
	r.POST("/api/v1/chat", h.Chat)
	return r
}

func TestChat(t *testing.T) {
	client := &stubLLM{replies: []string{
		`{"intent": "other", "confidence": 0.7}`,
		"¡Hola! Puedo ayudarte a encontrar un auto seminuevo. ¿Qué estás buscando?",
	}}
	r := newChatRouter(client)

	body := `{"query": "hola", "user_id": "user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Response, "Hola")
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, service.AgentName, resp.Agent)
	assert.Equal(t, "stub", resp.Provider)
}

func TestChat_MissingQuery(t *testing.T) {
	r := newChatRouter(&stubLLM{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"user_id": "u1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestChat_InvalidJSON(t *testing.T) {
	r := newChatRouter(&stubLLM{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("no es json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health)
	r.GET("/version", GetVersion)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)
}
