package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autoasesor/internal/model"
)

// fakeChatStore is an in-memory ChatStore safe for concurrent appends.
type fakeChatStore struct {
	mu        sync.Mutex
	turns     map[string][]model.ChatInteraction
	getErr    error
	appendErr error
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{turns: make(map[string][]model.ChatInteraction)}
}

func (s *fakeChatStore) GetRecentTurns(ctx context.Context, userID string, limit int) ([]model.ChatInteraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	turns := s.turns[userID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *fakeChatStore) AppendTurn(ctx context.Context, turn model.ChatInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns[turn.UserID] = append(s.turns[turn.UserID], turn)
	return nil
}

func newTestAgent(client *fakeLLM, store ChatStore) (*Agent, *Runner) {
	logger := zap.NewNop()
	runner := NewRunner(logger)
	router := newTestRouter(client, &fakeSearcher{})
	return NewAgent(router, store, runner, client, logger), runner
}

func TestProcessQuery_PersistsTurn(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"intent": "other", "confidence": 0.7}`,
		"¡Hola! Puedo ayudarte a encontrar un auto seminuevo. ¿Qué estás buscando?",
	}}
	store := newFakeChatStore()
	agent, runner := newTestAgent(client, store)

	result := agent.ProcessQuery(context.Background(), "hola", "user-1")
	runner.Wait()

	assert.Equal(t, AgentName, result.Agent)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "fake", result.Provider)
	assert.Equal(t, "fake-model", result.Model)

	turns := store.turns["user-1"]
	require.Len(t, turns, 1)
	assert.Equal(t, "hola", turns[0].Query)
	assert.Equal(t, result.Response, turns[0].Response)
}

func TestProcessQuery_PrependsHistory(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"intent": "other", "confidence": 0.7}`,
		"Claro, con gusto te doy más detalles del Versa. ¿Qué te gustaría saber?",
	}}
	store := newFakeChatStore()
	store.turns["user-1"] = []model.ChatInteraction{
		{UserID: "user-1", Query: "busco un nissan", Response: "Te recomiendo el Nissan Versa 2021"},
	}
	agent, runner := newTestAgent(client, store)

	agent.ProcessQuery(context.Background(), "dime más de ese auto", "user-1")
	runner.Wait()

	// The classifier prompt must carry the prior turn
	require.NotEmpty(t, client.prompts)
	assert.Contains(t, client.prompts[0], model.ChatContextHeader)
	assert.Contains(t, client.prompts[0], "busco un nissan")
	assert.Contains(t, client.prompts[0], "dime más de ese auto")
}

func TestProcessQuery_HistoryFailureDegrades(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"intent": "other", "confidence": 0.7}`,
		"¡Hola! ¿En qué puedo ayudarte con tu próximo auto?",
	}}
	store := newFakeChatStore()
	store.getErr = errors.New("connection refused")
	agent, runner := newTestAgent(client, store)

	result := agent.ProcessQuery(context.Background(), "hola", "user-1")
	runner.Wait()

	assert.NotEmpty(t, result.Response)
	assert.NotEqual(t, msgGenericError, result.Response)
}

func TestProcessQuery_AnonymousSkipsPersistence(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"intent": "other", "confidence": 0.7}`,
		"¡Hola! ¿Buscas un auto en particular o quieres ver opciones?",
	}}
	store := newFakeChatStore()
	agent, runner := newTestAgent(client, store)

	agent.ProcessQuery(context.Background(), "hola", "")
	runner.Wait()

	assert.Empty(t, store.turns)
}

func TestProcessQuery_AppendFailureDoesNotAffectResponse(t *testing.T) {
	client := &fakeLLM{replies: []string{
		`{"intent": "other", "confidence": 0.7}`,
		"¡Hola! Cuéntame qué tipo de auto te interesa y te muestro opciones.",
	}}
	store := newFakeChatStore()
	store.appendErr = errors.New("disk full")
	agent, runner := newTestAgent(client, store)

	result := agent.ProcessQuery(context.Background(), "hola", "user-1")
	runner.Wait()

	assert.NotEmpty(t, result.Response)
}

func TestVerifyResponse(t *testing.T) {
	agent, _ := newTestAgent(&fakeLLM{}, newFakeChatStore())

	t.Run("short response replaced", func(t *testing.T) {
		assert.Equal(t, msgNoResponse, agent.verifyResponse("ok", "hola"))
		assert.Equal(t, msgNoResponse, agent.verifyResponse("   ", "hola"))
	})

	t.Run("normal response passes through", func(t *testing.T) {
		response := "Tenemos varias opciones de autos seminuevos para ti."
		assert.Equal(t, response, agent.verifyResponse(response, "hola"))
	})
}
