package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"autoasesor/internal/llm"
	"autoasesor/internal/model"
)

// AgentName identifies this pipeline in response metadata.
const AgentName = "deterministic_sales_agent"

const msgNoResponse = "Lo siento, no pude generar una respuesta adecuada. ¿Podrías reformular tu pregunta?"

// hallucinationIndicators are phrases that suggest the model claimed to
// lack information it was given. A match only logs a warning.
var hallucinationIndicators = []string{
	"no tengo acceso a",
	"no puedo acceder a",
	"no tengo información sobre",
}

var commonSpanishWords = []string{"el", "la", "de", "que", "y", "en", "un", "es", "para", "con"}

// ChatStore is the conversation persistence surface the facade needs.
type ChatStore interface {
	GetRecentTurns(ctx context.Context, userID string, limit int) ([]model.ChatInteraction, error)
	AppendTurn(ctx context.Context, turn model.ChatInteraction) error
}

// Agent is the entry point for one query: it wires conversation history
// into the query, runs the router, verifies the response, and persists
// the new turn fire-and-forget.
type Agent struct {
	router *Router
	store  ChatStore
	runner *Runner
	llm    llm.Client
	logger *zap.Logger
}

// NewAgent creates the agent facade
func NewAgent(router *Router, store ChatStore, runner *Runner, client llm.Client, logger *zap.Logger) *Agent {
	return &Agent{
		router: router,
		store:  store,
		runner: runner,
		llm:    client,
		logger: logger,
	}
}

// ProcessQuery handles one user query end to end and always returns a
// structured result. History read failures degrade to no prior context.
func (a *Agent) ProcessQuery(ctx context.Context, query, userID string) model.ChatResponse {
	queryToUse := query

	if userID != "" {
		turns, err := a.store.GetRecentTurns(ctx, userID, model.MaxContextTurns)
		if err != nil {
			a.logger.Warn("failed to load chat history, continuing without context",
				zap.String("user_id", userID),
				zap.Error(err))
		} else if len(turns) > 0 {
			chatCtx := &model.ChatContext{UserID: userID, Interactions: turns}
			queryToUse = chatCtx.QueryWithContext(query)
			a.logger.Info("prepended conversation context",
				zap.String("user_id", userID),
				zap.Int("turns", len(turns)))
		}
	}

	response := a.router.Route(ctx, queryToUse)
	response = a.verifyResponse(strings.TrimSpace(response), query)

	if userID != "" {
		turn := model.ChatInteraction{
			UserID:   userID,
			Query:    query,
			Response: response,
		}
		a.runner.Go("persist-chat-turn", func(taskCtx context.Context) error {
			return a.store.AppendTurn(taskCtx, turn)
		})
	}

	return model.ChatResponse{
		Response: response,
		UserID:   userID,
		Agent:    AgentName,
		Provider: a.llm.Provider(),
		Model:    a.llm.Model(),
	}
}

// verifyResponse substitutes a fixed fallback for empty or too-short
// replies. The hallucination and language checks only log; they are a
// weak guarantee, not a correctness filter.
func (a *Agent) verifyResponse(response, originalQuery string) string {
	if len(strings.TrimSpace(response)) < 10 {
		return msgNoResponse
	}

	responseLower := strings.ToLower(response)
	queryLower := strings.ToLower(originalQuery)

	for _, indicator := range hallucinationIndicators {
		if strings.Contains(responseLower, indicator) {
			for _, word := range []string{"qué es", "quienes son", "información", "empresa"} {
				if strings.Contains(queryLower, word) {
					a.logger.Warn("response claims missing info for a basic company query",
						zap.String("query", truncate(originalQuery, 50)))
					break
				}
			}
			break
		}
	}

	hasSpanish := false
	for _, word := range commonSpanishWords {
		if strings.Contains(responseLower, " "+word+" ") {
			hasSpanish = true
			break
		}
	}
	if !hasSpanish && len(response) > 50 {
		a.logger.Warn("response might not be in Spanish", zap.String("response", truncate(response, 100)))
	}

	return response
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
