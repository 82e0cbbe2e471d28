package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"autoasesor/internal/llm"
	"autoasesor/internal/model"
)

// complexityKeywords are the domain terms the complexity heuristic counts.
var complexityKeywords = []string{
	"auto",
	"coche",
	"carro",
	"financiamiento",
	"financiar",
	"seminuevo",
	"sede",
	"garantía",
}

// Classifier determines the intent of a query via the LLM and its
// complexity via a deterministic heuristic.
type Classifier struct {
	llm    llm.Client
	logger *zap.Logger
}

// NewClassifier creates an intent classifier
func NewClassifier(client llm.Client, logger *zap.Logger) *Classifier {
	return &Classifier{llm: client, logger: logger}
}

type intentResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classify produces the routing decision for a query. Classification
// failures degrade to intent=other with confidence 0.5, never an error.
func (c *Classifier) Classify(ctx context.Context, query string) model.RoutingDecision {
	decision := model.RoutingDecision{
		Intent:     model.IntentOther,
		Confidence: 0.5,
		Complexity: c.complexity(query),
		Query:      query,
	}

	prompt := fmt.Sprintf(`Analiza la siguiente consulta del usuario y determina:
1. La intención principal: value_prop (preguntas sobre la empresa y sus servicios), recommend (búsqueda de autos), finance (financiamiento), o other (conversación general)
2. Su nivel de confianza (0.0 a 1.0)

Consulta: "%s"

Responde en JSON con los campos "intent" y "confidence".`, query)

	var resp intentResponse
	if err := c.llm.CompleteStructured(ctx, prompt, &resp, 0.2, 200); err != nil {
		c.logger.Warn("intent classification failed, falling back to other", zap.Error(err))
		return decision
	}

	intent := model.Intent(strings.ToLower(strings.TrimSpace(resp.Intent)))
	if !intent.Valid() {
		c.logger.Warn("classifier returned unknown intent", zap.String("intent", resp.Intent))
		return decision
	}

	confidence := resp.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}

	decision.Intent = intent
	decision.Confidence = confidence

	c.logger.Info("query classified",
		zap.String("intent", string(decision.Intent)),
		zap.Float64("confidence", decision.Confidence),
		zap.String("complexity", string(decision.Complexity)))

	return decision
}

// complexity tags a query complex when it touches three or more domain
// topics or exceeds fifteen words. The LLM has no say in this tag.
func (c *Classifier) complexity(query string) model.Complexity {
	lower := strings.ToLower(query)

	topicCount := 0
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			topicCount++
		}
	}

	if topicCount >= 3 || len(strings.Fields(query)) > 15 {
		return model.ComplexityComplex
	}
	return model.ComplexitySimple
}
