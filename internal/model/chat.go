package model

import (
	"fmt"
	"strings"
	"time"
)

// ChatContextHeader and CurrentQueryHeader delimit the context block that
// the facade prepends to a query. The finance handler looks for them when
// resolving "that car" references.
const (
	ChatContextHeader  = "## Contexto de Conversaciones Previas"
	CurrentQueryHeader = "## Consulta Actual"
)

// MaxContextTurns is the per-user history cap enforced by the chat store.
const MaxContextTurns = 5

// ChatInteraction is one (query, response) turn of a conversation.
type ChatInteraction struct {
	ID        int64          `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	Query     string         `json:"query" db:"query"`
	Response  string         `json:"response" db:"response"`
	Intent    *string        `json:"intent,omitempty" db:"intent"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"-"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// ChatContext is the bounded per-user history, ordered oldest to newest.
type ChatContext struct {
	UserID       string            `json:"user_id"`
	Interactions []ChatInteraction `json:"interactions"`
}

// ContextString renders the history as a prompt-context block. Returns an
// empty string when there is no history.
func (c *ChatContext) ContextString() string {
	if c == nil || len(c.Interactions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(ChatContextHeader + "\n")
	for i, it := range c.Interactions {
		fmt.Fprintf(&b, "\n%d. Usuario: %s", i+1, it.Query)
		fmt.Fprintf(&b, "\n   Asistente: %s", it.Response)
	}
	return b.String()
}

// QueryWithContext prepends the history block to a query. With no history
// the query is returned unchanged.
func (c *ChatContext) QueryWithContext(query string) string {
	ctx := c.ContextString()
	if ctx == "" {
		return query
	}
	return ctx + "\n\n" + CurrentQueryHeader + "\n" + query
}
