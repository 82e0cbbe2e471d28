package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"autoasesor/internal/model"
)

// ChatStore persists per-user conversation turns in Postgres, capped to
// the newest model.MaxContextTurns rows per user.
type ChatStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewChatStore creates a chat store over an existing pool
func NewChatStore(db *sqlx.DB, logger *zap.Logger) *ChatStore {
	return &ChatStore{db: db, logger: logger}
}

// GetRecentTurns returns up to limit most recent turns for a user,
// ordered oldest to newest
func (s *ChatStore) GetRecentTurns(ctx context.Context, userID string, limit int) ([]model.ChatInteraction, error) {
	if limit <= 0 {
		limit = model.MaxContextTurns
	}

	query := `
		SELECT id, user_id, query, response, intent, created_at
		FROM (
			SELECT id, user_id, query, response, intent, created_at
			FROM chat_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`

	var turns []model.ChatInteraction
	if err := s.db.SelectContext(ctx, &turns, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}
	return turns, nil
}

// AppendTurn stores one turn and prunes rows older than the newest
// MaxContextTurns for that user
func (s *ChatStore) AppendTurn(ctx context.Context, turn model.ChatInteraction) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO chat_history (user_id, query, response, intent)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, insert, turn.UserID, turn.Query, turn.Response, turn.Intent); err != nil {
		return fmt.Errorf("failed to insert chat turn: %w", err)
	}

	prune := `
		DELETE FROM chat_history
		WHERE user_id = $1
		AND id NOT IN (
			SELECT id FROM chat_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`
	if _, err := tx.ExecContext(ctx, prune, turn.UserID, model.MaxContextTurns); err != nil {
		return fmt.Errorf("failed to prune chat history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chat turn: %w", err)
	}

	s.logger.Debug("chat turn stored", zap.String("user_id", turn.UserID))
	return nil
}
