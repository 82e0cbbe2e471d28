package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autoasesor/internal/model"
	"autoasesor/internal/service"
)

// ChatHandler handles the JSON chat API.
type ChatHandler struct {
	agent  *service.Agent
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(agent *service.Agent, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{agent: agent, logger: logger}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result := h.agent.ProcessQuery(c.Request.Context(), req.Query, req.UserID)
	if result.Response == "" {
		h.logger.Error("agent returned empty response", zap.String("user_id", req.UserID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process query"})
		return
	}

	c.JSON(http.StatusOK, result)
}
