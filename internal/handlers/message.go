package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/services"
	"github.com/yungbote/docuchat-backend/internal/types"
)

type MessageHandler struct {
	log         *logger.Logger
	chatService services.ChatService
	responder   services.Responder
}

func NewMessageHandler(baseLog *logger.Logger, chatService services.ChatService, responder services.Responder) *MessageHandler {
	return &MessageHandler{
		log:         baseLog.With("handler", "MessageHandler"),
		chatService: chatService,
		responder:   responder,
	}
}

type sendMessageRequest struct {
	ChatID         int    `json:"chatId"`
	Content        string `json:"content"`
	Role           string `json:"role"`
	CollectionName string `json:"collectionName"`
}

// Send validates the request, then switches the response to an ndjson
// stream. Validation failures are plain JSON errors; once the first
// stream byte is out, failures travel inside the stream as error records.
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.ChatID <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_chat_id", fmt.Errorf("chatId must be a positive integer"))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		RespondError(c, http.StatusBadRequest, "empty_content", fmt.Errorf("content is required"))
		return
	}
	// Messages carry user/assistant/system roles, but callers may only
	// submit user messages; assistant and system rows are written
	// server-side.
	if req.Role != "" && req.Role != types.MessageRoleUser {
		RespondError(c, http.StatusBadRequest, "invalid_role", fmt.Errorf("role must be %q", types.MessageRoleUser))
		return
	}

	if _, err := h.chatService.GetChat(c.Request.Context(), req.ChatID); err != nil {
		if errors.Is(err, services.ErrChatNotFound) {
			RespondError(c, http.StatusNotFound, "chat_not_found", err)
			return
		}
		h.log.Error("Send chat lookup failed", "chat_id", req.ChatID, "error", err)
		RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("failed to load chat"))
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	enc := json.NewEncoder(c.Writer)
	emit := func(rec types.StreamRecord) error {
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	h.responder.Respond(c.Request.Context(), services.RespondInput{
		ChatID:         req.ChatID,
		Content:        req.Content,
		Role:           req.Role,
		CollectionName: req.CollectionName,
	}, emit)
}
