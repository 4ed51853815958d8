package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/services"
)

type ChatHandler struct {
	log         *logger.Logger
	chatService services.ChatService
}

func NewChatHandler(baseLog *logger.Logger, chatService services.ChatService) *ChatHandler {
	return &ChatHandler{
		log:         baseLog.With("handler", "ChatHandler"),
		chatService: chatService,
	}
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_chat_id", fmt.Errorf("chat id must be a positive integer"))
		return
	}
	chat, err := h.chatService.GetChat(c.Request.Context(), id)
	if errors.Is(err, services.ErrChatNotFound) {
		RespondError(c, http.StatusNotFound, "chat_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("GetChat failed", "chat_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("failed to load chat"))
		return
	}
	RespondOK(c, chat)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	docs, err := h.chatService.ListDocs(c.Request.Context())
	if err != nil {
		h.log.Error("ListChats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": docs})
}
