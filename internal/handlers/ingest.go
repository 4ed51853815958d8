package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docuchat-backend/internal/ingest"
	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/services"
)

type IngestHandler struct {
	log            *logger.Logger
	chatService    services.ChatService
	maxUploadBytes int64
}

func NewIngestHandler(baseLog *logger.Logger, chatService services.ChatService, maxUploadBytes int) *IngestHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	return &IngestHandler{
		log:            baseLog.With("handler", "IngestHandler"),
		chatService:    chatService,
		maxUploadBytes: int64(maxUploadBytes),
	}
}

// Ingest accepts a multipart PDF upload. All validation happens before
// any write, so a rejected request leaves zero rows, zero objects, and
// zero jobs behind. The /ingest and /chats endpoints answer in the
// {ok, error} envelope the frontend consumes.
func (h *IngestHandler) Ingest(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "multipart form with a \"file\" field is required"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "file exceeds the upload size limit"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "failed to read uploaded file"})
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "file exceeds the upload size limit"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "uploaded file is empty"})
		return
	}
	if !ingest.IsPDF(data) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "only PDF files are supported"})
		return
	}

	chatID := 0
	if raw := strings.TrimSpace(c.PostForm("chat_id")); raw != "" {
		chatID, err = strconv.Atoi(raw)
		if err != nil || chatID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "chat_id must be a positive integer"})
			return
		}
	}

	result, err := h.chatService.IngestPDF(c.Request.Context(), services.IngestInput{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
		ChatID:   chatID,
	})
	if errors.Is(err, services.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "chat not found"})
		return
	}
	if err != nil {
		h.log.Error("Ingest failed", "file", header.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to ingest file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"text":   result.Text,
		"chatId": result.Chat.ID,
	})
}
