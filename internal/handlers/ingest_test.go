package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/services"
	"github.com/yungbote/docuchat-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

type stubChatService struct {
	ingestCalls int
	lastInput   services.IngestInput
	ingestErr   error

	chat   *types.Chat
	getErr error
}

func (s *stubChatService) IngestPDF(ctx context.Context, in services.IngestInput) (*services.IngestResult, error) {
	s.ingestCalls++
	s.lastInput = in
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	return &services.IngestResult{
		Chat: &types.Chat{ID: 1, Name: strings.TrimSuffix(in.FileName, ".pdf")},
		Doc:  &types.Doc{ID: 1, ChatID: 1, FileName: in.FileName},
		Text: "Queued",
	}, nil
}

func (s *stubChatService) GetChat(ctx context.Context, id int) (*types.Chat, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.chat, nil
}

func (s *stubChatService) ListDocs(ctx context.Context) ([]*types.Doc, error) {
	return nil, nil
}

func multipartUpload(t *testing.T, fileName string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func performIngest(t *testing.T, h *IngestHandler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/ingest", h.Ingest)
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIngestRejectsMissingFile(t *testing.T) {
	svc := &stubChatService{}
	h := NewIngestHandler(testLogger(t), svc, 0)
	body, contentType := multipartUpload(t, "", nil, map[string]string{"other": "x"})
	rec := performIngest(t, h, body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ingestCalls != 0 {
		t.Fatalf("rejected upload must not reach the service")
	}
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	svc := &stubChatService{}
	h := NewIngestHandler(testLogger(t), svc, 0)
	body, contentType := multipartUpload(t, "empty.pdf", nil, nil)
	rec := performIngest(t, h, body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ingestCalls != 0 {
		t.Fatalf("rejected upload must not reach the service")
	}
}

func TestIngestRejectsNonPDF(t *testing.T) {
	svc := &stubChatService{}
	h := NewIngestHandler(testLogger(t), svc, 0)
	body, contentType := multipartUpload(t, "notes.txt", []byte("plain text, not a pdf"), nil)
	rec := performIngest(t, h, body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ingestCalls != 0 {
		t.Fatalf("rejected upload must not reach the service")
	}
}

func TestIngestRejectsOversizedFile(t *testing.T) {
	svc := &stubChatService{}
	h := NewIngestHandler(testLogger(t), svc, 32)
	data := append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("x"), 100)...)
	body, contentType := multipartUpload(t, "big.pdf", data, nil)
	rec := performIngest(t, h, body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ingestCalls != 0 {
		t.Fatalf("rejected upload must not reach the service")
	}
}

func TestIngestRejectsBadChatID(t *testing.T) {
	svc := &stubChatService{}
	h := NewIngestHandler(testLogger(t), svc, 0)
	body, contentType := multipartUpload(t, "doc.pdf", []byte("%PDF-1.4 content"), map[string]string{"chat_id": "abc"})
	rec := performIngest(t, h, body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ingestCalls != 0 {
		t.Fatalf("rejected upload must not reach the service")
	}
}

func TestIngestAcceptsPDF(t *testing.T) {
	svc := &stubChatService{}
	h := NewIngestHandler(testLogger(t), svc, 0)
	body, contentType := multipartUpload(t, "report.pdf", []byte("%PDF-1.4 content"), map[string]string{"chat_id": "3"})
	rec := performIngest(t, h, body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ingestCalls != 1 {
		t.Fatalf("expected exactly one service call, got %d", svc.ingestCalls)
	}
	if svc.lastInput.FileName != "report.pdf" || svc.lastInput.ChatID != 3 {
		t.Fatalf("unexpected service input: %+v", svc.lastInput)
	}
	// The multipart writer labels file parts application/octet-stream;
	// whatever the part declares must reach the service.
	if svc.lastInput.MimeType != "application/octet-stream" {
		t.Fatalf("mime type not forwarded: %q", svc.lastInput.MimeType)
	}
	if len(svc.lastInput.Data) != len("%PDF-1.4 content") {
		t.Fatalf("unexpected data length: %d", len(svc.lastInput.Data))
	}

	var resp struct {
		OK     bool   `json:"ok"`
		Text   string `json:"text"`
		ChatID int    `json:"chatId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.ChatID != 1 || resp.Text == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
