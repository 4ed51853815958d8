package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/docuchat-backend/internal/jobs"
	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/repos"
	"github.com/yungbote/docuchat-backend/internal/types"
)

var ErrChatNotFound = errors.New("chat not found")

const maxCollectionNameLen = 120

var collectionNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

type IngestInput struct {
	FileName string
	MimeType string
	Data     []byte
	// ChatID attaches the document to an existing chat; zero creates a
	// fresh chat named after the file.
	ChatID int
}

type IngestResult struct {
	Chat *types.Chat
	Doc  *types.Doc
	Job  *types.IngestJob
	Text string
}

type ChatService interface {
	IngestPDF(ctx context.Context, in IngestInput) (*IngestResult, error)
	GetChat(ctx context.Context, id int) (*types.Chat, error)
	ListDocs(ctx context.Context) ([]*types.Doc, error)
}

type chatService struct {
	db     *gorm.DB
	log    *logger.Logger
	chats  repos.ChatRepo
	docs   repos.DocRepo
	bucket BucketService
	queue  *jobs.Queue
}

func NewChatService(db *gorm.DB, baseLog *logger.Logger, chats repos.ChatRepo, docs repos.DocRepo, bucket BucketService, queue *jobs.Queue) ChatService {
	return &chatService{
		db:     db,
		log:    baseLog.With("service", "ChatService"),
		chats:  chats,
		docs:   docs,
		bucket: bucket,
		queue:  queue,
	}
}

// BuildCollectionName derives the per-document vector collection name.
// Anything outside [a-zA-Z0-9_-] becomes an underscore and the result is
// capped at 120 characters, the vector store's naming limit.
func BuildCollectionName(chatID int, ts time.Time, fileName string) string {
	name := fmt.Sprintf("chat_%d_%d_%s", chatID, ts.Unix(), fileName)
	name = collectionNameSanitizer.ReplaceAllString(name, "_")
	if len(name) > maxCollectionNameLen {
		name = name[:maxCollectionNameLen]
	}
	return name
}

// IngestPDF stores the upload and registers it for asynchronous indexing.
// Chat, doc, and job rows are written in one transaction, so a document
// can never exist without its ingest job. The object upload happens
// before commit; a failed commit leaves at most an unreferenced object.
func (s *chatService) IngestPDF(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		return nil, fmt.Errorf("file name required")
	}
	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	var result *IngestResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat *types.Chat
		var err error
		if in.ChatID != 0 {
			chat, err = s.chats.GetByID(ctx, tx, in.ChatID)
			if err != nil {
				return err
			}
			if chat == nil {
				return ErrChatNotFound
			}
		} else {
			chat, err = s.chats.Create(ctx, tx, &types.Chat{
				Name: strings.TrimSuffix(fileName, ".pdf"),
			})
			if err != nil {
				return fmt.Errorf("create chat: %w", err)
			}
		}

		now := time.Now()
		collection := BuildCollectionName(chat.ID, now, fileName)
		fileKey := fmt.Sprintf("uploads/chat_%d/%s", chat.ID, fileName)

		if err := s.bucket.UploadFile(ctx, fileKey, bytes.NewReader(in.Data)); err != nil {
			return fmt.Errorf("upload pdf: %w", err)
		}

		doc, err := s.docs.Create(ctx, tx, &types.Doc{
			ChatID:         chat.ID,
			FileName:       fileName,
			FileKey:        fileKey,
			MimeType:       mimeType,
			SizeBytes:      int64(len(in.Data)),
			CollectionName: collection,
		})
		if err != nil {
			return fmt.Errorf("create doc: %w", err)
		}

		job, err := s.queue.Enqueue(ctx, tx, types.JobNameIngestPDF, types.IngestPDFPayload{
			ChatID:         chat.ID,
			DocumentID:     doc.ID,
			FileKey:        fileKey,
			FileName:       fileName,
			MimeType:       mimeType,
			SizeBytes:      int64(len(in.Data)),
			CollectionName: collection,
		})
		if err != nil {
			return err
		}

		result = &IngestResult{
			Chat: chat,
			Doc:  doc,
			Job:  job,
			Text: fmt.Sprintf("Queued %q for ingestion", fileName),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Upload accepted", "chat_id", result.Chat.ID, "document_id", result.Doc.ID, "job_id", result.Job.ID, "collection", result.Doc.CollectionName)
	return result, nil
}

func (s *chatService) GetChat(ctx context.Context, id int) (*types.Chat, error) {
	chat, err := s.chats.GetWithRelations(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *chatService) ListDocs(ctx context.Context) ([]*types.Doc, error) {
	return s.docs.List(ctx, nil)
}
