package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docuchat-backend/internal/config"
	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/services"
	"github.com/yungbote/docuchat-backend/internal/types"
)

const (
	embedBatchSize  = 64
	embedBatchLimit = 4
	upsertBatchSize = 128
)

type PDFHandler struct {
	log     *logger.Logger
	bucket  services.BucketService
	ai      services.AIClient
	vectors services.VectorStore
	cfg     config.IngestConfig
}

func NewPDFHandler(baseLog *logger.Logger, bucket services.BucketService, ai services.AIClient, vectors services.VectorStore, cfg config.IngestConfig) *PDFHandler {
	return &PDFHandler{
		log:     baseLog.With("handler", types.JobNameIngestPDF),
		bucket:  bucket,
		ai:      ai,
		vectors: vectors,
		cfg:     cfg,
	}
}

func (h *PDFHandler) Name() string {
	return types.JobNameIngestPDF
}

// Run downloads the stored PDF, extracts and chunks its text, embeds the
// chunks, and upserts them into the document's collection. Point ids are
// derived from (collection, chunk index), so a redelivered job overwrites
// its own points instead of duplicating them.
func (h *PDFHandler) Run(ctx context.Context, job *types.IngestJob) error {
	var p types.IngestPDFPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.FileKey == "" || p.CollectionName == "" || p.DocumentID == 0 {
		return fmt.Errorf("payload missing required fields: file_key=%q collection_name=%q document_id=%d", p.FileKey, p.CollectionName, p.DocumentID)
	}
	log := h.log.With("job_id", job.ID, "document_id", p.DocumentID, "collection", p.CollectionName)

	data, err := h.bucket.DownloadFile(ctx, p.FileKey)
	if err != nil {
		return fmt.Errorf("download %q: %w", p.FileKey, err)
	}

	text, err := ExtractPDFText(data)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	chunks := SplitIntoChunks(text, h.cfg.ChunkSize, h.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		log.Warn("PDF produced no text chunks, nothing to index")
		return nil
	}
	log.Info("Extracted chunks", "chunks", len(chunks), "text_len", len(text))

	vecs := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchLimit)
	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			batch, err := h.ai.Embed(gctx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
			}
			copy(vecs[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := h.vectors.EnsureCollection(ctx, p.CollectionName); err != nil {
		return err
	}

	points := make([]services.VectorPoint, len(chunks))
	for i := range chunks {
		points[i] = services.VectorPoint{
			ID:     services.PointID(p.CollectionName, i),
			Values: vecs[i],
			Payload: map[string]any{
				"text":        chunks[i],
				"chat_id":     p.ChatID,
				"document_id": p.DocumentID,
				"chunk_index": i,
			},
		}
	}
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := h.vectors.Upsert(ctx, p.CollectionName, points[start:end]); err != nil {
			return err
		}
	}

	log.Info("Document indexed", "points", len(points))
	return nil
}
