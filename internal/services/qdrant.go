package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docuchat-backend/internal/config"
	"github.com/yungbote/docuchat-backend/internal/logger"
)

// ErrCollectionNotFound signals that a document's collection does not
// exist (yet). Retrieval treats this as an empty result, not a failure.
var ErrCollectionNotFound = errors.New("qdrant collection not found")

var pointIDNamespaceUUID = uuid.MustParse("7c3a92de-5a44-4b1f-9c36-2f4be1e7a8d1")

const maxErrorBodyBytes = 1024

type VectorPoint struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

type VectorMatch struct {
	Score   float64
	Payload map[string]any
}

type VectorStore interface {
	EnsureCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, points []VectorPoint) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorMatch, error)
}

type qdrantStore struct {
	log       *logger.Logger
	baseURL   string
	vectorDim int
	http      *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewQdrantStore(cfg config.QdrantConfig, log *logger.Logger) (VectorStore, error) {
	url := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if url == "" {
		return nil, fmt.Errorf("qdrant url required")
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("qdrant vector dim required")
	}
	return &qdrantStore{
		log:       log.With("service", "QdrantStore"),
		baseURL:   url,
		vectorDim: cfg.VectorDim,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// PointID derives a stable uuid5 for a chunk, so re-running an ingest job
// overwrites the same points instead of duplicating them.
func PointID(collection string, chunkIndex int) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(fmt.Sprintf("%s|%d", collection, chunkIndex))).String()
}

func (s *qdrantStore) EnsureCollection(ctx context.Context, collection string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("collection name required")
	}
	err := s.doJSON(ctx, http.MethodGet, "/collections/"+collection, nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.vectorDim,
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, "/collections/"+collection, req, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", collection, err)
	}
	s.log.Info("Created qdrant collection", "collection", collection, "vector_dim", s.vectorDim)
	return nil
}

func (s *qdrantStore) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("point id required")
		}
		if len(p.Values) == 0 {
			return fmt.Errorf("point %q has empty vector", p.ID)
		}
		if len(p.Values) != s.vectorDim {
			return fmt.Errorf("point %q dimension mismatch: expected=%d got=%d", p.ID, s.vectorDim, len(p.Values))
		}
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		body = append(body, map[string]any{
			"id":      p.ID,
			"vector":  p.Values,
			"payload": payload,
		})
	}
	req := map[string]any{"points": body}
	if err := s.doJSON(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", req, nil); err != nil {
		return fmt.Errorf("upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}

func (s *qdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorMatch, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", s.vectorDim, len(vector))
	}
	if topK <= 0 {
		topK = 4
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req, &rawResults); err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(rawResults))
	for _, item := range rawResults {
		out = append(out, VectorMatch{
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return out, nil
}

func (s *qdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("read qdrant response: %w", readErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrCollectionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw))
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode qdrant envelope: %w", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return fmt.Errorf("qdrant error: %s", statusErr)
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode qdrant result: %w", err)
	}
	return nil
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
