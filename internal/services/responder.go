package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/docuchat-backend/internal/answer"
	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/repos"
	"github.com/yungbote/docuchat-backend/internal/types"
)

const respondSystemPrompt = `You are a helpful assistant answering questions about a document the user uploaded.
Ground your answer in the document context below. If the context does not contain the answer, say so instead of guessing.

Context:
%s

Respond with JSON only, in exactly one of two shapes:
{"answer": "<plain text answer>"}
or, when step-by-step instructions fit better:
{"steps": [{"step": "<short title>", "description": "<details>", "code": "<optional code snippet>"}], "note": "<optional closing note>"}`

type RespondInput struct {
	ChatID         int
	Content        string
	Role           string
	CollectionName string
}

// Responder runs one retrieval-augmented answer turn. Every stream ends
// with a done record, errors included; the consumer never has to guess
// whether more records are coming.
type Responder interface {
	Respond(ctx context.Context, in RespondInput, emit func(types.StreamRecord) error)
}

type responder struct {
	log      *logger.Logger
	ai       AIClient
	vectors  VectorStore
	messages repos.MessageRepo

	topK         int
	historyLimit int
}

func NewResponder(baseLog *logger.Logger, ai AIClient, vectors VectorStore, messages repos.MessageRepo, topK int, historyLimit int) Responder {
	if topK <= 0 {
		topK = 4
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &responder{
		log:          baseLog.With("service", "Responder"),
		ai:           ai,
		vectors:      vectors,
		messages:     messages,
		topK:         topK,
		historyLimit: historyLimit,
	}
}

func (r *responder) Respond(ctx context.Context, in RespondInput, emit func(types.StreamRecord) error) {
	log := r.log.With("chat_id", in.ChatID, "collection", in.CollectionName)

	fail := func(stage string, err error) {
		log.Warn("Respond failed", "stage", stage, "error", err)
		_ = emit(types.StreamRecord{Type: types.StreamRecordError, Message: err.Error()})
		_ = emit(types.StreamRecord{Type: types.StreamRecordDone})
	}

	role := in.Role
	if role == "" {
		role = types.MessageRoleUser
	}

	history, err := r.messages.ListRecent(ctx, nil, in.ChatID, r.historyLimit)
	if err != nil {
		fail("history", err)
		return
	}

	// The user message is durable from here on, even if generation fails.
	if _, err := r.messages.Create(ctx, nil, &types.Message{
		ChatID:  in.ChatID,
		Role:    role,
		Content: in.Content,
	}); err != nil {
		fail("persist_user_message", err)
		return
	}

	docContext, err := r.retrieveContext(ctx, in)
	if err != nil {
		fail("retrieve", err)
		return
	}

	chatMessages := make([]ChatMessage, 0, len(history)+2)
	chatMessages = append(chatMessages, ChatMessage{
		Role:    "system",
		Content: fmt.Sprintf(respondSystemPrompt, docContext),
	})
	for _, m := range history {
		chatMessages = append(chatMessages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	chatMessages = append(chatMessages, ChatMessage{Role: types.MessageRoleUser, Content: in.Content})

	// Forward every delta as its own token record; coalescing is the
	// consumer's concern.
	var emitErr error
	full, err := r.ai.StreamChat(ctx, chatMessages, func(delta string) {
		if emitErr != nil {
			return
		}
		emitErr = emit(types.StreamRecord{Type: types.StreamRecordToken, Text: delta})
	})
	if err != nil {
		fail("generate", err)
		return
	}
	if emitErr != nil {
		// Client went away mid-stream; nothing was fully generated from
		// its point of view, so no assistant row is written.
		log.Debug("Stream consumer gone before completion", "error", emitErr)
		return
	}

	formatted := answer.Parse(full).Format()
	if _, err := r.messages.Create(ctx, nil, &types.Message{
		ChatID:  in.ChatID,
		Role:    types.MessageRoleAssistant,
		Content: formatted,
	}); err != nil {
		// The answer already streamed; losing the row is logged, not fatal.
		log.Error("Failed to persist assistant message", "error", err)
	}

	_ = emit(types.StreamRecord{Type: types.StreamRecordDone})
}

// retrieveContext embeds the query and gathers the top matching chunks.
// A collection that does not exist yet (ingestion still running) yields
// empty context rather than an error.
func (r *responder) retrieveContext(ctx context.Context, in RespondInput) (string, error) {
	if strings.TrimSpace(in.CollectionName) == "" {
		return "", nil
	}
	vecs, err := r.ai.Embed(ctx, []string{in.Content})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.vectors.Search(ctx, in.CollectionName, vecs[0], r.topK)
	if errors.Is(err, ErrCollectionNotFound) {
		r.log.Debug("Collection not indexed yet, answering without context", "collection", in.CollectionName)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}

	var b strings.Builder
	for _, m := range matches {
		text, _ := m.Payload["text"].(string)
		meta := map[string]any{}
		for k, v := range m.Payload {
			if k == "text" {
				continue
			}
			meta[k] = v
		}
		metaJSON, _ := json.Marshal(meta)
		fmt.Fprintf(&b, "Page %s [%s]\n", text, string(metaJSON))
	}
	return b.String(), nil
}
