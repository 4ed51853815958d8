package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/docuchat-backend/internal/logger"
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

type stubAI struct {
	embedCalls  int
	embedErr    error
	deltas      []string
	streamErr   error
	gotMessages []ChatMessage
}

func (s *stubAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	s.embedCalls++
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (s *stubAI) StreamChat(ctx context.Context, messages []ChatMessage, onDelta func(string)) (string, error) {
	s.gotMessages = messages
	if s.streamErr != nil {
		return "", s.streamErr
	}
	var full strings.Builder
	for _, d := range s.deltas {
		onDelta(d)
		full.WriteString(d)
	}
	return full.String(), nil
}

type stubVectors struct {
	searchErr error
	matches   []VectorMatch
}

func (s *stubVectors) EnsureCollection(ctx context.Context, collection string) error { return nil }
func (s *stubVectors) Upsert(ctx context.Context, collection string, points []VectorPoint) error {
	return nil
}
func (s *stubVectors) Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorMatch, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.matches, nil
}

type stubMessages struct {
	history []*types.Message
	created []*types.Message
}

func (s *stubMessages) Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	s.created = append(s.created, msg)
	return msg, nil
}

func (s *stubMessages) ListByChatID(ctx context.Context, tx *gorm.DB, chatID int) ([]*types.Message, error) {
	return s.history, nil
}

func (s *stubMessages) ListRecent(ctx context.Context, tx *gorm.DB, chatID int, limit int) ([]*types.Message, error) {
	return s.history, nil
}

func collectRecords(t *testing.T, r Responder, in RespondInput) []types.StreamRecord {
	t.Helper()
	var records []types.StreamRecord
	r.Respond(context.Background(), in, func(rec types.StreamRecord) error {
		records = append(records, rec)
		return nil
	})
	return records
}

func TestRespondTokenConcatMatchesRawAnswer(t *testing.T) {
	ai := &stubAI{deltas: []string{`{"answer"`, `: "Hel`, `lo"}`}}
	msgs := &stubMessages{}
	r := NewResponder(testLogger(t), ai, &stubVectors{}, msgs, 4, 10)

	records := collectRecords(t, r, RespondInput{ChatID: 1, Content: "hi"})

	if len(records) == 0 || records[len(records)-1].Type != types.StreamRecordDone {
		t.Fatalf("stream must end with a done record, got %+v", records)
	}
	var concat strings.Builder
	for _, rec := range records {
		if rec.Type == types.StreamRecordError {
			t.Fatalf("unexpected error record: %s", rec.Message)
		}
		if rec.Type == types.StreamRecordToken {
			concat.WriteString(rec.Text)
		}
	}
	if concat.String() != `{"answer": "Hello"}` {
		t.Fatalf("token concatenation must equal the raw model output, got %q", concat.String())
	}

	// User message first, formatted assistant message second.
	if len(msgs.created) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs.created))
	}
	if msgs.created[0].Role != types.MessageRoleUser || msgs.created[0].Content != "hi" {
		t.Fatalf("unexpected user message: %+v", msgs.created[0])
	}
	if msgs.created[1].Role != types.MessageRoleAssistant || msgs.created[1].Content != "Hello" {
		t.Fatalf("unexpected assistant message: %+v", msgs.created[1])
	}
}

func TestRespondMissingCollectionStillCompletes(t *testing.T) {
	ai := &stubAI{deltas: []string{`{"answer": "no context"}`}}
	vectors := &stubVectors{searchErr: fmt.Errorf("lookup: %w", ErrCollectionNotFound)}
	r := NewResponder(testLogger(t), ai, vectors, &stubMessages{}, 4, 10)

	records := collectRecords(t, r, RespondInput{ChatID: 1, Content: "hi", CollectionName: "chat_1_0_doc"})

	for _, rec := range records {
		if rec.Type == types.StreamRecordError {
			t.Fatalf("a not-yet-indexed collection must not fail the turn: %s", rec.Message)
		}
	}
	if records[len(records)-1].Type != types.StreamRecordDone {
		t.Fatalf("stream must end with done, got %+v", records)
	}
	if ai.embedCalls != 1 {
		t.Fatalf("expected the query to be embedded once, got %d", ai.embedCalls)
	}
}

func TestRespondGenerationErrorEmitsErrorThenDone(t *testing.T) {
	ai := &stubAI{streamErr: errors.New("model unavailable")}
	msgs := &stubMessages{}
	r := NewResponder(testLogger(t), ai, &stubVectors{}, msgs, 4, 10)

	records := collectRecords(t, r, RespondInput{ChatID: 1, Content: "hi"})

	if len(records) != 2 {
		t.Fatalf("expected error then done, got %+v", records)
	}
	if records[0].Type != types.StreamRecordError || records[1].Type != types.StreamRecordDone {
		t.Fatalf("expected error then done, got %+v", records)
	}
	// The user message survives the failed turn; no assistant row exists.
	if len(msgs.created) != 1 || msgs.created[0].Role != types.MessageRoleUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgs.created)
	}
}

func TestRespondAbortedStreamWritesNoAssistantMessage(t *testing.T) {
	ai := &stubAI{deltas: []string{"partial ", "answer"}}
	msgs := &stubMessages{}
	r := NewResponder(testLogger(t), ai, &stubVectors{}, msgs, 4, 10)

	emitted := 0
	r.Respond(context.Background(), RespondInput{ChatID: 1, Content: "hi"}, func(rec types.StreamRecord) error {
		emitted++
		if emitted > 1 {
			return errors.New("client gone")
		}
		return nil
	})

	for _, m := range msgs.created {
		if m.Role == types.MessageRoleAssistant {
			t.Fatalf("aborted stream must not persist an assistant message: %+v", m)
		}
	}
}

func TestRespondIncludesHistoryInOrder(t *testing.T) {
	history := []*types.Message{
		{ChatID: 1, Role: types.MessageRoleUser, Content: "first question"},
		{ChatID: 1, Role: types.MessageRoleAssistant, Content: "first answer"},
	}
	ai := &stubAI{deltas: []string{`{"answer": "ok"}`}}
	r := NewResponder(testLogger(t), ai, &stubVectors{}, &stubMessages{history: history}, 4, 10)

	collectRecords(t, r, RespondInput{ChatID: 1, Content: "second question"})

	got := ai.gotMessages
	if len(got) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(got))
	}
	if got[0].Role != "system" {
		t.Fatalf("first message must be the system prompt, got %q", got[0].Role)
	}
	if got[1].Content != "first question" || got[2].Content != "first answer" {
		t.Fatalf("history out of order: %+v", got[1:3])
	}
	if got[3].Role != types.MessageRoleUser || got[3].Content != "second question" {
		t.Fatalf("current turn must be last, got %+v", got[3])
	}
}
