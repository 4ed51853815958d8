package repos

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/docuchat-backend/internal/repos/testutil"
	"github.com/yungbote/docuchat-backend/internal/types"
)

func TestGetWithRelationsSortsChronologically(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	chats := NewChatRepo(db, log)
	messages := NewMessageRepo(db, log)
	docs := NewDocRepo(db, log)
	ctx := context.Background()

	chat, err := chats.Create(ctx, tx, &types.Chat{Name: "report"})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	now := time.Now()
	// Insert newest first so the read has to sort.
	for i, offset := range []time.Duration{-time.Minute, -2 * time.Minute, -3 * time.Minute} {
		msg := &types.Message{
			ChatID:    chat.ID,
			Role:      types.MessageRoleUser,
			Content:   []string{"third", "second", "first"}[i],
			CreatedAt: now.Add(offset),
		}
		if _, err := messages.Create(ctx, tx, msg); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	if _, err := docs.Create(ctx, tx, &types.Doc{
		ChatID:         chat.ID,
		FileName:       "report.pdf",
		FileKey:        "uploads/chat_1/report.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      2048,
		CollectionName: "chat_1_0_report_pdf",
	}); err != nil {
		t.Fatalf("create doc: %v", err)
	}

	got, err := chats.GetWithRelations(ctx, tx, chat.ID)
	if err != nil {
		t.Fatalf("get with relations: %v", err)
	}
	if got == nil {
		t.Fatalf("expected chat %d", chat.ID)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got.Messages[i].Content != want {
			t.Fatalf("messages out of order at %d: got %q want %q", i, got.Messages[i].Content, want)
		}
	}
	if len(got.Docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(got.Docs))
	}
}

func TestGetWithRelationsUnknownChat(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	chats := NewChatRepo(db, testutil.Logger(t))

	got, err := chats.GetWithRelations(context.Background(), tx, 999999999)
	if err != nil {
		t.Fatalf("get with relations: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for an unknown chat, got %+v", got)
	}
}

func TestListRecentReturnsChronologicalTail(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	chats := NewChatRepo(db, log)
	messages := NewMessageRepo(db, log)
	ctx := context.Background()

	chat, err := chats.Create(ctx, tx, &types.Chat{Name: "history"})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	now := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := messages.Create(ctx, tx, &types.Message{
			ChatID:    chat.ID,
			Role:      types.MessageRoleUser,
			Content:   []string{"a", "b", "c", "d", "e"}[i],
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	got, err := messages.ListRecent(ctx, tx, chat.ID, 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Content != want {
			t.Fatalf("tail out of order at %d: got %q want %q", i, got[i].Content, want)
		}
	}
}
