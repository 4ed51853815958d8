package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/docuchat-backend/internal/types"
)

func streamServer(t *testing.T, records []types.StreamRecord, chat *types.Chat) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		flusher := w.(http.Flusher)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return
			}
			flusher.Flush()
		}
	})
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chat)
	})
	return httptest.NewServer(mux)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSendStreamsAndReconciles(t *testing.T) {
	chat := &types.Chat{
		ID: 3,
		Messages: []types.Message{
			{ID: 1, ChatID: 3, Role: types.MessageRoleUser, Content: "hi"},
			{ID: 2, ChatID: 3, Role: types.MessageRoleAssistant, Content: "Hello"},
		},
	}
	srv := streamServer(t, []types.StreamRecord{
		{Type: types.StreamRecordToken, Text: "Hel"},
		{Type: types.StreamRecordToken, Text: "lo"},
		{Type: types.StreamRecordDone},
	}, chat)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, FlushInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	var lastUpdate atomic.Value
	done := make(chan struct{})
	var gotChat *types.Chat
	err = c.Send(context.Background(), SendRequest{ChatID: 3, Content: "hi"}, Handlers{
		OnUpdate: func(full string) { lastUpdate.Store(full) },
		OnError:  func(err error, accepted bool) { t.Errorf("unexpected OnError: %v (accepted=%v)", err, accepted) },
		OnDone: func(chat *types.Chat) {
			gotChat = chat
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, done, "OnDone")

	if gotChat == nil || gotChat.ID != 3 || len(gotChat.Messages) != 2 {
		t.Fatalf("unexpected reconciled chat: %+v", gotChat)
	}
	if v, ok := lastUpdate.Load().(string); ok && !strings.HasPrefix("Hello", v) {
		t.Fatalf("updates must be prefixes of the full answer, got %q", v)
	}
}

func TestSendErrorRecordAfterTokens(t *testing.T) {
	srv := streamServer(t, []types.StreamRecord{
		{Type: types.StreamRecordToken, Text: "partial"},
		{Type: types.StreamRecordError, Message: "model unavailable"},
		{Type: types.StreamRecordDone},
	}, &types.Chat{ID: 1})
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, FlushInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var gotErr error
	var gotAccepted bool
	err = c.Send(context.Background(), SendRequest{ChatID: 1, Content: "hi"}, Handlers{
		OnError: func(err error, accepted bool) {
			gotErr = err
			gotAccepted = accepted
			close(done)
		},
		OnDone: func(chat *types.Chat) { t.Errorf("unexpected OnDone for failed turn") },
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, done, "OnError")

	if gotErr == nil || !strings.Contains(gotErr.Error(), "model unavailable") {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if !gotAccepted {
		t.Fatalf("the request reached the server, accepted must be true")
	}
}

func TestSendErrorRecordBeforeAnyToken(t *testing.T) {
	// A generation failure before the first token still arrives over an
	// opened stream; the server already persisted the user message, so
	// the caller must not be told to roll it back.
	srv := streamServer(t, []types.StreamRecord{
		{Type: types.StreamRecordError, Message: "history lookup failed"},
		{Type: types.StreamRecordDone},
	}, &types.Chat{ID: 1})
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, FlushInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var gotAccepted bool
	err = c.Send(context.Background(), SendRequest{ChatID: 1, Content: "hi"}, Handlers{
		OnError: func(err error, accepted bool) {
			gotAccepted = accepted
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, done, "OnError")

	if !gotAccepted {
		t.Fatalf("the stream opened, accepted must be true even with zero tokens")
	}
}

func TestSendRejectedRequestReturnsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "content is required", "code": "empty_content"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	err = c.Send(context.Background(), SendRequest{ChatID: 1}, Handlers{
		OnError: func(err error, accepted bool) { t.Errorf("validation failures surface from Send, not OnError") },
	})
	if err == nil || !strings.Contains(err.Error(), "content is required") {
		t.Fatalf("expected the server error message, got %v", err)
	}
}

func TestSendSupersedesInFlightStream(t *testing.T) {
	firstStarted := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		flusher := w.(http.Flusher)

		if req.Content == "slow" {
			_ = enc.Encode(types.StreamRecord{Type: types.StreamRecordToken, Text: "never finishes"})
			flusher.Flush()
			close(firstStarted)
			<-r.Context().Done()
			return
		}
		_ = enc.Encode(types.StreamRecord{Type: types.StreamRecordToken, Text: "fast"})
		_ = enc.Encode(types.StreamRecord{Type: types.StreamRecordDone})
		flusher.Flush()
	})
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&types.Chat{ID: 1})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, FlushInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	err = c.Send(context.Background(), SendRequest{ChatID: 1, Content: "slow"}, Handlers{
		OnError: func(err error, accepted bool) { t.Errorf("superseded stream must stay silent, got %v", err) },
		OnDone:  func(chat *types.Chat) { t.Errorf("superseded stream must stay silent") },
	})
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	waitFor(t, firstStarted, "first stream to start")

	done := make(chan struct{})
	err = c.Send(context.Background(), SendRequest{ChatID: 1, Content: "fast"}, Handlers{
		OnDone: func(chat *types.Chat) { close(done) },
	})
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	waitFor(t, done, "second stream OnDone")

	// Give the superseded stream a moment to fire callbacks if it was
	// going to; the Errorf handlers above would catch it.
	time.Sleep(50 * time.Millisecond)
}
