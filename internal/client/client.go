// Package client consumes the docuchat answer stream. It owns the
// user-facing pacing: raw token records arrive as fast as the server
// produces them, but UI updates are coalesced onto a fixed tick.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/docuchat-backend/internal/types"
)

const defaultFlushInterval = 60 * time.Millisecond

type Options struct {
	BaseURL string

	Timeout       time.Duration
	FlushInterval time.Duration

	HTTPClient *http.Client
}

type Client struct {
	baseURL       string
	flushInterval time.Duration
	httpClient    *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

type SendRequest struct {
	ChatID         int    `json:"chatId"`
	Content        string `json:"content"`
	Role           string `json:"role,omitempty"`
	CollectionName string `json:"collectionName,omitempty"`
}

// Handlers receives the stream callbacks. OnUpdate gets the full answer
// accumulated so far, at most once per flush interval. OnError reports a
// failed turn; accepted tells the caller whether the request reached the
// server. By the time any callback can fire the stream has already
// opened, so accepted is always true and the optimistic user message
// must not be rolled back (the server persists it before generating).
// Requests that never reach the server fail synchronously from Send.
// OnDone receives the authoritative chat re-fetched after the stream
// completes.
type Handlers struct {
	OnUpdate func(full string)
	OnError  func(err error, accepted bool)
	OnDone   func(chat *types.Chat)
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	flush := opts.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:       baseURL,
		flushInterval: flush,
		httpClient:    hc,
	}, nil
}

// Send posts the message and starts consuming its answer stream in the
// background. At most one stream is in flight per client; a new Send or
// a Close tears the previous one down before any of its further
// callbacks can fire.
func (c *Client) Send(ctx context.Context, req SendRequest, h Handlers) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	ctx2, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		cancel()
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		cancel()
		return parseErrorBody(resp.StatusCode, raw)
	}

	s := &stream{
		client:   c,
		ctx:      ctx2,
		cancel:   cancel,
		chatID:   req.ChatID,
		handlers: h,
		done:     make(chan struct{}),
	}
	go s.tick()
	go s.consume(resp.Body)
	return nil
}

// Close cancels any in-flight stream.
func (c *Client) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Client) GetChat(ctx context.Context, id int) (*types.Chat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/chat/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorBody(resp.StatusCode, raw)
	}
	var chat types.Chat
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	return &chat, nil
}

type stream struct {
	client   *Client
	ctx      context.Context
	cancel   context.CancelFunc
	chatID   int
	handlers Handlers
	done     chan struct{}

	mu     sync.Mutex
	full   strings.Builder
	dirty  bool
	closed bool
}

// tick drives the coalesced OnUpdate callbacks. The buffer is flushed at
// most once per interval and never after teardown.
func (s *stream) tick() {
	t := time.NewTicker(s.client.flushInterval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.flush()
		}
	}
}

func (s *stream) flush() {
	s.mu.Lock()
	if s.closed || !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	full := s.full.String()
	s.mu.Unlock()
	if s.handlers.OnUpdate != nil {
		s.handlers.OnUpdate(full)
	}
}

func (s *stream) teardown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	s.cancel()
}

func (s *stream) consume(body io.ReadCloser) {
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	sawDone := false
	var streamErr error

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec types.StreamRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			streamErr = fmt.Errorf("malformed stream record: %w", err)
			break
		}
		switch rec.Type {
		case types.StreamRecordToken:
			s.mu.Lock()
			s.full.WriteString(rec.Text)
			s.dirty = true
			s.mu.Unlock()
		case types.StreamRecordError:
			streamErr = fmt.Errorf("stream error: %s", rec.Message)
		case types.StreamRecordDone:
			sawDone = true
		}
		if sawDone {
			break
		}
	}

	if s.ctx.Err() != nil {
		// Superseded or closed by the caller; no callbacks.
		s.teardown()
		return
	}
	if err := sc.Err(); err != nil && streamErr == nil {
		streamErr = err
	}
	if streamErr == nil && !sawDone {
		streamErr = errors.New("stream closed before done record")
	}

	if streamErr != nil {
		// Discard the partial answer; the server never persisted it. The
		// user message did reach the server, so accepted stays true.
		s.teardown()
		if s.handlers.OnError != nil {
			s.handlers.OnError(streamErr, true)
		}
		return
	}

	s.flush()
	s.teardown()

	// Reconcile with the server's durable record rather than trusting
	// the locally accumulated text.
	chat, err := s.client.GetChat(context.Background(), s.chatID)
	if err != nil {
		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("reconcile chat: %w", err), true)
		}
		return
	}
	if s.handlers.OnDone != nil {
		s.handlers.OnDone(chat)
	}
}

func parseErrorBody(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("http %d: %s", status, envelope.Error.Message)
	}
	return fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(raw)))
}
