package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

var errClosed = errors.New("subscription closed")

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func testMessage(id, conversationID string, createdAt time.Time) Message {
	return Message{
		ID:             id,
		Content:        "message " + id,
		CreatedBy:      "u1",
		ConversationID: conversationID,
		CreatedAt:      createdAt,
	}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met within 1s")
}

type testsub struct {
	channel string
	ch      chan []byte
	closed  chan struct{}
	once    sync.Once
}

func (s *testsub) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, errClosed
	case p := <-s.ch:
		return p, nil
	}
}

func (s *testsub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *testsub) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type testfeed struct {
	mu        sync.Mutex
	subs      []*testsub
	subscribe func(channel string) error
}

func (f *testfeed) Subscribe(_ context.Context, channel string) (Subscription, error) {
	if f.subscribe != nil {
		if err := f.subscribe(channel); err != nil {
			return nil, err
		}
	}
	s := &testsub{channel: channel, ch: make(chan []byte, 16), closed: make(chan struct{})}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s, nil
}

// publish delivers payload to every open subscription on channel.
func (f *testfeed) publish(channel string, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.channel == channel && !s.isClosed() {
			s.ch <- []byte(payload)
		}
	}
}

func (f *testfeed) subscriptions() []*testsub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*testsub(nil), f.subs...)
}

// open returns the channels with an open subscription.
func (f *testfeed) open() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.subs {
		if !s.isClosed() {
			out = append(out, s.channel)
		}
	}
	return out
}

type testbackend struct {
	T                  *testing.T
	fetchAll           func(t *testing.T) (Snapshot, error)
	fetchPage          func(t *testing.T, conversationID string, page int) (Page, error)
	sendMessage        func(t *testing.T, req SendRequest) error
	toggleReaction     func(t *testing.T, messageID, emoji string) error
	requestUpload      func(t *testing.T, fileName, fileType string) (UploadTarget, error)
	transfer           func(t *testing.T, target UploadTarget, body io.Reader, size int64, fileType string) error
	createConversation func(t *testing.T, req CreateConversationRequest) (Conversation, error)
	updateStatus       func(t *testing.T, online bool) error
	statuses           func(t *testing.T) (map[string]bool, error)
}

func (b *testbackend) FetchAll(_ context.Context) (Snapshot, error) {
	if b.fetchAll == nil {
		return Snapshot{}, nil
	}
	return b.fetchAll(b.T)
}

func (b *testbackend) FetchPage(_ context.Context, conversationID string, page int) (Page, error) {
	if b.fetchPage == nil {
		return Page{}, nil
	}
	return b.fetchPage(b.T, conversationID, page)
}

func (b *testbackend) SendMessage(_ context.Context, req SendRequest) error {
	return b.sendMessage(b.T, req)
}

func (b *testbackend) ToggleReaction(_ context.Context, messageID, emoji string) error {
	return b.toggleReaction(b.T, messageID, emoji)
}

func (b *testbackend) RequestUpload(_ context.Context, fileName, fileType string) (UploadTarget, error) {
	return b.requestUpload(b.T, fileName, fileType)
}

func (b *testbackend) Transfer(_ context.Context, target UploadTarget, body io.Reader, size int64, fileType string) error {
	return b.transfer(b.T, target, body, size, fileType)
}

func (b *testbackend) CreateConversation(_ context.Context, req CreateConversationRequest) (Conversation, error) {
	return b.createConversation(b.T, req)
}

func (b *testbackend) UpdateStatus(_ context.Context, online bool) error {
	if b.updateStatus == nil {
		return nil
	}
	return b.updateStatus(b.T, online)
}

func (b *testbackend) Statuses(_ context.Context) (map[string]bool, error) {
	if b.statuses == nil {
		return nil, nil
	}
	return b.statuses(b.T)
}
