package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GetStream/chatsync/chat/validator"
)

// DefaultPresenceInterval is how often WatchPresence refetches statuses.
const DefaultPresenceInterval = 2 * time.Minute

// A Source provides the state that seeds the store and history pages.
type Source interface {
	PageFetcher
	FetchAll(ctx context.Context) (Snapshot, error)
}

// A Backend is the remote chat API.
type Backend interface {
	Source
	SendMessage(ctx context.Context, req SendRequest) error
	ToggleReaction(ctx context.Context, messageID, emoji string) error
	RequestUpload(ctx context.Context, fileName, fileType string) (UploadTarget, error)
	Transfer(ctx context.Context, target UploadTarget, body io.Reader, size int64, fileType string) error
	CreateConversation(ctx context.Context, req CreateConversationRequest) (Conversation, error)
	UpdateStatus(ctx context.Context, online bool) error
	Statuses(ctx context.Context) (map[string]bool, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Logger   *slog.Logger
	ViewerID string
	Backend  Backend
	// Source overrides where snapshots and pages are read from. Defaults to
	// Backend.
	Source Source
	Feed   Feed
}

// A Session is the client state of one signed-in viewer. It owns the store,
// the message subscription of the selected conversation, the presence
// subscription and the paginator.
type Session struct {
	logger   *slog.Logger
	viewerID string
	backend  Backend
	source   Source

	store    *Store
	rec      *Reconciler
	messages *Binding
	presence *Binding
	pages    *Paginator

	selecting sync.Mutex
	mu        sync.Mutex
	active    string
	online    bool
}

// NewSession returns a Session with an empty store.
func NewSession(cfg SessionConfig) *Session {
	source := cfg.Source
	if source == nil {
		source = cfg.Backend
	}
	store := NewStore()
	rec := NewReconciler(cfg.Logger, store)
	s := &Session{
		logger:   cfg.Logger,
		viewerID: cfg.ViewerID,
		backend:  cfg.Backend,
		source:   source,
		store:    store,
		rec:      rec,
	}
	s.messages = &Binding{Logger: cfg.Logger, Feed: cfg.Feed, Handler: rec.HandlePayload}
	s.presence = &Binding{Logger: cfg.Logger, Feed: cfg.Feed, Handler: rec.HandlePayload}
	s.pages = &Paginator{
		Logger:  cfg.Logger,
		Fetcher: source,
		OnPage:  func(msgs []Message) { rec.Ingest(msgs) },
	}
	return s
}

// Store returns the session's store for read-only projections.
func (s *Session) Store() *Store { return s.store }

// ViewerID returns the id of the signed-in user.
func (s *Session) ViewerID() string { return s.viewerID }

// Active returns the selected conversation id.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Pagination returns the paginator state of the selected conversation.
func (s *Session) Pagination() PageState { return s.pages.State() }

// Start seeds the store, subscribes to presence and marks the viewer online.
func (s *Session) Start(ctx context.Context) error {
	snap, err := s.source.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("bulk fetch: %w", err)
	}
	s.rec.Seed(snap)

	if err := s.presence.Bind(ctx, PresenceChannel); err != nil {
		return fmt.Errorf("bind presence: %w", err)
	}
	if err := s.SetOnline(ctx, true); err != nil {
		s.logger.Error("Could not update status", "error", err.Error())
	}
	if err := s.RefreshPresence(ctx); err != nil {
		s.logger.Error("Could not fetch statuses", "error", err.Error())
	}
	return nil
}

// Select makes conversationID the active conversation: the previous message
// subscription is released, pagination is reset and the first page loaded.
// A Select superseded by a later one returns nil once its page is discarded.
func (s *Session) Select(ctx context.Context, conversationID string) error {
	if err := s.switchTo(ctx, conversationID); err != nil {
		return err
	}
	if err := s.pages.Load(ctx); err != nil {
		if errors.Is(err, ErrStalePage) {
			return nil
		}
		return fmt.Errorf("select %s: %w", conversationID, err)
	}
	return nil
}

// switchTo swaps the message subscription and resets pagination. The first
// page is loaded by the caller outside the lock.
func (s *Session) switchTo(ctx context.Context, conversationID string) error {
	s.selecting.Lock()
	defer s.selecting.Unlock()

	if err := s.messages.Unbind(); err != nil {
		s.logger.Error("Could not release conversation", "channel", s.messages.Channel(), "error", err.Error())
	}
	s.pages.Reset(conversationID)
	s.mu.Lock()
	s.active = conversationID
	s.mu.Unlock()

	if err := s.messages.Bind(ctx, ConversationChannel(conversationID)); err != nil {
		return fmt.Errorf("select %s: %w", conversationID, err)
	}
	return nil
}

// LoadMore loads the next page of older messages of the active conversation.
func (s *Session) LoadMore(ctx context.Context) error {
	return s.pages.LoadMore(ctx)
}

// Timeline projects the active conversation.
func (s *Session) Timeline() []Message {
	return Timeline(s.store, s.Active())
}

// Send sends a message to the active conversation. parentID, if set, makes it
// a thread reply. The draft's attachments are sent and the draft cleared on
// success. The stored message arrives through the push feed.
func (s *Session) Send(ctx context.Context, content, parentID string, draft *Draft) error {
	active := s.Active()
	if active == "" {
		return ErrNoConversation
	}

	var files []FileAttachment
	if draft != nil {
		if draft.Pending() {
			return ErrUploadPending
		}
		files = draft.Ready()
	}
	content = strings.TrimSpace(content)
	if content == "" && len(files) == 0 {
		return ErrEmptyMessage
	}
	if parentID != "" {
		if parent, ok := s.store.Message(parentID); ok && parent.IsReply() {
			return ErrNestedReply
		}
	}

	err := s.backend.SendMessage(ctx, SendRequest{
		Content:         content,
		ConversationID:  active,
		ParentMessageID: parentID,
		Files:           files,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if draft != nil {
		draft.Clear()
	}
	return nil
}

// ToggleReaction adds or removes the viewer's emoji on a message. The store
// is updated right away and reverted if the request fails; the push feed
// delivers the authoritative state.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) (ToggleAction, error) {
	if !validator.IsEmoji(emoji) {
		return AddReaction, ErrInvalidReaction
	}
	m, ok := s.store.Message(messageID)
	if !ok {
		return AddReaction, fmt.Errorf("toggle reaction on %s: %w", messageID, ErrNotFound)
	}
	action := ToggleDirection(m, s.viewerID, emoji)

	if err := s.rec.setReaction(messageID, emoji, s.viewerID, action == AddReaction); err != nil {
		return action, err
	}
	if err := s.backend.ToggleReaction(ctx, messageID, emoji); err != nil {
		// Restore the state from before the toggle, whatever arrived meanwhile.
		if rerr := s.rec.setReaction(messageID, emoji, s.viewerID, action == RemoveReaction); rerr != nil {
			s.logger.Error("Could not revert reaction", "message_id", messageID, "error", rerr.Error())
		}
		return action, fmt.Errorf("toggle reaction: %w", err)
	}
	return action, nil
}

// A File is a local file to upload.
type File struct {
	Name       string
	Type       string
	Size       int64
	PreviewURL string
	Body       io.Reader
}

// Upload transfers f and attaches it to draft. While the upload runs the
// draft holds a temporary attachment; it is discarded on failure.
func (s *Session) Upload(ctx context.Context, draft *Draft, f File) (FileAttachment, error) {
	if draft == nil {
		return FileAttachment{}, ErrNoDraft
	}
	draft.AddTemp(f.Name, f.Type, f.Size, f.PreviewURL)

	target, err := s.backend.RequestUpload(ctx, f.Name, f.Type)
	if err != nil {
		draft.Discard(f.Name)
		return FileAttachment{}, fmt.Errorf("request upload: %w", err)
	}
	if err := s.backend.Transfer(ctx, target, f.Body, f.Size, f.Type); err != nil {
		draft.Discard(f.Name)
		return FileAttachment{}, fmt.Errorf("transfer %s: %w", f.Name, err)
	}

	att := target.File
	if att.Name == "" {
		att.Name = f.Name
	}
	if att.Type == "" {
		att.Type = f.Type
	}
	if att.Size == 0 {
		att.Size = f.Size
	}
	att.Temp = false
	draft.Complete(att)
	return att, nil
}

// OpenDirect returns the direct message conversation between the viewer and
// userID, creating it if needed.
func (s *Session) OpenDirect(ctx context.Context, userID string) (Conversation, error) {
	if userID == "" || userID == s.viewerID {
		return Conversation{}, ErrInvalidDirect
	}
	if c, ok := s.store.FindDirect(s.viewerID, userID); ok {
		return c, nil
	}

	c, err := s.backend.CreateConversation(ctx, CreateConversationRequest{
		Members: []string{s.viewerID, userID},
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("create direct message: %w", err)
	}
	if c.ID == "" || !c.IsDirect() || !c.HasMembers(s.viewerID, userID) {
		return Conversation{}, fmt.Errorf("create direct message: %w", ErrMalformedResponse)
	}
	s.store.UpsertConversation(c)
	return c, nil
}

// CreateChannel creates a named channel with the viewer and members.
func (s *Session) CreateChannel(ctx context.Context, name string, members []string) (Conversation, error) {
	all := []string{s.viewerID}
	for _, id := range members {
		if !slices.Contains(all, id) {
			all = append(all, id)
		}
	}
	c, err := s.backend.CreateConversation(ctx, CreateConversationRequest{
		Name:      name,
		IsChannel: true,
		Members:   all,
	})
	if err != nil {
		return Conversation{}, fmt.Errorf("create channel: %w", err)
	}
	if c.ID == "" {
		return Conversation{}, fmt.Errorf("create channel: %w", ErrMalformedResponse)
	}
	s.store.UpsertConversation(c)
	return c, nil
}

// SetOnline publishes the viewer's presence.
func (s *Session) SetOnline(ctx context.Context, online bool) error {
	if err := s.backend.UpdateStatus(ctx, online); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
	s.store.SetOnline(s.viewerID, online)
	return nil
}

// RefreshPresence refetches every user's status.
func (s *Session) RefreshPresence(ctx context.Context) error {
	statuses, err := s.backend.Statuses(ctx)
	if err != nil {
		return fmt.Errorf("fetch statuses: %w", err)
	}
	if statuses == nil {
		statuses = make(map[string]bool)
	}
	s.mu.Lock()
	if s.online {
		statuses[s.viewerID] = true
	}
	s.mu.Unlock()
	s.store.MergePresence(statuses)
	return nil
}

// WatchPresence refreshes statuses every interval until ctx is done.
func (s *Session) WatchPresence(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshPresence(ctx); err != nil {
				s.logger.Error("Could not refresh statuses", "error", err.Error())
			}
		}
	}
}

// Close marks the viewer offline and releases both subscriptions.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.messages.Unbind(); err != nil {
		errs = append(errs, err)
	}
	if err := s.SetOnline(ctx, false); err != nil {
		errs = append(errs, err)
	}
	if err := s.presence.Unbind(); err != nil {
		errs = append(errs, err)
	}
	s.mu.Lock()
	s.active = ""
	s.mu.Unlock()
	return errors.Join(errs...)
}
