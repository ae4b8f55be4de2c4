package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// PageState is the pagination state of the active conversation.
type PageState struct {
	ConversationID string
	CurrentPage    int
	HasMore        bool
	IsLoading      bool
}

// PageFetcher fetches one page of a conversation's history.
type PageFetcher interface {
	FetchPage(ctx context.Context, conversationID string, page int) (Page, error)
}

// Paginator loads older messages of one conversation at a time. Switching
// conversations resets it; pages requested before the switch are discarded
// when they arrive.
type Paginator struct {
	Logger  *slog.Logger
	Fetcher PageFetcher
	// OnPage, if set, receives every accepted page before it is merged.
	OnPage func([]Message)

	mu    sync.Mutex
	state PageState
	gen   uint64
	held  []Message
	ids   map[string]struct{}
}

// Reset switches the paginator to conversationID with an empty history.
func (p *Paginator) Reset(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.state = PageState{ConversationID: conversationID}
	p.held = nil
	p.ids = make(map[string]struct{})
}

// State returns the current pagination state.
func (p *Paginator) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Held returns the loaded messages, oldest first.
func (p *Paginator) Held() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.held))
	for i, m := range p.held {
		out[i] = m.clone()
	}
	return out
}

// Load fetches the first page regardless of HasMore. It is a no-op while a
// fetch is in flight.
func (p *Paginator) Load(ctx context.Context) error {
	return p.fetch(ctx, false)
}

// LoadMore fetches the page after CurrentPage. It is a no-op while a fetch is
// in flight or when no older messages remain.
func (p *Paginator) LoadMore(ctx context.Context) error {
	return p.fetch(ctx, true)
}

func (p *Paginator) fetch(ctx context.Context, more bool) error {
	p.mu.Lock()
	if p.state.ConversationID == "" {
		p.mu.Unlock()
		return ErrNoConversation
	}
	if p.state.IsLoading || (more && !p.state.HasMore) {
		p.mu.Unlock()
		return nil
	}
	conversationID, gen := p.state.ConversationID, p.gen
	page := 1
	if more {
		page = p.state.CurrentPage + 1
	}
	p.state.IsLoading = true
	p.mu.Unlock()

	res, err := p.Fetcher.FetchPage(ctx, conversationID, page)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		p.Logger.Info("Discarding stale page", "conversation_id", conversationID, "page", page)
		return fmt.Errorf("page %d of %s: %w", page, conversationID, ErrStalePage)
	}
	p.state.IsLoading = false
	if err != nil {
		return fmt.Errorf("fetch page %d: %w", page, err)
	}

	msgs := slices.Clone(res.Messages)
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if p.OnPage != nil {
		p.OnPage(msgs)
	}

	older := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := p.ids[m.ID]; ok {
			continue
		}
		p.ids[m.ID] = struct{}{}
		older = append(older, m.clone())
	}
	p.held = append(older, p.held...)
	p.state.HasMore = res.HasMore
	p.state.CurrentPage = page
	p.Logger.Debug("Page loaded", "conversation_id", conversationID, "page", page, "count", len(older), "has_more", res.HasMore)
	return nil
}
