package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// PresenceChannel is the always-on channel carrying user and status events.
const PresenceChannel = "presence"

// ConversationChannel returns the push channel of a conversation.
func ConversationChannel(conversationID string) string {
	return "conversation-" + conversationID
}

// A Feed provides push subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// A Subscription delivers raw payloads published on one channel.
type Subscription interface {
	// Next blocks until a payload arrives, ctx is done or the subscription
	// is closed.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Binding owns at most one subscription at a time and feeds its payloads to
// a handler from a single goroutine.
type Binding struct {
	Logger  *slog.Logger
	Feed    Feed
	Handler func([]byte)

	mu      sync.Mutex
	channel string
	sub     Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// Bind subscribes to channel, releasing the current subscription first.
// Binding the channel already bound is a no-op unless its listener has
// stopped, in which case the subscription is re-established.
func (b *Binding) Bind(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil && b.channel == channel && !b.stopped() {
		return nil
	}
	if err := b.unbindLocked(); err != nil {
		b.Logger.Error("Could not release subscription", "channel", b.channel, "error", err.Error())
	}

	sub, err := b.Feed.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	// The listener outlives ctx; only Unbind stops it.
	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	b.channel, b.sub, b.cancel, b.done = channel, sub, cancel, done

	go b.listen(listenCtx, channel, sub, done)
	b.Logger.Info("Subscription bound", "channel", channel)
	return nil
}

func (b *Binding) listen(ctx context.Context, channel string, sub Subscription, done chan struct{}) {
	defer close(done)
	for {
		payload, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.Logger.Error("Subscription ended", "channel", channel, "error", err.Error())
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		b.Handler(payload)
	}
}

// stopped reports whether the listener has exited. b.mu must be held.
func (b *Binding) stopped() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Unbind stops delivering to the handler and then closes the subscription.
// Unbinding an unbound Binding is a no-op.
func (b *Binding) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbindLocked()
}

func (b *Binding) unbindLocked() error {
	if b.sub == nil {
		return nil
	}
	channel, sub := b.channel, b.sub
	b.cancel()
	<-b.done
	b.channel, b.sub, b.cancel, b.done = "", nil, nil, nil

	if err := sub.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close %s: %w", channel, err)
	}
	b.Logger.Info("Subscription released", "channel", channel)
	return nil
}

// Channel returns the bound channel, or "" when unbound.
func (b *Binding) Channel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel
}
