package chat

import (
	"fmt"
	"log/slog"
)

// An Outcome describes what applying an event did to the store.
type Outcome int

const (
	// Applied means the store changed.
	Applied Outcome = iota
	// DuplicateIgnored means a create arrived for an id already stored.
	DuplicateIgnored
	// StaleUpdateIgnored means an update arrived for an unknown id.
	StaleUpdateIgnored
	// Rejected means the event broke a model invariant and was dropped.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case DuplicateIgnored:
		return "duplicate_ignored"
	case StaleUpdateIgnored:
		return "stale_update_ignored"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reconciler merges push events and fetch results into a Store.
type Reconciler struct {
	Logger *slog.Logger
	Store  *Store
}

// NewReconciler returns a Reconciler writing to store.
func NewReconciler(logger *slog.Logger, store *Store) *Reconciler {
	return &Reconciler{Logger: logger, Store: store}
}

// Apply merges one event into the store. Creates for known ids and updates
// for unknown ids leave the store unchanged.
func (r *Reconciler) Apply(ev Event) Outcome {
	switch e := ev.(type) {
	case MessageCreated:
		return r.created(e.Message)
	case MessageUpdated:
		return r.updated(e.Patch)
	case UserCreated:
		r.Store.UpsertUser(e.User)
		return Applied
	case StatusChanged:
		r.Store.SetOnline(e.UserID, e.Online)
		return Applied
	default:
		r.Logger.Warn("Unhandled event", "type", ev.Type())
		return Rejected
	}
}

func (r *Reconciler) created(m Message) Outcome {
	if m.IsReply() {
		if parent, ok := r.Store.Message(m.ParentMessageID); ok && parent.IsReply() {
			r.Logger.Warn("Dropping nested reply", "message_id", m.ID, "parent_id", m.ParentMessageID)
			return Rejected
		}
	}
	if !r.Store.InsertMessage(m) {
		r.Logger.Debug("Duplicate message ignored", "message_id", m.ID)
		return DuplicateIgnored
	}
	return Applied
}

func (r *Reconciler) updated(p MessagePatch) Outcome {
	if !r.Store.updateMessage(p.ID, p.apply) {
		r.Logger.Warn("Update for unknown message ignored", "message_id", p.ID)
		return StaleUpdateIgnored
	}
	return Applied
}

// HandlePayload decodes and applies a raw push payload. Malformed payloads
// are logged and dropped.
func (r *Reconciler) HandlePayload(payload []byte) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		r.Logger.Error("Dropping push event", "error", err.Error())
		return
	}
	outcome := r.Apply(ev)
	r.Logger.Debug("Push event reconciled", "type", ev.Type(), "outcome", outcome.String())
}

// Seed loads a bulk fetch into the store, replacing entities with the same id.
func (r *Reconciler) Seed(snap Snapshot) {
	for _, u := range snap.Users {
		r.Store.UpsertUser(u)
	}
	for _, c := range snap.Conversations {
		r.Store.UpsertConversation(c)
	}
	for _, m := range snap.Messages {
		r.Store.UpsertMessage(m)
	}
	r.Logger.Info("Store seeded",
		"users", len(snap.Users),
		"conversations", len(snap.Conversations),
		"messages", len(snap.Messages))
}

// Ingest inserts fetched messages that are not stored yet. Stored copies may
// carry newer push updates and are kept.
func (r *Reconciler) Ingest(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if r.created(m) == Applied {
			n++
		}
	}
	return n
}

// setReaction makes userID present in or absent from the emoji's reaction on
// a stored message.
func (r *Reconciler) setReaction(messageID, emoji, userID string, present bool) error {
	ok := r.Store.updateMessage(messageID, func(m *Message) {
		m.Reactions = SetReaction(m.Reactions, emoji, userID, present)
	})
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}
