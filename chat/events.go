package chat

import (
	"encoding/json"
	"fmt"

	"github.com/GetStream/chatsync/chat/validator"
)

// Event types carried in the push envelope.
const (
	TypeMessageCreated = "message.created"
	TypeMessageUpdated = "message.updated"
	TypeUserCreated    = "user.created"
	TypeStatusChanged  = "status.changed"
)

// An Event is one decoded push event. The concrete types are MessageCreated,
// MessageUpdated, UserCreated and StatusChanged.
type Event interface {
	Type() string
}

// MessageCreated carries a newly created message.
type MessageCreated struct {
	Message Message
}

func (MessageCreated) Type() string { return TypeMessageCreated }

// MessageUpdated carries the changed fields of an existing message.
type MessageUpdated struct {
	Patch MessagePatch
}

func (MessageUpdated) Type() string { return TypeMessageUpdated }

// UserCreated announces a user that joined the workspace.
type UserCreated struct {
	User User
}

func (UserCreated) Type() string { return TypeUserCreated }

// StatusChanged reports a presence change.
type StatusChanged struct {
	UserID string `json:"userId" validate:"required"`
	Online bool   `json:"isOnline"`
}

func (StatusChanged) Type() string { return TypeStatusChanged }

// A MessagePatch holds the fields of an update. Nil fields were absent from
// the payload and are left untouched when merged.
type MessagePatch struct {
	ID        string            `json:"id" validate:"required"`
	Content   *string           `json:"content,omitempty"`
	Reactions *[]Reaction       `json:"reactions,omitempty"`
	Files     *[]FileAttachment `json:"file_attachments,omitempty"`
}

// apply merges the present fields of p into m.
func (p MessagePatch) apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Reactions != nil {
		m.Reactions = Message{Reactions: *p.Reactions}.clone().Reactions
	}
	if p.Files != nil {
		m.Files = append([]FileAttachment(nil), *p.Files...)
	}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var validate = validator.New()

// DecodeEvent parses and validates a push payload. Any failure wraps
// ErrMalformedEvent.
func DecodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrMalformedEvent, err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %q has no data", ErrMalformedEvent, env.Type)
	}

	var (
		ev     Event
		target any
	)
	switch env.Type {
	case TypeMessageCreated:
		e := &MessageCreated{}
		ev, target = e, &e.Message
	case TypeMessageUpdated:
		e := &MessageUpdated{}
		ev, target = e, &e.Patch
	case TypeUserCreated:
		e := &UserCreated{}
		ev, target = e, &e.User
	case TypeStatusChanged:
		e := &StatusChanged{}
		ev, target = e, e
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, env.Type)
	}

	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedEvent, env.Type, err)
	}
	if err := validateTarget(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Type, err)
	}

	// Handlers switch on value types.
	switch e := ev.(type) {
	case *MessageCreated:
		return *e, nil
	case *MessageUpdated:
		return *e, nil
	case *UserCreated:
		return *e, nil
	case *StatusChanged:
		return *e, nil
	}
	return ev, nil
}

func validateTarget(target any) error {
	if errs := validate.ValidateStruct(target); len(errs) > 0 {
		return fmt.Errorf("%s", errs[0])
	}
	p, ok := target.(*MessagePatch)
	if !ok {
		return nil
	}
	if p.Reactions != nil {
		if errs := validate.Validate(*p.Reactions, "unique=Emoji"); len(errs) > 0 {
			return fmt.Errorf("reactions: %s", errs[0])
		}
		for i := range *p.Reactions {
			if errs := validate.ValidateStruct(&(*p.Reactions)[i]); len(errs) > 0 {
				return fmt.Errorf("%s", errs[0])
			}
		}
	}
	if p.Files != nil {
		for i := range *p.Files {
			if errs := validate.ValidateStruct(&(*p.Files)[i]); len(errs) > 0 {
				return fmt.Errorf("%s", errs[0])
			}
		}
	}
	return nil
}
