package chat

import (
	"slices"
	"time"
)

// A User is a member of the workspace.
type User struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username"`
	ImageURL string `json:"imageUrl"`
	Email    string `json:"email"`
}

// A Conversation is either a named channel or a direct message between two
// users.
type Conversation struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name,omitempty"`
	IsChannel bool      `json:"is_channel"`
	Members   []string  `json:"conversation_members"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDirect reports whether c is a direct message conversation.
func (c Conversation) IsDirect() bool {
	return !c.IsChannel
}

// HasMembers reports whether the member set of c is exactly {a, b}.
func (c Conversation) HasMembers(a, b string) bool {
	if len(c.Members) != 2 || a == b {
		return false
	}
	return (c.Members[0] == a && c.Members[1] == b) ||
		(c.Members[0] == b && c.Members[1] == a)
}

// A Message is a single chat message. Messages with a ParentMessageID are
// thread replies.
type Message struct {
	ID              string           `json:"id" validate:"required"`
	Content         string           `json:"content"`
	CreatedBy       string           `json:"created_by" validate:"required"`
	ConversationID  string           `json:"conversation_id" validate:"required"`
	CreatedAt       time.Time        `json:"created_at" validate:"required"`
	ParentMessageID string           `json:"parent_message_id,omitempty"`
	Reactions       []Reaction       `json:"reactions,omitempty" validate:"unique=Emoji,dive"`
	Files           []FileAttachment `json:"file_attachments,omitempty" validate:"dive"`
}

// IsReply reports whether m belongs to a thread.
func (m Message) IsReply() bool {
	return m.ParentMessageID != ""
}

// clone returns a copy of m that shares no slices with it.
func (m Message) clone() Message {
	out := m
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			out.Reactions[i] = Reaction{Emoji: r.Emoji, Users: slices.Clone(r.Users)}
		}
	}
	out.Files = slices.Clone(m.Files)
	return out
}

// A Reaction is an emoji applied to a message together with the users who
// applied it.
type Reaction struct {
	Emoji string   `json:"emoji" validate:"required,emoji"`
	Users []string `json:"users" validate:"unique"`
}

// A FileAttachment describes an uploaded file. Temporary attachments carry a
// client assigned id and a local preview URL until the upload completes.
type FileAttachment struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"file_name" validate:"required"`
	Type string `json:"file_type"`
	Size int64  `json:"file_size" validate:"gte=0"`
	URL  string `json:"file_url"`
	Temp bool   `json:"isTemp,omitempty"`
}

// A Snapshot is the result of a bulk fetch for the authenticated viewer.
type Snapshot struct {
	Users         []User         `json:"users"`
	Conversations []Conversation `json:"conversations"`
	Messages      []Message      `json:"messages"`
}

// A Page is one page of a conversation's history.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// SendRequest is the payload for sending a message.
type SendRequest struct {
	Content         string           `json:"content"`
	ConversationID  string           `json:"conversationId" validate:"required"`
	ParentMessageID string           `json:"parentMessageId,omitempty"`
	Files           []FileAttachment `json:"fileAttachments,omitempty"`
}

// CreateConversationRequest is the payload for creating a channel or a direct
// message conversation.
type CreateConversationRequest struct {
	Name      string   `json:"name,omitempty"`
	IsChannel bool     `json:"isChannel"`
	Members   []string `json:"members" validate:"required,min=1,unique"`
}

// An UploadTarget is where file bytes are transferred during the second phase
// of an upload. File describes the attachment once the transfer succeeds.
type UploadTarget struct {
	UploadURL string         `json:"uploadUrl"`
	File      FileAttachment `json:"file"`
}
