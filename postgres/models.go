package postgres

import (
	"slices"
	"time"

	"github.com/GetStream/chatsync/chat"
	"github.com/uptrace/bun"
)

type user struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       string `bun:",pk"`
	Username string `bun:",notnull"`
	ImageURL string `bun:"image_url"`
	Email    string
}

type conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID        string `bun:",pk"`
	Name      string
	IsChannel bool      `bun:",notnull"`
	CreatedBy string    `bun:",notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
	Members   []member  `bun:"rel:has-many,join:id=conversation_id"`
}

type member struct {
	bun.BaseModel `bun:"table:conversation_members,alias:cm"`

	ConversationID string    `bun:",pk"`
	UserID         string    `bun:",pk"`
	JoinedAt       time.Time `bun:",nullzero,default:now()"`
}

// A message represents a message in the database.
type message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID              string `bun:",pk"`
	Content         string
	CreatedBy       string     `bun:",notnull"`
	ConversationID  string     `bun:",notnull"`
	ParentMessageID string     `bun:",nullzero"`
	CreatedAt       time.Time  `bun:",nullzero,default:now()"`
	Reactions       []reaction `bun:"rel:has-many,join:id=message_id"`
	Files           []file     `bun:"rel:has-many,join:id=message_id"`
}

// A reaction is one user's emoji on a message.
type reaction struct {
	bun.BaseModel `bun:"table:reactions,alias:r"`

	MessageID string    `bun:",pk"`
	UserID    string    `bun:",pk"`
	Emoji     string    `bun:",pk"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

type file struct {
	bun.BaseModel `bun:"table:file_attachments,alias:f"`

	ID        string `bun:",pk"`
	MessageID string `bun:",notnull"`
	FileName  string `bun:",notnull"`
	FileType  string
	FileSize  int64
	FileURL   string `bun:"file_url"`
}

func (u user) ChatUser() chat.User {
	return chat.User{
		ID:       u.ID,
		Username: u.Username,
		ImageURL: u.ImageURL,
		Email:    u.Email,
	}
}

func (c conversation) ChatConversation() chat.Conversation {
	members := make([]string, len(c.Members))
	for i, m := range c.Members {
		members[i] = m.UserID
	}
	return chat.Conversation{
		ID:        c.ID,
		Name:      c.Name,
		IsChannel: c.IsChannel,
		Members:   members,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
	}
}

func (m message) ChatMessage() chat.Message {
	var files []chat.FileAttachment
	for _, f := range m.Files {
		files = append(files, chat.FileAttachment{
			ID:   f.ID,
			Name: f.FileName,
			Type: f.FileType,
			Size: f.FileSize,
			URL:  f.FileURL,
		})
	}
	return chat.Message{
		ID:              m.ID,
		Content:         m.Content,
		CreatedBy:       m.CreatedBy,
		ConversationID:  m.ConversationID,
		CreatedAt:       m.CreatedAt,
		ParentMessageID: m.ParentMessageID,
		Reactions:       groupReactions(m.Reactions),
		Files:           files,
	}
}

// groupReactions folds per-user reaction rows into one Reaction per emoji,
// keeping the order in which each emoji and user first appears.
func groupReactions(rows []reaction) []chat.Reaction {
	var out []chat.Reaction
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(out)
			index[r.Emoji] = i
			out = append(out, chat.Reaction{Emoji: r.Emoji})
		}
		if !slices.Contains(out[i].Users, r.UserID) {
			out[i].Users = append(out[i].Users, r.UserID)
		}
	}
	return out
}
