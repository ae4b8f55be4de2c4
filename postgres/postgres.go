package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/GetStream/chatsync/chat"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// DefaultPageSize is the number of messages in a history page.
const DefaultPageSize = 50

// Postgres reads chat data directly from the chat database on behalf of one
// viewer.
type Postgres struct {
	// ViewerID scopes FetchAll to the channels and direct messages the
	// viewer can see.
	ViewerID string
	PageSize int

	bun *bun.DB
}

var _ chat.Source = (*Postgres)(nil)

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr, viewerID string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		ViewerID: viewerID,
		PageSize: DefaultPageSize,
		bun:      db,
	}, nil
}

// Close closes the database.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// FetchAll returns every user, the conversations visible to the viewer and
// their messages.
func (pg *Postgres) FetchAll(ctx context.Context) (chat.Snapshot, error) {
	var users []user
	if err := pg.bun.NewSelect().Model(&users).Order("username ASC").Scan(ctx); err != nil {
		return chat.Snapshot{}, fmt.Errorf("scan users: %w", err)
	}

	var convs []conversation
	err := pg.bun.NewSelect().
		Model(&convs).
		Relation("Members").
		Where("c.is_channel OR EXISTS (SELECT 1 FROM conversation_members AS v WHERE v.conversation_id = c.id AND v.user_id = ?)", pg.ViewerID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return chat.Snapshot{}, fmt.Errorf("scan conversations: %w", err)
	}

	snap := chat.Snapshot{
		Users:         make([]chat.User, len(users)),
		Conversations: make([]chat.Conversation, len(convs)),
	}
	ids := make([]string, len(convs))
	for i, u := range users {
		snap.Users[i] = u.ChatUser()
	}
	for i, c := range convs {
		snap.Conversations[i] = c.ChatConversation()
		ids[i] = c.ID
	}
	if len(ids) == 0 {
		return snap, nil
	}

	var msgs []message
	err = pg.messages(&msgs).
		Where("m.conversation_id IN (?)", bun.In(ids)).
		Order("m.created_at ASC").
		Scan(ctx)
	if err != nil {
		return chat.Snapshot{}, fmt.Errorf("scan messages: %w", err)
	}
	snap.Messages = make([]chat.Message, len(msgs))
	for i, m := range msgs {
		snap.Messages[i] = m.ChatMessage()
	}
	return snap, nil
}

// FetchPage returns one page of a conversation's history, newest first. Page
// numbers start at 1.
func (pg *Postgres) FetchPage(ctx context.Context, conversationID string, page int) (chat.Page, error) {
	if page < 1 {
		return chat.Page{}, fmt.Errorf("fetch page: invalid page %d", page)
	}
	limit, offset := window(page, pg.PageSize)

	var msgs []message
	err := pg.messages(&msgs).
		Where("m.conversation_id = ?", conversationID).
		Order("m.created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return chat.Page{}, fmt.Errorf("scan: %w", err)
	}
	return toPage(msgs, limit-1), nil
}

// window returns the limit and offset of a page. The limit asks for one row
// more than the page holds so toPage can tell whether an older page exists.
func window(page, size int) (limit, offset int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	return size + 1, (page - 1) * size
}

func toPage(msgs []message, size int) chat.Page {
	out := chat.Page{HasMore: len(msgs) > size}
	if out.HasMore {
		msgs = msgs[:size]
	}
	out.Messages = make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out.Messages[i] = m.ChatMessage()
	}
	return out
}

func (pg *Postgres) messages(dst *[]message) *bun.SelectQuery {
	return pg.bun.NewSelect().
		Model(dst).
		Relation("Reactions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("r.created_at ASC")
		}).
		Relation("Files")
}
