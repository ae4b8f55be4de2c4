package chat

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// maxRepliers is how many distinct repliers a thread summary shows.
const maxRepliers = 3

func sortSequenced(sms []storedMessage) []Message {
	slices.SortFunc(sms, func(a, b storedMessage) int {
		if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Message, len(sms))
	for i, sm := range sms {
		out[i] = sm.msg
	}
	return out
}

// Timeline returns the top-level messages of a conversation, oldest first.
// Messages with equal timestamps keep their store insertion order.
func Timeline(store *Store, conversationID string) []Message {
	return sortSequenced(store.sequenced(func(m Message) bool {
		return m.ConversationID == conversationID && !m.IsReply()
	}))
}

// A DateGroup is a run of timeline messages sharing a calendar day.
type DateGroup struct {
	Label    string
	Date     time.Time
	Messages []Message
}

// GroupByDate splits a timeline into contiguous runs per calendar day in the
// location of now. Groups are labeled "Today", "Yesterday" or the long date.
func GroupByDate(timeline []Message, now time.Time) []DateGroup {
	loc := now.Location()
	today := startOfDay(now)

	var groups []DateGroup
	for _, m := range timeline {
		day := startOfDay(m.CreatedAt.In(loc))
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{
			Label:    dateLabel(day, today),
			Date:     day,
			Messages: []Message{m},
		})
	}
	return groups
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dateLabel(day, today time.Time) string {
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Monday, January 2, 2006")
	}
}

// ThreadSummary is the compact thread badge shown under a parent message.
type ThreadSummary struct {
	ReplyCount  int
	Repliers    []string
	LastReplyAt time.Time
}

// ThreadView is a parent message with its replies, oldest first.
type ThreadView struct {
	Parent  Message
	Replies []Message
	Summary ThreadSummary
}

// Thread projects the thread rooted at parentID. The parent may be missing
// from the store when only replies have arrived; ok reports whether it was
// found.
func Thread(store *Store, parentID string) (view ThreadView, ok bool) {
	view.Parent, ok = store.Message(parentID)
	view.Replies = sortSequenced(store.sequenced(func(m Message) bool {
		return m.ParentMessageID == parentID
	}))
	view.Summary = summarize(view.Replies)
	return view, ok
}

// ThreadSummaries returns a summary per parent message id for every thread in
// a conversation.
func ThreadSummaries(store *Store, conversationID string) map[string]ThreadSummary {
	replies := sortSequenced(store.sequenced(func(m Message) bool {
		return m.ConversationID == conversationID && m.IsReply()
	}))
	byParent := make(map[string][]Message)
	for _, m := range replies {
		byParent[m.ParentMessageID] = append(byParent[m.ParentMessageID], m)
	}
	out := make(map[string]ThreadSummary, len(byParent))
	for parent, msgs := range byParent {
		out[parent] = summarize(msgs)
	}
	return out
}

func summarize(replies []Message) ThreadSummary {
	s := ThreadSummary{ReplyCount: len(replies)}
	for _, m := range replies {
		if len(s.Repliers) < maxRepliers && !slices.Contains(s.Repliers, m.CreatedBy) {
			s.Repliers = append(s.Repliers, m.CreatedBy)
		}
		if m.CreatedAt.After(s.LastReplyAt) {
			s.LastReplyAt = m.CreatedAt
		}
	}
	return s
}

// Search returns the messages whose content contains query, ignoring case,
// newest first. An empty query matches nothing.
func Search(store *Store, query string) []Message {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	found := sortSequenced(store.sequenced(func(m Message) bool {
		return strings.Contains(strings.ToLower(m.Content), query)
	}))
	slices.Reverse(found)
	return found
}

// DirectPartner returns the member of a direct message that is not viewerID.
func DirectPartner(c Conversation, viewerID string) (string, bool) {
	if !c.IsDirect() {
		return "", false
	}
	for _, id := range c.Members {
		if id != viewerID {
			return id, true
		}
	}
	return "", false
}

// ConversationTitle returns the display name of a conversation: "# name" for
// channels, the partner's username for direct messages.
func ConversationTitle(store *Store, c Conversation, viewerID string) string {
	if c.IsChannel {
		return "# " + c.Name
	}
	if id, ok := DirectPartner(c, viewerID); ok {
		if u, ok := store.User(id); ok && u.Username != "" {
			return u.Username
		}
		return id
	}
	return c.Name
}
