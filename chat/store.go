package chat

import (
	"sync"
)

type storedMessage struct {
	msg Message
	seq uint64
}

// Store is the in-memory snapshot of users, conversations and messages keyed
// by id. Only the reconciler and fetch-completion handlers write to it; views
// read it. All getters return copies.
type Store struct {
	mu            sync.RWMutex
	users         map[string]User
	conversations map[string]Conversation
	messages      map[string]storedMessage
	presence      map[string]bool
	seq           uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:         make(map[string]User),
		conversations: make(map[string]Conversation),
		messages:      make(map[string]storedMessage),
		presence:      make(map[string]bool),
	}
}

// UpsertUser inserts or replaces a user.
func (s *Store) UpsertUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// User returns the user with the given id.
func (s *Store) User(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// Users returns all users in no particular order.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// UpsertConversation inserts or replaces a conversation.
func (s *Store) UpsertConversation(c Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
}

// Conversation returns the conversation with the given id.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Conversations returns all conversations in no particular order.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	return out
}

// FindDirect returns the direct message conversation whose members are
// exactly a and b.
func (s *Store) FindDirect(a, b string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.IsDirect() && c.HasMembers(a, b) {
			return c, true
		}
	}
	return Conversation{}, false
}

// UpsertMessage inserts a message or replaces the stored one, keeping its
// original insertion sequence.
func (s *Store) UpsertMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.messages[m.ID]; ok {
		s.messages[m.ID] = storedMessage{msg: m.clone(), seq: cur.seq}
		return
	}
	s.insertLocked(m)
}

// InsertMessage inserts m unless a message with the same id exists. It
// reports whether m was inserted.
func (s *Store) InsertMessage(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return false
	}
	s.insertLocked(m)
	return true
}

func (s *Store) insertLocked(m Message) {
	s.seq++
	s.messages[m.ID] = storedMessage{msg: m.clone(), seq: s.seq}
}

// updateMessage applies fn to the stored message with the given id. It
// reports whether the message exists.
func (s *Store) updateMessage(id string, fn func(*Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[id]
	if !ok {
		return false
	}
	m := cur.msg.clone()
	fn(&m)
	s.messages[id] = storedMessage{msg: m, seq: cur.seq}
	return true
}

// Message returns the message with the given id.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sm, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return sm.msg.clone(), true
}

// Messages returns all messages in no particular order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.messages))
	for _, sm := range s.messages {
		out = append(out, sm.msg.clone())
	}
	return out
}

// MessagesIn returns the messages of a conversation, replies included, in no
// particular order.
func (s *Store) MessagesIn(conversationID string) []Message {
	return s.filter(func(m Message) bool { return m.ConversationID == conversationID })
}

// sequenced returns matching messages paired with their insertion sequence.
func (s *Store) sequenced(keep func(Message) bool) []storedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storedMessage
	for _, sm := range s.messages {
		if keep(sm.msg) {
			out = append(out, storedMessage{msg: sm.msg.clone(), seq: sm.seq})
		}
	}
	return out
}

func (s *Store) filter(keep func(Message) bool) []Message {
	sms := s.sequenced(keep)
	out := make([]Message, len(sms))
	for i, sm := range sms {
		out[i] = sm.msg
	}
	return out
}

// SetOnline records the presence flag of a user. The user need not be known.
func (s *Store) SetOnline(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = online
}

// Online reports whether a user is online. Unknown users are offline.
func (s *Store) Online(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[userID]
}

// Presence returns a copy of every known presence flag.
func (s *Store) Presence() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.presence))
	for id, online := range s.presence {
		out[id] = online
	}
	return out
}

// MergePresence overwrites the flags present in statuses and leaves the rest
// untouched.
func (s *Store) MergePresence(statuses map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, online := range statuses {
		s.presence[id] = online
	}
}
