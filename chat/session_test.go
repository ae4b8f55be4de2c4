package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

func newTestSession(t *testing.T, backend *testbackend, feed *testfeed) *Session {
	t.Helper()
	backend.T = t
	s := NewSession(SessionConfig{
		Logger:   slogt.New(t),
		ViewerID: "u1",
		Backend:  backend,
		Feed:     feed,
	})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSession_Start(t *testing.T) {
	var statuses []bool
	backend := &testbackend{
		fetchAll: func(t *testing.T) (Snapshot, error) {
			return Snapshot{
				Users:         []User{{ID: "u1"}, {ID: "u2"}},
				Conversations: []Conversation{{ID: "c1", Name: "general", IsChannel: true}},
				Messages:      []Message{testMessage("m1", "c1", at(0))},
			}, nil
		},
		updateStatus: func(t *testing.T, online bool) error {
			statuses = append(statuses, online)
			return nil
		},
		statuses: func(t *testing.T) (map[string]bool, error) {
			return map[string]bool{"u2": true, "u1": false}, nil
		},
	}
	feed := &testfeed{}
	s := newTestSession(t, backend, feed)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if n := len(s.Store().Users()); n != 2 {
		t.Errorf("Got %d users, want 2", n)
	}
	if diff := cmp.Diff(map[string]bool{"u1": true, "u2": true}, s.Store().Presence()); diff != "" {
		t.Errorf("Presence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{PresenceChannel}, feed.open()); diff != "" {
		t.Errorf("Open subscriptions mismatch (-want +got):\n%s", diff)
	}

	feed.publish(PresenceChannel, `{"type": "status.changed", "data": {"userId": "u2", "isOnline": false}}`)
	feed.publish(PresenceChannel, `{"type": "user.created", "data": {"id": "u3", "username": "new"}}`)
	eventually(t, func() bool {
		_, ok := s.Store().User("u3")
		return ok && !s.Store().Online("u2")
	})

	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]bool{true, false}, statuses); diff != "" {
		t.Errorf("Status updates mismatch (-want +got):\n%s", diff)
	}
	if len(feed.open()) != 0 {
		t.Errorf("Got open subscriptions %v after Close()", feed.open())
	}
}

func TestSession_StartFetchError(t *testing.T) {
	backend := &testbackend{
		fetchAll: func(t *testing.T) (Snapshot, error) {
			return Snapshot{}, &TransportError{Op: "bootstrap", Status: 502}
		},
	}
	s := newTestSession(t, backend, &testfeed{})

	if err := s.Start(context.Background()); !errors.Is(err, ErrTransport) {
		t.Errorf("Got %v, want ErrTransport", err)
	}
}

func TestSession_Select(t *testing.T) {
	backend := &testbackend{
		fetchPage: func(t *testing.T, conversationID string, page int) (Page, error) {
			return Page{Messages: []Message{testMessage(conversationID+"-old", conversationID, at(-10))}, HasMore: true}, nil
		},
	}
	feed := &testfeed{}
	s := newTestSession(t, backend, feed)
	ctx := context.Background()

	if err := s.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Select(ctx, "c2"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"conversation-c2"}, feed.open()); diff != "" {
		t.Errorf("Open subscriptions mismatch (-want +got):\n%s", diff)
	}
	want := PageState{ConversationID: "c2", CurrentPage: 1, HasMore: true}
	if diff := cmp.Diff(want, s.Pagination()); diff != "" {
		t.Errorf("Pagination mismatch (-want +got):\n%s", diff)
	}

	feed.publish("conversation-c2", `{"type": "message.created", "data": {"id": "n1", "content": "hi", "created_by": "u2", "conversation_id": "c2", "created_at": "2024-01-01T10:00:00Z"}}`)
	eventually(t, func() bool { return len(s.Timeline()) == 2 })
	if diff := cmp.Diff([]string{"c2-old", "n1"}, ids(s.Timeline())); diff != "" {
		t.Errorf("Timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_Send(t *testing.T) {
	tests := []struct {
		name     string
		selected bool
		content  string
		parentID string
		draft    func() *Draft
		sendErr  error
		wantErr  error
		wantReq  *SendRequest
	}{
		{name: "NoConversation", content: "hi", wantErr: ErrNoConversation},
		{name: "Empty", selected: true, content: "   ", wantErr: ErrEmptyMessage},
		{name: "NestedReply", selected: true, content: "hi", parentID: "r1", wantErr: ErrNestedReply},
		{
			name:     "UploadPending",
			selected: true,
			content:  "look",
			draft: func() *Draft {
				d := &Draft{}
				d.AddTemp("a.png", "image/png", 1, "blob:a")
				return d
			},
			wantErr: ErrUploadPending,
		},
		{
			name:     "TransportError",
			selected: true,
			content:  "hi",
			sendErr:  &TransportError{Op: "send", Status: 500},
			wantErr:  ErrTransport,
		},
		{
			name:     "Reply",
			selected: true,
			content:  " thanks ",
			parentID: "p1",
			wantReq:  &SendRequest{Content: "thanks", ConversationID: "c1", ParentMessageID: "p1"},
		},
		{
			name:     "AttachmentOnly",
			selected: true,
			draft: func() *Draft {
				d := &Draft{}
				d.Complete(FileAttachment{ID: "f1", Name: "a.png"})
				return d
			},
			wantReq: &SendRequest{ConversationID: "c1", Files: []FileAttachment{{ID: "f1", Name: "a.png"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sent *SendRequest
			backend := &testbackend{
				sendMessage: func(t *testing.T, req SendRequest) error {
					if tt.sendErr != nil {
						return tt.sendErr
					}
					sent = &req
					return nil
				},
			}
			s := newTestSession(t, backend, &testfeed{})
			s.Store().UpsertMessage(testMessage("p1", "c1", at(0)))
			s.Store().UpsertMessage(Message{ID: "r1", CreatedBy: "u2", ConversationID: "c1", CreatedAt: at(1), ParentMessageID: "p1"})
			if tt.selected {
				if err := s.Select(context.Background(), "c1"); err != nil {
					t.Fatal(err)
				}
			}
			var draft *Draft
			if tt.draft != nil {
				draft = tt.draft()
			}

			err := s.Send(context.Background(), tt.content, tt.parentID, draft)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.wantReq, sent); diff != "" {
				t.Errorf("Request mismatch (-want +got):\n%s", diff)
			}
			if draft != nil && len(draft.Files()) != 0 {
				t.Error("Draft not cleared after send")
			}
		})
	}
}

func TestSession_SelectWhileLoading(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	backend := &testbackend{
		fetchPage: func(t *testing.T, conversationID string, page int) (Page, error) {
			if conversationID == "c1" {
				close(started)
				<-release
			}
			return Page{Messages: []Message{testMessage(conversationID+"-old", conversationID, at(-10))}}, nil
		},
	}
	feed := &testfeed{}
	s := newTestSession(t, backend, feed)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- s.Select(ctx, "c1") }()
	<-started

	// c1's first page is still in flight.
	if err := s.Select(ctx, "c2"); err != nil {
		t.Fatal(err)
	}
	unblock()
	if err := <-errc; err != nil {
		t.Errorf("Superseded Select() error: %v", err)
	}

	if _, ok := s.Store().Message("c1-old"); ok {
		t.Error("Page of the previous conversation was ingested")
	}
	if diff := cmp.Diff([]string{"conversation-c2"}, feed.open()); diff != "" {
		t.Errorf("Open subscriptions mismatch (-want +got):\n%s", diff)
	}
	want := PageState{ConversationID: "c2", CurrentPage: 1}
	if diff := cmp.Diff(want, s.Pagination()); diff != "" {
		t.Errorf("Pagination mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c2-old"}, ids(s.Timeline())); diff != "" {
		t.Errorf("Timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_ToggleReaction(t *testing.T) {
	t.Run("Optimistic", func(t *testing.T) {
		var got []string
		backend := &testbackend{
			toggleReaction: func(t *testing.T, messageID, emoji string) error {
				got = append(got, messageID+" "+emoji)
				return nil
			},
		}
		s := newTestSession(t, backend, &testfeed{})
		s.Store().UpsertMessage(testMessage("m1", "c1", at(0)))

		action, err := s.ToggleReaction(context.Background(), "m1", "👍")
		if err != nil {
			t.Fatal(err)
		}
		if action != AddReaction {
			t.Errorf("Got %s, want add", action)
		}
		m, _ := s.Store().Message("m1")
		if diff := cmp.Diff([]ReactionSummary{{Emoji: "👍", Count: 1, ViewerReacted: true}}, Reactions(m, "u1")); diff != "" {
			t.Errorf("Reactions mismatch (-want +got):\n%s", diff)
		}

		action, err = s.ToggleReaction(context.Background(), "m1", "👍")
		if err != nil {
			t.Fatal(err)
		}
		if action != RemoveReaction {
			t.Errorf("Got %s, want remove", action)
		}
		if diff := cmp.Diff([]string{"m1 👍", "m1 👍"}, got); diff != "" {
			t.Errorf("Requests mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("RevertOnError", func(t *testing.T) {
		backend := &testbackend{
			toggleReaction: func(t *testing.T, messageID, emoji string) error {
				return &TransportError{Op: "toggle", Status: 503}
			},
		}
		s := newTestSession(t, backend, &testfeed{})
		s.Store().UpsertMessage(testMessage("m1", "c1", at(0)))

		if _, err := s.ToggleReaction(context.Background(), "m1", "👍"); !errors.Is(err, ErrTransport) {
			t.Fatalf("Got %v, want ErrTransport", err)
		}
		m, _ := s.Store().Message("m1")
		if len(m.Reactions) != 0 {
			t.Errorf("Got reactions %+v after revert", m.Reactions)
		}
	})

	t.Run("RevertAfterPushUpdate", func(t *testing.T) {
		tests := []struct {
			name   string
			before []Reaction
			pushed []Reaction
			want   []Reaction
		}{
			{
				name:   "Add",
				pushed: []Reaction{{Emoji: "👍", Users: []string{"u2"}}},
				want:   []Reaction{{Emoji: "👍", Users: []string{"u2"}}},
			},
			{
				name:   "AddAlreadyApplied",
				pushed: []Reaction{{Emoji: "👍", Users: []string{"u2", "u1"}}},
				want:   []Reaction{{Emoji: "👍", Users: []string{"u2"}}},
			},
			{
				name:   "Remove",
				before: []Reaction{{Emoji: "👍", Users: []string{"u1"}}},
				pushed: []Reaction{{Emoji: "👍", Users: []string{"u2"}}},
				want:   []Reaction{{Emoji: "👍", Users: []string{"u2", "u1"}}},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var s *Session
				backend := &testbackend{
					toggleReaction: func(t *testing.T, messageID, emoji string) error {
						out := s.rec.Apply(MessageUpdated{Patch: MessagePatch{ID: messageID, Reactions: ptr(tt.pushed)}})
						if out != Applied {
							t.Errorf("Got outcome %s, want applied", out)
						}
						return &TransportError{Op: "toggle", Status: 503}
					},
				}
				s = newTestSession(t, backend, &testfeed{})
				m := testMessage("m1", "c1", at(0))
				m.Reactions = tt.before
				s.Store().UpsertMessage(m)

				if _, err := s.ToggleReaction(context.Background(), "m1", "👍"); !errors.Is(err, ErrTransport) {
					t.Fatalf("Got %v, want ErrTransport", err)
				}
				got, _ := s.Store().Message("m1")
				if diff := cmp.Diff(tt.want, got.Reactions); diff != "" {
					t.Errorf("Reactions mismatch (-want +got):\n%s", diff)
				}
			})
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		s := newTestSession(t, &testbackend{}, &testfeed{})
		s.Store().UpsertMessage(testMessage("m1", "c1", at(0)))
		if _, err := s.ToggleReaction(context.Background(), "m1", "like"); !errors.Is(err, ErrInvalidReaction) {
			t.Errorf("Got %v, want ErrInvalidReaction", err)
		}
		if _, err := s.ToggleReaction(context.Background(), "m404", "👍"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Got %v, want ErrNotFound", err)
		}
	})
}

func TestSession_Upload(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		var body string
		backend := &testbackend{
			requestUpload: func(t *testing.T, fileName, fileType string) (UploadTarget, error) {
				if fileName != "a.txt" || fileType != "text/plain" {
					t.Errorf("Got %q %q", fileName, fileType)
				}
				return UploadTarget{UploadURL: "https://bucket/put", File: FileAttachment{ID: "f1", URL: "https://cdn/a.txt"}}, nil
			},
			transfer: func(t *testing.T, target UploadTarget, r io.Reader, size int64, fileType string) error {
				b, err := io.ReadAll(r)
				body = string(b)
				return err
			},
		}
		s := newTestSession(t, backend, &testfeed{})
		draft := &Draft{}

		att, err := s.Upload(context.Background(), draft, File{Name: "a.txt", Type: "text/plain", Size: 5, Body: strings.NewReader("hello")})
		if err != nil {
			t.Fatal(err)
		}
		want := FileAttachment{ID: "f1", Name: "a.txt", Type: "text/plain", Size: 5, URL: "https://cdn/a.txt"}
		if diff := cmp.Diff(want, att); diff != "" {
			t.Errorf("Attachment mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]FileAttachment{want}, draft.Files()); diff != "" {
			t.Errorf("Draft mismatch (-want +got):\n%s", diff)
		}
		if body != "hello" {
			t.Errorf("Got body %q", body)
		}
	})

	t.Run("TransferError", func(t *testing.T) {
		backend := &testbackend{
			requestUpload: func(t *testing.T, fileName, fileType string) (UploadTarget, error) {
				return UploadTarget{UploadURL: "https://bucket/put"}, nil
			},
			transfer: func(t *testing.T, target UploadTarget, r io.Reader, size int64, fileType string) error {
				return &TransportError{Op: "transfer", Status: 403}
			},
		}
		s := newTestSession(t, backend, &testfeed{})
		draft := &Draft{}

		if _, err := s.Upload(context.Background(), draft, File{Name: "a.txt", Body: strings.NewReader("x")}); !errors.Is(err, ErrTransport) {
			t.Fatalf("Got %v, want ErrTransport", err)
		}
		if len(draft.Files()) != 0 {
			t.Errorf("Got files %+v after failed upload", draft.Files())
		}
	})
}

func TestSession_UploadWithoutDraft(t *testing.T) {
	s := newTestSession(t, &testbackend{}, &testfeed{})
	if _, err := s.Upload(context.Background(), nil, File{Name: "a.txt"}); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Got %v, want ErrNoDraft", err)
	}
}

func TestSession_OpenDirect(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	backend := &testbackend{
		createConversation: func(t *testing.T, req CreateConversationRequest) (Conversation, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if req.IsChannel {
				t.Error("Direct message requested as channel")
			}
			return Conversation{ID: "dm1", Members: req.Members, CreatedBy: "u1"}, nil
		},
	}
	s := newTestSession(t, backend, &testfeed{})
	ctx := context.Background()

	first, err := s.OpenDirect(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.OpenDirect(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != "dm1" || second.ID != "dm1" {
		t.Errorf("Got %q and %q, want dm1", first.ID, second.ID)
	}
	if calls != 1 {
		t.Errorf("Got %d create calls, want 1", calls)
	}

	if _, err := s.OpenDirect(ctx, "u1"); !errors.Is(err, ErrInvalidDirect) {
		t.Errorf("Got %v, want ErrInvalidDirect", err)
	}
}

func TestSession_OpenDirect_malformed(t *testing.T) {
	backend := &testbackend{
		createConversation: func(t *testing.T, req CreateConversationRequest) (Conversation, error) {
			return Conversation{ID: "x", Members: []string{"u1", "u2", "u3"}}, nil
		},
	}
	s := newTestSession(t, backend, &testfeed{})
	if _, err := s.OpenDirect(context.Background(), "u2"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Got %v, want ErrMalformedResponse", err)
	}
}

func TestSession_CreateChannel(t *testing.T) {
	backend := &testbackend{
		createConversation: func(t *testing.T, req CreateConversationRequest) (Conversation, error) {
			want := CreateConversationRequest{Name: "ops", IsChannel: true, Members: []string{"u1", "u2", "u3"}}
			if diff := cmp.Diff(want, req); diff != "" {
				t.Errorf("Request mismatch (-want +got):\n%s", diff)
			}
			return Conversation{ID: "c9", Name: req.Name, IsChannel: true, Members: req.Members}, nil
		},
	}
	s := newTestSession(t, backend, &testfeed{})

	c, err := s.CreateChannel(context.Background(), "ops", []string{"u2", "u1", "u3", "u2"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Store().Conversation(c.ID); !ok {
		t.Error("Channel not stored")
	}
}
