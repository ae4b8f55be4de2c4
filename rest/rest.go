package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GetStream/chatsync/chat"
	"github.com/go-resty/resty/v2"
)

// A TokenSource provides the bearer credential of the signed-in viewer.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Client implements chat.Backend over the chat REST API.
type Client struct {
	Logger *slog.Logger
	Tokens TokenSource

	http *resty.Client
}

var _ chat.Backend = (*Client)(nil)

// New returns a Client for the API at baseURL.
func New(baseURL string, tokens TokenSource, timeout time.Duration, logger *slog.Logger) *Client {
	cli := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{
		Logger: logger,
		Tokens: tokens,
		http:   cli,
	}
}

// request returns an authenticated request, or ErrAuthenticationUnavailable
// when no token can be obtained.
func (c *Client) request(ctx context.Context, op string) (*resty.Request, error) {
	if c.Tokens == nil {
		return nil, fmt.Errorf("%s: %w", op, chat.ErrAuthenticationUnavailable)
	}
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, chat.ErrAuthenticationUnavailable, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, chat.ErrAuthenticationUnavailable)
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

func (c *Client) do(req *resty.Request, op, method, path string, result any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return &chat.TransportError{Op: op, Err: err}
	}
	if resp.IsError() {
		c.Logger.Error("Request failed", "op", op, "status", resp.StatusCode())
		return &chat.TransportError{Op: op, Status: resp.StatusCode(), Body: errorMessage(resp.Body())}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("%s: %w: %v", op, chat.ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts the error text of an API error body.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Details != "" {
			return e.Details
		}
		if e.Error != "" {
			return e.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// FetchAll loads the viewer's users, conversations and messages.
func (c *Client) FetchAll(ctx context.Context) (chat.Snapshot, error) {
	req, err := c.request(ctx, "bootstrap")
	if err != nil {
		return chat.Snapshot{}, err
	}
	var snap chat.Snapshot
	if err := c.do(req, "bootstrap", http.MethodGet, "/api/bootstrap", &snap); err != nil {
		return chat.Snapshot{}, err
	}
	return snap, nil
}

// FetchPage loads one page of a conversation's history.
func (c *Client) FetchPage(ctx context.Context, conversationID string, page int) (chat.Page, error) {
	req, err := c.request(ctx, "fetch page")
	if err != nil {
		return chat.Page{}, err
	}
	req.SetQueryParam("page", strconv.Itoa(page))

	var res struct {
		Messages *[]chat.Message `json:"messages"`
		HasMore  bool            `json:"hasMore"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(req, "fetch page", http.MethodGet, path, &res); err != nil {
		return chat.Page{}, err
	}
	if res.Messages == nil {
		return chat.Page{}, fmt.Errorf("fetch page: %w: no messages field", chat.ErrMalformedResponse)
	}
	return chat.Page{Messages: *res.Messages, HasMore: res.HasMore}, nil
}

// SendMessage submits a message. The stored message arrives on the push feed.
func (c *Client) SendMessage(ctx context.Context, msg chat.SendRequest) error {
	req, err := c.request(ctx, "send message")
	if err != nil {
		return err
	}
	req.SetBody(msg)
	return c.do(req, "send message", http.MethodPost, "/api/messages", nil)
}

// ToggleReaction flips the viewer's emoji on a message.
func (c *Client) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	req, err := c.request(ctx, "toggle reaction")
	if err != nil {
		return err
	}
	req.SetBody(map[string]string{"emoji": emoji})
	path := "/api/messages/" + url.PathEscape(messageID) + "/reactions"
	return c.do(req, "toggle reaction", http.MethodPost, path, nil)
}

// RequestUpload asks for an upload target for a file.
func (c *Client) RequestUpload(ctx context.Context, fileName, fileType string) (chat.UploadTarget, error) {
	req, err := c.request(ctx, "request upload")
	if err != nil {
		return chat.UploadTarget{}, err
	}
	req.SetBody(map[string]string{"fileName": fileName, "fileType": fileType})

	var target chat.UploadTarget
	if err := c.do(req, "request upload", http.MethodPost, "/api/files/upload-url", &target); err != nil {
		return chat.UploadTarget{}, err
	}
	if target.UploadURL == "" || target.File.ID == "" {
		return chat.UploadTarget{}, fmt.Errorf("request upload: %w: missing upload url or file id", chat.ErrMalformedResponse)
	}
	return target, nil
}

// Transfer sends the file bytes to the upload target. The target URL is
// presigned, so no bearer credential is attached.
func (c *Client) Transfer(ctx context.Context, target chat.UploadTarget, body io.Reader, size int64, fileType string) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", fileType).
		SetContentLength(true).
		SetBody(body)

	resp, err := req.Put(target.UploadURL)
	if err != nil {
		return &chat.TransportError{Op: "transfer", Err: err}
	}
	if resp.IsError() {
		return &chat.TransportError{Op: "transfer", Status: resp.StatusCode(), Body: errorMessage(resp.Body())}
	}
	c.Logger.Info("File transferred", "file_id", target.File.ID, "size", size)
	return nil
}

// CreateConversation gets or creates a conversation. For direct messages the
// API returns the existing conversation of the member pair if there is one.
func (c *Client) CreateConversation(ctx context.Context, in chat.CreateConversationRequest) (chat.Conversation, error) {
	req, err := c.request(ctx, "create conversation")
	if err != nil {
		return chat.Conversation{}, err
	}
	req.SetBody(in)

	var conv chat.Conversation
	if err := c.do(req, "create conversation", http.MethodPost, "/api/conversations", &conv); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

// UpdateStatus publishes the viewer's presence.
func (c *Client) UpdateStatus(ctx context.Context, online bool) error {
	req, err := c.request(ctx, "update status")
	if err != nil {
		return err
	}
	req.SetBody(map[string]bool{"isOnline": online})
	return c.do(req, "update status", http.MethodPost, "/api/users/status", nil)
}

// Statuses returns the presence of every user.
func (c *Client) Statuses(ctx context.Context) (map[string]bool, error) {
	req, err := c.request(ctx, "fetch statuses")
	if err != nil {
		return nil, err
	}
	var res struct {
		UserStatuses map[string]bool `json:"userStatuses"`
	}
	if err := c.do(req, "fetch statuses", http.MethodGet, "/api/users/status", &res); err != nil {
		return nil, err
	}
	if res.UserStatuses == nil {
		res.UserStatuses = make(map[string]bool)
	}
	return res.UserStatuses, nil
}
