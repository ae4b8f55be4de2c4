package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationUnavailable is returned when no bearer credential could
	// be obtained. No request is made in that case.
	ErrAuthenticationUnavailable = errors.New("authentication unavailable")
	// ErrTransport is returned when a request fails on the network or with a
	// non-2xx status.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse is returned when a response body has an unexpected
	// shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrMalformedEvent is returned when a push payload cannot be decoded or
	// fails validation.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrStalePage is returned when a page arrives after the paginator moved to
	// another conversation.
	ErrStalePage = errors.New("stale page discarded")
	// ErrNestedReply is returned when replying to a message that is itself a
	// reply.
	ErrNestedReply = errors.New("replies cannot have replies")
	// ErrUploadPending is returned when sending a draft whose uploads have not
	// completed.
	ErrUploadPending = errors.New("upload pending")
	// ErrEmptyMessage is returned when sending a message with no content and
	// no attachments.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidReaction is returned when a reaction is not a single emoji.
	ErrInvalidReaction = errors.New("reaction must be a single emoji")
	// ErrNotFound is returned when an entity is not in the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDirect is returned when a direct message would not have
	// exactly two distinct members.
	ErrInvalidDirect = errors.New("direct message needs two distinct members")
	// ErrNoConversation is returned when an operation needs an active
	// conversation and none is selected.
	ErrNoConversation = errors.New("no conversation selected")
	// ErrNoDraft is returned when uploading without a draft to attach to.
	ErrNoDraft = errors.New("no draft")
)

// A TransportError describes a failed request.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
