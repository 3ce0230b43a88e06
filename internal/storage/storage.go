// Package storage defines the CRUD contract shared by the local and remote persistence backends.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/myrjola/coachline/internal/models"
)

// IdentityHeader carries the authenticated identity on requests to the remote API.
const IdentityHeader = "X-Coach-User-ID"

// AnonymousIdentity is the sentinel identity of sessions that have not been authenticated by the embedding host.
const AnonymousIdentity = "anonymous"

// IsRealIdentity reports whether identity belongs to an authenticated account.
func IsRealIdentity(identity string) bool {
	return identity != "" && identity != AnonymousIdentity
}

// Storage is implemented by both persistence backends. No operation reports a missing record as an error;
// callers branch on the envelope fields instead.
type Storage interface {
	ListConversations(ctx context.Context) (ConversationsEnvelope, error)
	CreateConversation(ctx context.Context, in ConversationInput) (ConversationEnvelope, error)
	UpdateConversation(ctx context.Context, id string, in ConversationInput) (ConversationEnvelope, error)
	DeleteConversation(ctx context.Context, id string) (DeletedEnvelope, error)

	ListMessages(ctx context.Context, q MessageQuery) (MessagesEnvelope, error)
	CreateMessage(ctx context.Context, in MessageInput) (MessageEnvelope, error)
	// UpdateMessage replaces the text and metadata of a message. Local storage is keyed per conversation, so
	// in.ConversationID must name the owning conversation.
	UpdateMessage(ctx context.Context, id string, in MessageInput) (MessageEnvelope, error)

	GetProfile(ctx context.Context) (ProfileEnvelope, error)
	UpdateProfile(ctx context.Context, profile models.Profile) (ProfileEnvelope, error)
}

type ConversationInput struct {
	Title string `json:"title"`
}

type MessageInput struct {
	ConversationID string          `json:"conversation_id"`
	Text           string          `json:"text"`
	Sender         models.Sender   `json:"sender"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// MessageQuery selects messages of a conversation. Cursor is the created_date of the last message already seen.
// Limit <= 0 means no limit.
type MessageQuery struct {
	ConversationID string
	Cursor         string
	Limit          int
}

// The envelopes mirror the wire format of the remote API: {"data": {...}}.

type ConversationsEnvelope struct {
	Data struct {
		Conversations []models.Conversation `json:"conversations"`
	} `json:"data"`
}

type ConversationEnvelope struct {
	Data struct {
		// Conversation is nil when the conversation does not exist.
		Conversation *models.Conversation `json:"conversation"`
	} `json:"data"`
}

type DeletedEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type MessagesEnvelope struct {
	Data struct {
		Messages   []models.Message `json:"messages"`
		HasMore    bool             `json:"hasMore"`
		NextCursor string           `json:"nextCursor,omitempty"`
	} `json:"data"`
}

type MessageEnvelope struct {
	Data struct {
		// Message is nil when the message does not exist.
		Message *models.Message `json:"message"`
	} `json:"data"`
}

type ProfileEnvelope struct {
	Data struct {
		Profile models.Profile `json:"profile"`
	} `json:"data"`
}

// RequestError is returned by the remote backend for non-success HTTP responses.
type RequestError struct {
	StatusCode int
	// Message is the error reported by the server, if any.
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote request failed with status %d: %s", e.StatusCode, e.Message)
}
