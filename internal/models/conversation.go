package models

import (
	"cmp"
	"encoding/json"
	"slices"
	"time"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Conversation is a chat thread owned by a user identity or, for anonymous sessions, by the device.
type Conversation struct {
	ID    string `json:"id"    db:"id"`
	Title string `json:"title" db:"title"`
	// CreatedDate is an RFC 3339 timestamp. It is kept as text because device records written by older clients
	// may contain values that do not parse.
	CreatedDate string `json:"created_date" db:"created_date"`
}

// Message belongs to exactly one Conversation. Only regeneration updates its text and metadata.
type Message struct {
	ID             string          `json:"id"                 db:"id"`
	ConversationID string          `json:"conversation_id"    db:"conversation_id"`
	Text           string          `json:"text"               db:"text"`
	Sender         Sender          `json:"sender"             db:"sender"`
	CreatedDate    string          `json:"created_date"       db:"created_date"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// MessageMetadata is stored in Message.Metadata for assistant messages carrying a structured response.
type MessageMetadata struct {
	Kind     ResponseKind    `json:"kind"`
	Response json.RawMessage `json:"response"`
}

// FormatTimestamp renders t the way CreatedDate values are stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses a CreatedDate value. ok is false for empty or malformed values.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// compareTimestamps orders parseable timestamps chronologically and puts unparseable ones after all parseable ones.
func compareTimestamps(a, b string, newestFirst bool) int {
	ta, okA := ParseTimestamp(a)
	tb, okB := ParseTimestamp(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	case newestFirst:
		return tb.Compare(ta)
	default:
		return ta.Compare(tb)
	}
}

// SortConversations sorts newest first. Conversations with unparseable dates sort last.
func SortConversations(conversations []Conversation) {
	slices.SortStableFunc(conversations, func(a, b Conversation) int {
		return cmp.Or(compareTimestamps(a.CreatedDate, b.CreatedDate, true), cmp.Compare(a.ID, b.ID))
	})
}

// SortMessages sorts oldest first. Messages with unparseable dates sort last.
func SortMessages(messages []Message) {
	slices.SortStableFunc(messages, func(a, b Message) int {
		return compareTimestamps(a.CreatedDate, b.CreatedDate, false)
	})
}
