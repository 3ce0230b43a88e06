// Package local implements storage.Storage for anonymous sessions on top of device-persistent records.
//
// Every collection is stored as one serialized JSON array: the conversation list under "conversations" and the
// messages of each conversation under "messages:<conversation id>". Reads that fail for any reason are treated as
// an absent collection and writes that fail are logged and swallowed, so the session keeps working in memory.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/random"
	"github.com/myrjola/coachline/internal/storage"
)

const (
	conversationsKey = "conversations"
	idSuffixLength   = 9
)

var ErrConversationRequired = errors.NewSentinel("conversation id is required to update a local message")

// RecordStore persists serialized collections of a single device.
type RecordStore interface {
	// ReadRecord returns nil without error when the record does not exist.
	ReadRecord(ctx context.Context, key string) ([]byte, error)
	WriteRecord(ctx context.Context, key string, value []byte) error
	DeleteRecord(ctx context.Context, key string) error
}

type Backend struct {
	records RecordStore
	logger  *slog.Logger
	now     func() time.Time

	// mu serialises read-modify-write cycles of the collections.
	mu      sync.Mutex
	profile models.Profile
}

type Option func(*Backend)

// WithClock overrides time.Now for generated ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

func New(records RecordStore, logger *slog.Logger, opts ...Option) *Backend {
	b := &Backend{
		records: records,
		logger:  logger.With("source", "local.Backend"),
		now:     time.Now,
		mu:      sync.Mutex{},
		profile: models.Profile{Niche: "", Experience: "", Discovery: models.NewDiscoveryState()},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func messagesKey(conversationID string) string {
	return "messages:" + conversationID
}

// newID returns an id of the form local_<epoch-ms>_<random suffix>.
func (b *Backend) newID() string {
	suffix, err := random.Alphanumeric(idSuffixLength)
	if err != nil {
		// crypto/rand failing is not worth failing the operation over; nanoseconds keep ids unique enough.
		suffix = fmt.Sprintf("%x", b.now().UnixNano())
	}
	return fmt.Sprintf("local_%d_%s", b.now().UnixMilli(), suffix)
}

// readCollection returns the raw entries of a collection, or nil when it is absent or unreadable.
func (b *Backend) readCollection(ctx context.Context, key string) []json.RawMessage {
	data, err := b.records.ReadRecord(ctx, key)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "treating unreadable collection as empty",
			slog.String("key", key), errors.SlogError(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var entries []json.RawMessage
	if err = json.Unmarshal(data, &entries); err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "treating corrupt collection as empty",
			slog.String("key", key), errors.SlogError(errors.Wrap(err, "decode collection")))
		return nil
	}
	return entries
}

func (b *Backend) writeCollection(ctx context.Context, key string, collection any) {
	data, err := json.Marshal(collection)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelError, "failed to encode collection",
			slog.String("key", key), errors.SlogError(errors.Wrap(err, "encode collection")))
		return
	}
	if err = b.records.WriteRecord(ctx, key, data); err != nil {
		b.logger.LogAttrs(ctx, slog.LevelError, "failed to persist collection, continuing in memory",
			slog.String("key", key), errors.SlogError(err))
	}
}

func (b *Backend) deleteCollection(ctx context.Context, key string) {
	if err := b.records.DeleteRecord(ctx, key); err != nil {
		b.logger.LogAttrs(ctx, slog.LevelError, "failed to delete collection",
			slog.String("key", key), errors.SlogError(err))
	}
}

// appendEntry adds v to a collection. Entries that do not decode are written back untouched; they are only
// hidden when reading.
func (b *Backend) appendEntry(ctx context.Context, key string, v any) {
	entry, err := json.Marshal(v)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelError, "failed to encode entry",
			slog.String("key", key), errors.SlogError(errors.Wrap(err, "encode entry")))
		return
	}
	b.writeCollection(ctx, key, append(b.readCollection(ctx, key), entry))
}

// replaceEntry overwrites entries[i] with v and writes the collection. It reports whether v could be encoded.
func (b *Backend) replaceEntry(ctx context.Context, key string, entries []json.RawMessage, i int, v any) bool {
	entry, err := json.Marshal(v)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelError, "failed to encode entry",
			slog.String("key", key), errors.SlogError(errors.Wrap(err, "encode entry")))
		return false
	}
	entries[i] = entry
	b.writeCollection(ctx, key, entries)
	return true
}

// entryID returns the id of an object entry, or "" when it has none.
func entryID(entry json.RawMessage) string {
	var withID struct {
		ID string `json:"id"`
	}
	if !decodeObject(entry, &withID) {
		return ""
	}
	return withID.ID
}

// decodeObject decodes entry into v only if it is a JSON object.
func decodeObject(entry json.RawMessage, v any) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(entry, &obj); err != nil || obj == nil {
		return false
	}
	return json.Unmarshal(entry, v) == nil
}

// loadConversations returns the well-formed conversations, dropping entries without a parseable created_date.
func (b *Backend) loadConversations(ctx context.Context) []models.Conversation {
	entries := b.readCollection(ctx, conversationsKey)
	conversations := make([]models.Conversation, 0, len(entries))
	for _, entry := range entries {
		var c models.Conversation
		if !decodeObject(entry, &c) {
			continue
		}
		if _, ok := models.ParseTimestamp(c.CreatedDate); !ok {
			continue
		}
		conversations = append(conversations, c)
	}
	return conversations
}

func (b *Backend) loadMessages(ctx context.Context, conversationID string) []models.Message {
	entries := b.readCollection(ctx, messagesKey(conversationID))
	messages := make([]models.Message, 0, len(entries))
	for _, entry := range entries {
		var m models.Message
		if !decodeObject(entry, &m) {
			continue
		}
		messages = append(messages, m)
	}
	return messages
}

func (b *Backend) ListConversations(ctx context.Context) (storage.ConversationsEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var env storage.ConversationsEnvelope
	conversations := b.loadConversations(ctx)
	models.SortConversations(conversations)
	env.Data.Conversations = conversations
	return env, nil
}

func (b *Backend) CreateConversation(
	ctx context.Context,
	in storage.ConversationInput,
) (storage.ConversationEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conversation := models.Conversation{
		ID:          b.newID(),
		Title:       in.Title,
		CreatedDate: models.FormatTimestamp(b.now()),
	}
	b.appendEntry(ctx, conversationsKey, conversation)

	var env storage.ConversationEnvelope
	env.Data.Conversation = &conversation
	return env, nil
}

func (b *Backend) UpdateConversation(
	ctx context.Context,
	id string,
	in storage.ConversationInput,
) (storage.ConversationEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var env storage.ConversationEnvelope
	entries := b.readCollection(ctx, conversationsKey)
	for i, entry := range entries {
		var c models.Conversation
		if !decodeObject(entry, &c) || c.ID != id {
			continue
		}
		if _, ok := models.ParseTimestamp(c.CreatedDate); !ok {
			// Not listed, so not updatable either.
			continue
		}
		c.Title = in.Title
		if !b.replaceEntry(ctx, conversationsKey, entries, i, c) {
			break
		}
		env.Data.Conversation = &c
		break
	}
	return env, nil
}

func (b *Backend) DeleteConversation(ctx context.Context, id string) (storage.DeletedEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var env storage.DeletedEnvelope
	env.Data.ID = id

	entries := b.readCollection(ctx, conversationsKey)
	kept := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		if entryID(entry) != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) != len(entries) {
		b.writeCollection(ctx, conversationsKey, kept)
	}
	b.deleteCollection(ctx, messagesKey(id))
	return env, nil
}

// ListMessages ignores pagination and always returns the whole conversation.
func (b *Backend) ListMessages(ctx context.Context, q storage.MessageQuery) (storage.MessagesEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var env storage.MessagesEnvelope
	messages := b.loadMessages(ctx, q.ConversationID)
	models.SortMessages(messages)
	env.Data.Messages = messages
	env.Data.HasMore = false
	return env, nil
}

func (b *Backend) CreateMessage(ctx context.Context, in storage.MessageInput) (storage.MessageEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	message := models.Message{
		ID:             b.newID(),
		ConversationID: in.ConversationID,
		Text:           in.Text,
		Sender:         in.Sender,
		CreatedDate:    models.FormatTimestamp(b.now()),
		Metadata:       in.Metadata,
	}
	b.appendEntry(ctx, messagesKey(in.ConversationID), message)

	var env storage.MessageEnvelope
	env.Data.Message = &message
	return env, nil
}

func (b *Backend) UpdateMessage(
	ctx context.Context,
	id string,
	in storage.MessageInput,
) (storage.MessageEnvelope, error) {
	var env storage.MessageEnvelope
	if in.ConversationID == "" {
		return env, errors.Wrap(ErrConversationRequired, "update local message", slog.String("message_id", id))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := messagesKey(in.ConversationID)
	entries := b.readCollection(ctx, key)
	for i, entry := range entries {
		var m models.Message
		if !decodeObject(entry, &m) || m.ID != id {
			continue
		}
		m.Text = in.Text
		m.Metadata = in.Metadata
		if !b.replaceEntry(ctx, key, entries, i, m) {
			break
		}
		env.Data.Message = &m
		break
	}
	return env, nil
}

// GetProfile returns the in-memory profile. Anonymous profiles are never durable.
func (b *Backend) GetProfile(_ context.Context) (storage.ProfileEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var env storage.ProfileEnvelope
	env.Data.Profile = b.profile
	env.Data.Profile.Discovery = b.profile.Discovery.Clone()
	return env, nil
}

func (b *Backend) UpdateProfile(_ context.Context, profile models.Profile) (storage.ProfileEnvelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.profile = profile
	b.profile.Discovery = profile.Discovery.Clone()

	var env storage.ProfileEnvelope
	env.Data.Profile = profile
	return env, nil
}
