package local_test

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/storage"
	"github.com/myrjola/coachline/internal/storage/local"
	"github.com/myrjola/coachline/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

var errQuotaExceeded = errors.NewSentinel("quota exceeded")

// memoryRecords is an in-memory RecordStore with switchable failures.
type memoryRecords struct {
	mu         sync.Mutex
	records    map[string][]byte
	failReads  bool
	failWrites bool
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{mu: sync.Mutex{}, records: map[string][]byte{}, failReads: false, failWrites: false}
}

func (m *memoryRecords) ReadRecord(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads {
		return nil, errQuotaExceeded
	}
	return m.records[key], nil
}

func (m *memoryRecords) WriteRecord(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errQuotaExceeded
	}
	m.records[key] = value
	return nil
}

func (m *memoryRecords) DeleteRecord(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errQuotaExceeded
	}
	delete(m.records, key)
	return nil
}

func newBackend(t *testing.T, records *memoryRecords, opts ...local.Option) *local.Backend {
	t.Helper()
	logger, _ := testhelpers.NewBufferedLogger(t)
	return local.New(records, logger, opts...)
}

// steppingClock advances by one second on every call.
func steppingClock() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestBackend_CreateAndListConversation(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t, newMemoryRecords())

	created, err := backend.CreateConversation(ctx, storage.ConversationInput{Title: "Foo"})
	require.NoError(t, err)
	require.NotNil(t, created.Data.Conversation)

	listed, err := backend.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, listed.Data.Conversations, 1)
	conversation := listed.Data.Conversations[0]
	require.Regexp(t, regexp.MustCompile(`^local_\d+_[a-zA-Z0-9]+$`), conversation.ID)
	require.Equal(t, "Foo", conversation.Title)
	require.Equal(t, created.Data.Conversation.ID, conversation.ID)
}

func TestBackend_ListConversationsDropsMalformedAndSorts(t *testing.T) {
	ctx := context.Background()
	records := newMemoryRecords()
	records.records["conversations"] = []byte(`[
		{"id":"a","title":"older","created_date":"2024-01-01T00:00:00Z"},
		"not a record",
		42,
		{"id":"b","title":"no date"},
		{"id":"c","title":"bad date","created_date":"last tuesday"},
		{"id":"d","title":"newer","created_date":"2024-02-01T00:00:00Z"}
	]`)
	backend := newBackend(t, records)

	listed, err := backend.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, listed.Data.Conversations, 2)
	require.Equal(t, "d", listed.Data.Conversations[0].ID)
	require.Equal(t, "a", listed.Data.Conversations[1].ID)
}

func TestBackend_WritesKeepMalformedEntries(t *testing.T) {
	ctx := context.Background()
	records := newMemoryRecords()
	records.records["conversations"] = []byte(`[
		{"id":"a","title":"older","created_date":"2024-01-01T00:00:00Z"},
		"not a record",
		{"id":"b","title":"no date"}
	]`)
	records.records["messages:a"] = []byte(`[{"id":"m1","conversation_id":"a","text":"hi","sender":"user",` +
		`"created_date":"2024-01-01T00:00:01Z"},17]`)
	backend := newBackend(t, records)

	created, err := backend.CreateConversation(ctx, storage.ConversationInput{Title: "new"})
	require.NoError(t, err)
	_, err = backend.UpdateConversation(ctx, "a", storage.ConversationInput{Title: "renamed"})
	require.NoError(t, err)
	_, err = backend.DeleteConversation(ctx, created.Data.Conversation.ID)
	require.NoError(t, err)

	stored := string(records.records["conversations"])
	require.Contains(t, stored, `"not a record"`)
	require.Contains(t, stored, `"no date"`)
	require.Contains(t, stored, `"renamed"`)
	require.NotContains(t, stored, created.Data.Conversation.ID)

	// Malformed conversations stay hidden and cannot be renamed.
	missing, err := backend.UpdateConversation(ctx, "b", storage.ConversationInput{Title: "x"})
	require.NoError(t, err)
	require.Nil(t, missing.Data.Conversation)
	listed, err := backend.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, listed.Data.Conversations, 1)

	_, err = backend.CreateMessage(ctx, storage.MessageInput{
		ConversationID: "a", Text: "again", Sender: models.SenderUser, Metadata: nil,
	})
	require.NoError(t, err)
	_, err = backend.UpdateMessage(ctx, "m1", storage.MessageInput{
		ConversationID: "a", Text: "edited", Sender: models.SenderUser, Metadata: nil,
	})
	require.NoError(t, err)
	var entries []json.RawMessage
	require.NoError(t, json.Unmarshal(records.records["messages:a"], &entries))
	require.Len(t, entries, 3)
	require.Contains(t, string(entries[0]), `"edited"`)
	require.JSONEq(t, `17`, string(entries[1]))
	require.Contains(t, string(entries[2]), `"again"`)
}

func TestBackend_CorruptCollectionReadsAsEmpty(t *testing.T) {
	records := newMemoryRecords()
	records.records["conversations"] = []byte(`{not json`)
	backend := newBackend(t, records)

	listed, err := backend.ListConversations(context.Background())
	require.NoError(t, err)
	require.Empty(t, listed.Data.Conversations)
}

func TestBackend_DeleteConversationCascadesMessages(t *testing.T) {
	ctx := context.Background()
	records := newMemoryRecords()
	backend := newBackend(t, records)

	created, err := backend.CreateConversation(ctx, storage.ConversationInput{Title: "Doomed"})
	require.NoError(t, err)
	id := created.Data.Conversation.ID
	_, err = backend.CreateMessage(ctx, storage.MessageInput{
		ConversationID: id, Text: "hello", Sender: models.SenderUser, Metadata: nil,
	})
	require.NoError(t, err)

	deleted, err := backend.DeleteConversation(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, deleted.Data.ID)

	listed, err := backend.ListConversations(ctx)
	require.NoError(t, err)
	require.Empty(t, listed.Data.Conversations)

	messages, err := backend.ListMessages(ctx, storage.MessageQuery{ConversationID: id, Cursor: "", Limit: 0})
	require.NoError(t, err)
	require.Empty(t, messages.Data.Messages)
	require.NotContains(t, records.records, "messages:"+id)

	// Deleting a missing conversation is a no-op success.
	_, err = backend.DeleteConversation(ctx, "local_0_missing")
	require.NoError(t, err)
}

func TestBackend_UpdateConversation(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t, newMemoryRecords())

	created, err := backend.CreateConversation(ctx, storage.ConversationInput{Title: "Draft"})
	require.NoError(t, err)

	updated, err := backend.UpdateConversation(ctx, created.Data.Conversation.ID, storage.ConversationInput{Title: "Final"})
	require.NoError(t, err)
	require.NotNil(t, updated.Data.Conversation)
	require.Equal(t, "Final", updated.Data.Conversation.Title)

	missing, err := backend.UpdateConversation(ctx, "nope", storage.ConversationInput{Title: "x"})
	require.NoError(t, err)
	require.Nil(t, missing.Data.Conversation)
}

func TestBackend_Messages(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t, newMemoryRecords(), local.WithClock(steppingClock()))

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		created, err := backend.CreateMessage(ctx, storage.MessageInput{
			ConversationID: "c1", Text: text, Sender: models.SenderUser, Metadata: nil,
		})
		require.NoError(t, err)
		ids = append(ids, created.Data.Message.ID)
	}

	// Pagination is ignored by the local backend.
	listed, err := backend.ListMessages(ctx, storage.MessageQuery{ConversationID: "c1", Cursor: "x", Limit: 1})
	require.NoError(t, err)
	require.False(t, listed.Data.HasMore)
	require.Len(t, listed.Data.Messages, 3)
	require.Equal(t, "first", listed.Data.Messages[0].Text)
	require.Equal(t, "third", listed.Data.Messages[2].Text)

	_, err = backend.UpdateMessage(ctx, ids[1], storage.MessageInput{
		ConversationID: "", Text: "regenerated", Sender: models.SenderAssistant, Metadata: nil,
	})
	require.ErrorIs(t, err, local.ErrConversationRequired)

	updated, err := backend.UpdateMessage(ctx, ids[1], storage.MessageInput{
		ConversationID: "c1", Text: "regenerated", Sender: models.SenderAssistant, Metadata: []byte(`{"kind":"base"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Data.Message)
	require.Equal(t, "regenerated", updated.Data.Message.Text)
	require.Equal(t, models.SenderUser, updated.Data.Message.Sender, "sender is immutable")

	listed, err = backend.ListMessages(ctx, storage.MessageQuery{ConversationID: "c1", Cursor: "", Limit: 0})
	require.NoError(t, err)
	require.Equal(t, "regenerated", listed.Data.Messages[1].Text)
	require.JSONEq(t, `{"kind":"base"}`, string(listed.Data.Messages[1].Metadata))
}

func TestBackend_StorageFaultsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	records := newMemoryRecords()
	logger, logs := testhelpers.NewBufferedLogger(t)
	backend := local.New(records, logger)

	records.failWrites = true
	created, err := backend.CreateConversation(ctx, storage.ConversationInput{Title: "In memory"})
	require.NoError(t, err)
	require.NotNil(t, created.Data.Conversation)
	require.Equal(t, "In memory", created.Data.Conversation.Title)
	require.Contains(t, logs.String(), "failed to persist collection")

	records.failWrites = false
	records.records["conversations"] = []byte(`[{"id":"x","title":"t","created_date":"2024-01-01T00:00:00Z"}]`)
	records.failReads = true
	listed, err := backend.ListConversations(ctx)
	require.NoError(t, err)
	require.Empty(t, listed.Data.Conversations)
}

func TestBackend_ProfileIsKeptInMemory(t *testing.T) {
	ctx := context.Background()
	records := newMemoryRecords()
	backend := newBackend(t, records)

	profile, err := backend.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, models.DiscoveryNotStarted, profile.Data.Profile.Discovery.Status)

	state := models.NewDiscoveryState()
	state.Status = models.DiscoveryInProgress
	_, err = backend.UpdateProfile(ctx, models.Profile{Niche: "yoga", Experience: "", Discovery: state})
	require.NoError(t, err)

	profile, err = backend.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, "yoga", profile.Data.Profile.Niche)
	require.Equal(t, models.DiscoveryInProgress, profile.Data.Profile.Discovery.Status)
	require.Empty(t, records.records, "anonymous profiles are never written to device records")
}
