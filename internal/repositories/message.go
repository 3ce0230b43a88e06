package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/sqlite"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

var ErrInvalidCursor = errors.NewSentinel("invalid cursor")

type MessageRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewMessageRepository(db *sqlite.Database, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: logger.With("source", "MessageRepository"),
		now:    time.Now,
	}
}

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	Text           string         `db:"text"`
	Sender         string         `db:"sender"`
	CreatedAt      int64          `db:"created_at"`
	Metadata       sql.NullString `db:"metadata"`
}

func (r messageRow) model() models.Message {
	m := models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Text:           r.Text,
		Sender:         models.Sender(r.Sender),
		CreatedDate:    timestamp(r.CreatedAt),
		Metadata:       nil,
	}
	if r.Metadata.Valid {
		m.Metadata = json.RawMessage(r.Metadata.String)
	}
	return m
}

func nullMetadata(metadata json.RawMessage) sql.NullString {
	if len(metadata) == 0 {
		return sql.NullString{String: "", Valid: false}
	}
	return sql.NullString{String: string(metadata), Valid: true}
}

// Page is one page of messages, oldest first.
type Page struct {
	Messages   []models.Message
	HasMore    bool
	NextCursor string
}

// List returns messages created after cursor. The cursor is the created_date of the last message seen, an empty
// cursor starts from the beginning.
func (r *MessageRepository) List(
	ctx context.Context,
	userID string,
	conversationID string,
	cursor string,
	limit int,
) (Page, error) {
	var (
		rows  []messageRow
		after int64 = -1
	)
	if cursor != "" {
		t, ok := models.ParseTimestamp(cursor)
		if !ok {
			return Page{}, errors.Wrap(ErrInvalidCursor, "parse cursor", //nolint:exhaustruct // error.
				slog.String("cursor", cursor))
		}
		after = t.UnixNano()
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	stmt := `SELECT m.id, m.conversation_id, m.text, m.sender, m.created_at, m.metadata
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE m.conversation_id = ? AND c.user_id = ? AND m.created_at > ?
ORDER BY m.created_at
LIMIT ?`
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, stmt, conversationID, userID, after, limit+1); err != nil {
		return Page{}, errors.Wrap(err, "select messages") //nolint:exhaustruct // error.
	}
	page := Page{Messages: make([]models.Message, 0, min(len(rows), limit)), HasMore: len(rows) > limit, NextCursor: ""}
	for _, row := range rows[:min(len(rows), limit)] {
		page.Messages = append(page.Messages, row.model())
	}
	if page.HasMore {
		page.NextCursor = page.Messages[len(page.Messages)-1].CreatedDate
	}
	return page, nil
}

// Create adds a message to the user's conversation. Timestamps are strictly increasing within a conversation so
// that the created_date cursor never skips a message.
func (r *MessageRepository) Create(
	ctx context.Context,
	userID string,
	conversationID string,
	text string,
	sender models.Sender,
	metadata json.RawMessage,
) (models.Message, error) {
	var row messageRow
	stmt := `INSERT INTO messages (id, conversation_id, text, sender, created_at, metadata)
SELECT :id, c.id, :text, :sender,
       MAX(:now, COALESCE((SELECT MAX(created_at) + 1 FROM messages WHERE conversation_id = c.id), 0)),
       :metadata
FROM conversations c
WHERE c.id = :conversation_id AND c.user_id = :user_id
RETURNING id, conversation_id, text, sender, created_at, metadata`
	err := r.db.ReadWrite.GetContext(ctx, &row, stmt,
		sql.Named("id", uuid.NewString()),
		sql.Named("text", text),
		sql.Named("sender", string(sender)),
		sql.Named("now", r.now().UnixNano()),
		sql.Named("metadata", nullMetadata(metadata)),
		sql.Named("conversation_id", conversationID),
		sql.Named("user_id", userID),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, errors.Wrap(ErrNotFound, "insert message", //nolint:exhaustruct // error.
			slog.String("conversation_id", conversationID))
	}
	if err != nil {
		return models.Message{}, errors.Wrap(err, "insert message") //nolint:exhaustruct // error.
	}
	return row.model(), nil
}

// Update replaces the text and structured metadata of a message.
func (r *MessageRepository) Update(
	ctx context.Context,
	userID string,
	id string,
	text string,
	metadata json.RawMessage,
) (models.Message, error) {
	var row messageRow
	stmt := `UPDATE messages SET text = :text, metadata = :metadata
WHERE id = :id AND conversation_id IN (SELECT id FROM conversations WHERE user_id = :user_id)
RETURNING id, conversation_id, text, sender, created_at, metadata`
	err := r.db.ReadWrite.GetContext(ctx, &row, stmt,
		sql.Named("text", text),
		sql.Named("metadata", nullMetadata(metadata)),
		sql.Named("id", id),
		sql.Named("user_id", userID),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, errors.Wrap(ErrNotFound, "update message", //nolint:exhaustruct // error.
			slog.String("message_id", id))
	}
	if err != nil {
		return models.Message{}, errors.Wrap(err, "update message") //nolint:exhaustruct // error.
	}
	return row.model(), nil
}

// ParseLimit parses the limit query parameter. Empty or invalid values use the default page size.
func ParseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return DefaultPageSize
	}
	return min(n, MaxPageSize)
}
