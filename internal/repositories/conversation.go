package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/myrjola/coachline/internal/sqlite"
)

type ConversationRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewConversationRepository(db *sqlite.Database, logger *slog.Logger) *ConversationRepository {
	return &ConversationRepository{
		db:     db,
		logger: logger.With("source", "ConversationRepository"),
		now:    time.Now,
	}
}

type conversationRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	CreatedAt int64  `db:"created_at"`
}

func (r conversationRow) model() models.Conversation {
	return models.Conversation{ID: r.ID, Title: r.Title, CreatedDate: timestamp(r.CreatedAt)}
}

// List returns the user's conversations newest first.
func (r *ConversationRepository) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	var rows []conversationRow
	stmt := `SELECT id, title, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id`
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, stmt, userID); err != nil {
		return nil, errors.Wrap(err, "select conversations")
	}
	conversations := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, row.model())
	}
	return conversations, nil
}

func (r *ConversationRepository) Create(ctx context.Context, userID string, title string) (models.Conversation, error) {
	row := conversationRow{ID: uuid.NewString(), Title: title, CreatedAt: r.now().UnixNano()}
	stmt := `INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, row.ID, userID, row.Title, row.CreatedAt); err != nil {
		return models.Conversation{}, errors.Wrap(err, "insert conversation") //nolint:exhaustruct // error.
	}
	return row.model(), nil
}

// Update renames the conversation. It returns ErrNotFound when the user has no such conversation.
func (r *ConversationRepository) Update(
	ctx context.Context,
	userID string,
	id string,
	title string,
) (models.Conversation, error) {
	var row conversationRow
	stmt := `UPDATE conversations SET title = ? WHERE id = ? AND user_id = ? RETURNING id, title, created_at`
	if err := r.db.ReadWrite.GetContext(ctx, &row, stmt, title, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, errors.Wrap(ErrNotFound, "update conversation", //nolint:exhaustruct // error.
				slog.String("conversation_id", id))
		}
		return models.Conversation{}, errors.Wrap(err, "update conversation") //nolint:exhaustruct // error.
	}
	return row.model(), nil
}

// Delete removes the conversation and, through the foreign key, its messages. Missing ids are not an error.
func (r *ConversationRepository) Delete(ctx context.Context, userID string, id string) error {
	stmt := `DELETE FROM conversations WHERE id = ? AND user_id = ?`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, id, userID); err != nil {
		return errors.Wrap(err, "delete conversation", slog.String("conversation_id", id))
	}
	return nil
}
