package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"reveal-service/internal/models"
)

// DefaultLatestLimit is the page size used when callers ask for the latest messages without a limit.
const DefaultLatestLimit = 50

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error)
	LatestGroupMessages(ctx context.Context, groupID string, limit int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	MarkRevealed(ctx context.Context, messageIDs []string) (int64, error)
	ListRevealCandidates(ctx context.Context, now time.Time, limit int, skipGroups []string) ([]models.Message, error)
	ToggleReaction(ctx context.Context, messageID string, emoji string, userID string) (models.Reactions, error)
	DeleteOrphaned(ctx context.Context) (int64, error)
}

const messageColumns = `id, group_id, sender_id, sender_name, sender_photo_url, text, media_url, media_type,
	created_at, reveal_date, is_revealed, reactions`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message under a fresh id. New messages are never pre-revealed.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var created models.Message
	err := r.db.GetContext(ctx, &created, `INSERT INTO messages
		(id, group_id, sender_id, sender_name, sender_photo_url, text, media_url, media_type, reveal_date, is_revealed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
		RETURNING `+messageColumns,
		uuid.NewString(), msg.GroupID, msg.SenderID, msg.SenderName, msg.SenderPhotoURL,
		msg.Text, msg.MediaURL, msg.MediaType, msg.RevealDate)
	return created, classify(err)
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, classify(err)
}

// ListGroupMessages returns the group's messages oldest first.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages WHERE group_id=$1 ORDER BY created_at ASC, id ASC`, groupID)
	return msgs, classify(err)
}

// LatestGroupMessages returns at most limit of the newest messages, in chronological order.
func (r *MessageRepo) LatestGroupMessages(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT * FROM (
		SELECT `+messageColumns+` FROM messages WHERE group_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2
	) latest ORDER BY created_at ASC, id ASC`, groupID, limit)
	return msgs, classify(err)
}

// DeleteMessage removes a message.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return classify(err)
	}
	return expectRow(res, ErrMessageNotFound)
}

// MarkRevealed sets is_revealed on every listed message in one transaction.
// The flag only ever moves to true.
func (r *MessageRepo) MarkRevealed(ctx context.Context, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE messages SET is_revealed = TRUE WHERE id = ANY($1) AND is_revealed = FALSE`, pq.StringArray(messageIDs))
	if err != nil {
		return 0, classify(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

// ListRevealCandidates returns unrevealed messages whose effective reveal date is due at now,
// leaving out messages of skipGroups.
func (r *MessageRepo) ListRevealCandidates(ctx context.Context, now time.Time, limit int, skipGroups []string) ([]models.Message, error) {
	if skipGroups == nil {
		skipGroups = []string{}
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT m.id, m.group_id, m.sender_id, m.sender_name, m.sender_photo_url, m.text,
		m.media_url, m.media_type, m.created_at, m.reveal_date, m.is_revealed, m.reactions
		FROM messages m INNER JOIN groups g ON g.id = m.group_id
		WHERE m.is_revealed = FALSE
		AND (CASE WHEN g.reveal_per_message THEN m.reveal_date ELSE g.reveal_date END) <= $1
		AND NOT (m.group_id = ANY($3))
		ORDER BY m.created_at ASC
		LIMIT $2`, now, limit, pq.Array(skipGroups))
	return msgs, classify(err)
}

// ToggleReaction flips userID's membership in the emoji's reaction set.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID string, emoji string, userID string) (models.Reactions, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var reactions models.Reactions
	if err = tx.GetContext(ctx, &reactions, `SELECT reactions FROM messages WHERE id=$1 FOR UPDATE`, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, classify(err)
	}
	if reactions == nil {
		reactions = models.Reactions{}
	}
	reactions.Toggle(emoji, userID)

	if _, err = tx.ExecContext(ctx, `UPDATE messages SET reactions=$2 WHERE id=$1`, messageID, reactions); err != nil {
		return nil, classify(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return reactions, nil
}

// DeleteOrphaned removes messages whose group no longer exists.
func (r *MessageRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages m WHERE NOT EXISTS (SELECT 1 FROM groups g WHERE g.id = m.group_id)`)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}
