package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/citrine/internal/models"
	"github.com/gatherly/citrine/pkg/database"
)

// ErrUnknownRecipient is returned by CreateMessage when a recipient id does
// not resolve to a live user; the whole creation is rolled back.
var ErrUnknownRecipient = errors.New("unknown recipient")

// RecipientMessage is one message paired with the recipient's state row.
type RecipientMessage struct {
	Message *models.Message
	State   models.NotificationState
}

// Store persists messages and the per-recipient state rows. Every mutation is
// scoped to one (messageId, recipientId) row and must be a single atomic
// write; in particular DeleteFromSystem writes the delete flags and the bell
// cascade together, never as a follow-up.
type Store interface {
	// CreateMessage writes the message row and one state row per recipient in
	// a single transaction. A partially-targeted message is never observable.
	CreateMessage(ctx context.Context, m *models.Message, recipientIDs []uuid.UUID) error

	MessageExists(ctx context.Context, messageID uuid.UUID) (bool, error)

	// GetState returns the recipient's state row, or (nil, nil) when the
	// recipient has no row for the message.
	GetState(ctx context.Context, messageID, recipientID uuid.UUID) (*models.NotificationState, error)

	// State mutations return false when no row matched, meaning the message
	// is missing or the recipient was never targeted.
	MarkReadInBell(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error)
	MarkReadInSystem(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error)
	MarkReadEverywhere(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error)
	RemoveFromBell(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error)
	DeleteFromSystem(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error)

	// ListRecipientMessages returns every active message the recipient holds
	// a state row for, newest first. Visibility and role filtering happen in
	// the service on top of these candidate rows.
	ListRecipientMessages(ctx context.Context, recipientID uuid.UUID) ([]*RecipientMessage, error)

	// DeactivateExpired retires every active message whose expiry is at or
	// before now and reports how many were retired. Per-recipient state is
	// untouched.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// PgStore is the PostgreSQL Store backed by a messages table and a
// message_recipient_states companion table keyed (message_id, recipient_id).
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) CreateMessage(ctx context.Context, m *models.Message, recipientIDs []uuid.UUID) error {
	return database.WithTransaction(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		var known int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM users WHERE id = ANY($1) AND deleted_at IS NULL`,
			recipientIDs,
		).Scan(&known); err != nil {
			return err
		}
		if known != len(recipientIDs) {
			return ErrUnknownRecipient
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages
				(id, title, content, type, priority,
				 creator_id, creator_username, creator_display_name, creator_avatar_url,
				 creator_gender, creator_role, creator_auth_level,
				 hide_creator, target_roles, target_user_id, is_active, expires_at,
				 created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			m.ID, m.Title, m.Content, m.Type, m.Priority,
			m.Creator.ID, m.Creator.Username, m.Creator.DisplayName, m.Creator.AvatarURL,
			m.Creator.Gender, m.Creator.Role, m.Creator.AuthLevel,
			m.HideCreator, rolesToStrings(m.TargetRoles), m.TargetUserID, m.IsActive, m.ExpiresAt,
			m.CreatedAt, m.UpdatedAt,
		); err != nil {
			return err
		}

		// State rows start all-false; the table defaults cover the flags.
		rows := make([][]any, len(recipientIDs))
		for i, rid := range recipientIDs {
			rows[i] = []any{m.ID, rid}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"message_recipient_states"},
			[]string{"message_id", "recipient_id"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}

func (s *PgStore) MessageExists(ctx context.Context, messageID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID,
	).Scan(&exists)
	return exists, err
}

func (s *PgStore) GetState(ctx context.Context, messageID, recipientID uuid.UUID) (*models.NotificationState, error) {
	st := &models.NotificationState{}
	err := s.db.QueryRow(ctx, `
		SELECT is_read_in_bell, read_in_bell_at, is_removed_from_bell, removed_from_bell_at,
		       is_read_in_system, read_in_system_at, is_deleted_from_system, deleted_from_system_at,
		       last_interaction_at
		FROM message_recipient_states
		WHERE message_id = $1 AND recipient_id = $2`,
		messageID, recipientID,
	).Scan(
		&st.IsReadInBell, &st.ReadInBellAt, &st.IsRemovedFromBell, &st.RemovedFromBellAt,
		&st.IsReadInSystem, &st.ReadInSystemAt, &st.IsDeletedFromSystem, &st.DeletedFromSystemAt,
		&st.LastInteractionAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

// Read stamps are first-wins: COALESCE keeps the original instant on repeat
// calls, while last_interaction_at always moves.

func (s *PgStore) MarkReadInBell(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_recipient_states SET
			is_read_in_bell = TRUE,
			read_in_bell_at = COALESCE(read_in_bell_at, $3),
			last_interaction_at = $3
		WHERE message_id = $1 AND recipient_id = $2`,
		messageID, recipientID, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) MarkReadInSystem(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_recipient_states SET
			is_read_in_system = TRUE,
			read_in_system_at = COALESCE(read_in_system_at, $3),
			last_interaction_at = $3
		WHERE message_id = $1 AND recipient_id = $2`,
		messageID, recipientID, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) MarkReadEverywhere(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_recipient_states SET
			is_read_in_bell = TRUE,
			read_in_bell_at = COALESCE(read_in_bell_at, $3),
			is_read_in_system = TRUE,
			read_in_system_at = COALESCE(read_in_system_at, $3),
			last_interaction_at = $3
		WHERE message_id = $1 AND recipient_id = $2`,
		messageID, recipientID, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) RemoveFromBell(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_recipient_states SET
			is_removed_from_bell = TRUE,
			removed_from_bell_at = COALESCE(removed_from_bell_at, $3),
			last_interaction_at = $3
		WHERE message_id = $1 AND recipient_id = $2`,
		messageID, recipientID, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteFromSystem writes the delete flags and the bell-removal cascade in
// one statement, so no reader can observe the torn intermediate state.
func (s *PgStore) DeleteFromSystem(ctx context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_recipient_states SET
			is_deleted_from_system = TRUE,
			deleted_from_system_at = COALESCE(deleted_from_system_at, $3),
			is_removed_from_bell = TRUE,
			removed_from_bell_at = COALESCE(removed_from_bell_at, $3),
			last_interaction_at = $3
		WHERE message_id = $1 AND recipient_id = $2`,
		messageID, recipientID, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) ListRecipientMessages(ctx context.Context, recipientID uuid.UUID) ([]*RecipientMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.title, m.content, m.type, m.priority,
		       m.creator_id, m.creator_username, m.creator_display_name, m.creator_avatar_url,
		       m.creator_gender, m.creator_role, m.creator_auth_level,
		       m.hide_creator, m.target_roles, m.target_user_id, m.is_active, m.expires_at,
		       m.created_at, m.updated_at,
		       s.is_read_in_bell, s.read_in_bell_at, s.is_removed_from_bell, s.removed_from_bell_at,
		       s.is_read_in_system, s.read_in_system_at, s.is_deleted_from_system, s.deleted_from_system_at,
		       s.last_interaction_at
		FROM message_recipient_states s
		JOIN messages m ON m.id = s.message_id
		WHERE s.recipient_id = $1 AND m.is_active = TRUE
		ORDER BY m.created_at DESC`,
		recipientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RecipientMessage
	for rows.Next() {
		rm := &RecipientMessage{Message: &models.Message{}}
		m, st := rm.Message, &rm.State
		var roles []string
		if err := rows.Scan(
			&m.ID, &m.Title, &m.Content, &m.Type, &m.Priority,
			&m.Creator.ID, &m.Creator.Username, &m.Creator.DisplayName, &m.Creator.AvatarURL,
			&m.Creator.Gender, &m.Creator.Role, &m.Creator.AuthLevel,
			&m.HideCreator, &roles, &m.TargetUserID, &m.IsActive, &m.ExpiresAt,
			&m.CreatedAt, &m.UpdatedAt,
			&st.IsReadInBell, &st.ReadInBellAt, &st.IsRemovedFromBell, &st.RemovedFromBellAt,
			&st.IsReadInSystem, &st.ReadInSystemAt, &st.IsDeletedFromSystem, &st.DeletedFromSystemAt,
			&st.LastInteractionAt,
		); err != nil {
			return nil, err
		}
		m.TargetRoles = stringsToRoles(roles)
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (s *PgStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE messages SET is_active = FALSE, updated_at = $1
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func rolesToStrings(roles []models.UserRole) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(roles []string) []models.UserRole {
	if len(roles) == 0 {
		return nil
	}
	out := make([]models.UserRole, len(roles))
	for i, r := range roles {
		out[i] = models.UserRole(r)
	}
	return out
}
