package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/citrine/internal/models"
	"github.com/gatherly/citrine/internal/services/notification"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrSameRole     = errors.New("user already has this role")
)

type Service struct {
	db            *pgxpool.Pool
	redis         *redis.Client
	notifications *notification.Service
}

func NewService(db *pgxpool.Pool, redis *redis.Client) *Service {
	return &Service{
		db:    db,
		redis: redis,
	}
}

// SetNotificationService wires the notification service after construction.
// The notification service depends on this service for recipient lookups,
// so the two are linked in main once both exist.
func (s *Service) SetNotificationService(n *notification.Service) {
	s.notifications = n
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, display_name, avatar_url, gender, role, auth_level,
		created_at, updated_at, last_seen_at
		FROM users WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.DisplayName, &user.AvatarURL,
		&user.Gender, &user.Role, &user.AuthLevel,
		&user.CreatedAt, &user.UpdatedAt, &user.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) GetPublicUser(ctx context.Context, id uuid.UUID) (*models.PublicUser, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.ToPublic(), nil
}

// CreatorSnapshot freezes the user's current identity for embedding on a
// message at creation time.
func (s *Service) CreatorSnapshot(ctx context.Context, userID uuid.UUID) (*models.CreatorSnapshot, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	snapshot := user.ToCreatorSnapshot()
	return &snapshot, nil
}

// CurrentRole reads the user's role as stored right now, not as carried in
// any token.
func (s *Service) CurrentRole(ctx context.Context, userID uuid.UUID) (models.UserRole, error) {
	var role models.UserRole
	err := s.db.QueryRow(ctx,
		`SELECT role FROM users WHERE id = $1 AND deleted_at IS NULL`,
		userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return role, nil
}

// ListUserIDs returns the ids of all non-deleted users, optionally limited
// to the given roles and minus the exclusion list.
func (s *Service) ListUserIDs(ctx context.Context, roles []models.UserRole, exclude []uuid.UUID) ([]uuid.UUID, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id FROM users WHERE deleted_at IS NULL`)
	args := []any{}

	if len(roles) > 0 {
		roleStrs := make([]string, len(roles))
		for i, r := range roles {
			roleStrs[i] = string(r)
		}
		args = append(args, roleStrs)
		fmt.Fprintf(&query, ` AND role = ANY($%d)`, len(args))
	}
	if len(exclude) > 0 {
		args = append(args, exclude)
		fmt.Fprintf(&query, ` AND id != ALL($%d)`, len(args))
	}

	rows, err := s.db.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=64"`
	AvatarURL   *string `json:"avatarUrl" validate:"omitempty,max=512,url"`
	Gender      *string `json:"gender" validate:"omitempty,max=32"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET
			display_name = COALESCE($2, display_name),
			avatar_url = COALESCE($3, avatar_url),
			gender = COALESCE($4, gender),
			updated_at = NOW()
		WHERE id = $1`,
		userID, req.DisplayName, req.AvatarURL, req.Gender,
	)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, userID)
}

// ChangeRole updates a user's role and sends them a targeted role_change
// message. Visibility of past role-restricted broadcasts changes
// immediately because role filtering happens at read time.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID uuid.UUID, newRole models.UserRole) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == newRole {
		return nil, ErrSameRole
	}
	oldRole := user.Role

	_, err = s.db.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`,
		userID, newRole,
	)
	if err != nil {
		return nil, err
	}
	user.Role = newRole

	s.notifyChange(ctx, actorID, userID, &notification.CreateTargetedRequest{
		Title:        "Your role has changed",
		Content:      fmt.Sprintf("Your community role was changed from %s to %s.", oldRole, newRole),
		Type:         models.MessageTypeRoleChange,
		Priority:     models.MessagePriorityHigh,
		RecipientIDs: []uuid.UUID{userID},
	})

	return user, nil
}

// SetAuthLevel updates a user's auth level and sends them a targeted
// auth_level_change message.
func (s *Service) SetAuthLevel(ctx context.Context, actorID, userID uuid.UUID, level int) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(ctx,
		`UPDATE users SET auth_level = $2, updated_at = NOW() WHERE id = $1`,
		userID, level,
	)
	if err != nil {
		return nil, err
	}
	oldLevel := user.AuthLevel
	user.AuthLevel = level

	s.notifyChange(ctx, actorID, userID, &notification.CreateTargetedRequest{
		Title:        "Your authorization level has changed",
		Content:      fmt.Sprintf("Your authorization level was changed from %d to %d.", oldLevel, level),
		Type:         models.MessageTypeAuthLevelChange,
		Priority:     models.MessagePriorityMedium,
		RecipientIDs: []uuid.UUID{userID},
	})

	return user, nil
}

// notifyChange sends an account-change message. The account change already
// committed, so a messaging failure is logged rather than returned.
func (s *Service) notifyChange(ctx context.Context, actorID, userID uuid.UUID, req *notification.CreateTargetedRequest) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.CreateTargeted(ctx, actorID, req); err != nil {
		log.Error().Err(err).
			Str("userId", userID.String()).
			Str("type", string(req.Type)).
			Msg("Failed to send account change message")
	}
}
