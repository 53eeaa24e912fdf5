package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gatherly/citrine/internal/models"
	"github.com/gatherly/citrine/pkg/auth"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)

type Service struct {
	db         *pgxpool.Pool
	redis      *redis.Client
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(db *pgxpool.Pool, redis *redis.Client, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		db:         db,
		redis:      redis,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
}

type LoginRequest struct {
	Login    string `json:"login" validate:"required"` // Username or email
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User         *models.User `json:"user,omitempty"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Register creates an account. New users start as participants at the base
// auth level; only an admin can raise either afterwards.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`,
		req.Username, req.Email,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleParticipant,
		AuthLevel:    1,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, auth_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.AuthLevel,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.GenerateTokenPair(user.ID, user.Username, string(user.Role), s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, err
	}

	if err := s.createSession(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, password_hash, display_name, avatar_url, gender,
		role, auth_level, created_at, updated_at, last_seen_at
		FROM users WHERE (username = $1 OR email = $1) AND deleted_at IS NULL`,
		req.Login,
	).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.DisplayName,
		&user.AvatarURL, &user.Gender, &user.Role, &user.AuthLevel,
		&user.CreatedAt, &user.UpdatedAt, &user.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	tokens, err := auth.GenerateTokenPair(user.ID, user.Username, string(user.Role), s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, err
	}

	if err := s.createSession(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(ctx,
		`UPDATE users SET last_seen_at = NOW() WHERE id = $1`,
		user.ID,
	)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, nil
}

// RefreshToken rotates the session: the presented refresh token is revoked
// and a fresh pair is issued. The role claim is re-read from the user row
// so a role change propagates no later than the next refresh.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	tokenHash := auth.HashToken(refreshToken)

	var session models.UserSession
	var username string
	var role models.UserRole
	err := s.db.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.expires_at, u.username, u.role
		FROM user_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.refresh_token_hash = $1 AND s.revoked_at IS NULL AND s.expires_at > NOW()`,
		tokenHash,
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &username, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	_, err = s.db.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = NOW() WHERE id = $1`,
		session.ID,
	)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.GenerateTokenPair(session.UserID, username, string(role), s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, err
	}

	if err := s.createSession(ctx, session.UserID, tokens.RefreshToken); err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, nil
}

func (s *Service) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	tokenHash := auth.HashToken(refreshToken)
	_, err := s.db.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = NOW() WHERE user_id = $1 AND refresh_token_hash = $2`,
		userID, tokenHash,
	)
	return err
}

func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)
	return err
}

func (s *Service) createSession(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	tokenHash := auth.HashToken(refreshToken)
	expiresAt := time.Now().Add(s.refreshTTL)

	_, err := s.db.Exec(ctx,
		`INSERT INTO user_sessions (user_id, refresh_token_hash, expires_at)
		VALUES ($1, $2, $3)`,
		userID, tokenHash, expiresAt,
	)
	return err
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	var passwordHash string
	err := s.db.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE id = $1`,
		userID,
	).Scan(&passwordHash)
	if err != nil {
		return err
	}

	if !auth.VerifyPassword(currentPassword, passwordHash) {
		return ErrInvalidCredentials
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		newHash, userID,
	)
	if err != nil {
		return err
	}

	// Revoke all sessions to force re-login
	return s.LogoutAll(ctx, userID)
}
