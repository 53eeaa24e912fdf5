package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is a user's role in the community. Stored on the user row and
// re-read at notification time, so role changes take effect immediately.
type UserRole string

const (
	UserRoleAdmin       UserRole = "admin"
	UserRoleOrganizer   UserRole = "organizer"
	UserRoleLeader      UserRole = "leader"
	UserRoleParticipant UserRole = "participant"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleOrganizer, UserRoleLeader, UserRoleParticipant:
		return true
	}
	return false
}

// CanAuthorMessages reports whether the role may create system messages.
func (r UserRole) CanAuthorMessages() bool {
	return r == UserRoleAdmin || r == UserRoleOrganizer
}

type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email,omitempty" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	DisplayName  *string    `json:"displayName,omitempty" db:"display_name"`
	AvatarURL    *string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	Gender       *string    `json:"gender,omitempty" db:"gender"`
	Role         UserRole   `json:"role" db:"role"`
	AuthLevel    int        `json:"authLevel" db:"auth_level"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`
}

type UserSession struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	UserID           uuid.UUID  `json:"userId" db:"user_id"`
	RefreshTokenHash string     `json:"-" db:"refresh_token_hash"`
	ExpiresAt        time.Time  `json:"expiresAt" db:"expires_at"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	RevokedAt        *time.Time `json:"-" db:"revoked_at"`
}

// PublicUser is a sanitized user for public API responses
type PublicUser struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"displayName,omitempty"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	Role        UserRole  `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (u *User) ToPublic() *PublicUser {
	return &PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// ToCreatorSnapshot freezes the user's identity for storage on a message.
func (u *User) ToCreatorSnapshot() CreatorSnapshot {
	displayName := u.Username
	if u.DisplayName != nil && *u.DisplayName != "" {
		displayName = *u.DisplayName
	}
	return CreatorSnapshot{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: displayName,
		AvatarURL:   u.AvatarURL,
		Gender:      u.Gender,
		Role:        u.Role,
		AuthLevel:   u.AuthLevel,
	}
}
