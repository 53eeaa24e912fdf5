package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType describes what kind of system message was sent.
type MessageType string

const (
	MessageTypeAnnouncement MessageType = "announcement"
	MessageTypeMaintenance  MessageType = "maintenance"
	MessageTypeUpdate       MessageType = "update"
	MessageTypeWarning      MessageType = "warning"

	// Single-recipient notices issued by the role/assignment subsystems
	MessageTypeAuthLevelChange       MessageType = "auth_level_change"
	MessageTypeRoleChange            MessageType = "role_change"
	MessageTypeCoOrganizerAssignment MessageType = "co_organizer_assignment"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeAnnouncement, MessageTypeMaintenance, MessageTypeUpdate,
		MessageTypeWarning, MessageTypeAuthLevelChange, MessageTypeRoleChange,
		MessageTypeCoOrganizerAssignment:
		return true
	}
	return false
}

// SingleRecipient reports whether messages of this type carry a denormalized
// targetUserId when addressed to exactly one recipient, so clients can match
// them without scanning per-recipient state.
func (t MessageType) SingleRecipient() bool {
	switch t {
	case MessageTypeAuthLevelChange, MessageTypeRoleChange, MessageTypeCoOrganizerAssignment:
		return true
	}
	return false
}

// MessagePriority is the display priority of a system message.
type MessagePriority string

const (
	MessagePriorityLow    MessagePriority = "low"
	MessagePriorityMedium MessagePriority = "medium"
	MessagePriorityHigh   MessagePriority = "high"
)

func (p MessagePriority) Valid() bool {
	switch p {
	case MessagePriorityLow, MessagePriorityMedium, MessagePriorityHigh:
		return true
	}
	return false
}

// Content bounds enforced at creation time.
const (
	MessageTitleMaxLen   = 200
	MessageContentMaxLen = 5000
)

// CreatorSnapshot is the author's identity captured at creation time. Stored
// by value so later profile changes don't rewrite message history.
type CreatorSnapshot struct {
	ID          uuid.UUID `json:"id" db:"creator_id"`
	Username    string    `json:"username" db:"creator_username"`
	DisplayName string    `json:"displayName" db:"creator_display_name"`
	AvatarURL   *string   `json:"avatarUrl,omitempty" db:"creator_avatar_url"`
	Gender      *string   `json:"gender,omitempty" db:"creator_gender"`
	Role        UserRole  `json:"role" db:"creator_role"`
	AuthLevel   int       `json:"authLevel" db:"creator_auth_level"`
}

// NotificationState is the read/visibility state one recipient holds for one
// message, across both the bell dropdown and the system-messages page. The
// zero value is the state of a freshly targeted recipient.
type NotificationState struct {
	IsReadInBell        bool       `json:"isReadInBell" db:"is_read_in_bell"`
	ReadInBellAt        *time.Time `json:"readInBellAt,omitempty" db:"read_in_bell_at"`
	IsRemovedFromBell   bool       `json:"isRemovedFromBell" db:"is_removed_from_bell"`
	RemovedFromBellAt   *time.Time `json:"removedFromBellAt,omitempty" db:"removed_from_bell_at"`
	IsReadInSystem      bool       `json:"isReadInSystem" db:"is_read_in_system"`
	ReadInSystemAt      *time.Time `json:"readInSystemAt,omitempty" db:"read_in_system_at"`
	IsDeletedFromSystem bool       `json:"isDeletedFromSystem" db:"is_deleted_from_system"`
	DeletedFromSystemAt *time.Time `json:"deletedFromSystemAt,omitempty" db:"deleted_from_system_at"`
	LastInteractionAt   *time.Time `json:"lastInteractionAt,omitempty" db:"last_interaction_at"`
}

// Timestamp policy for all transitions: the *At stamp is set on the first
// false->true transition and kept on repeat calls; lastInteractionAt always
// moves. Repeating a transition never changes any boolean.

func (st *NotificationState) MarkReadInBell(now time.Time) {
	st.IsReadInBell = true
	if st.ReadInBellAt == nil {
		st.ReadInBellAt = &now
	}
	st.touch(now)
}

func (st *NotificationState) MarkReadInSystem(now time.Time) {
	st.IsReadInSystem = true
	if st.ReadInSystemAt == nil {
		st.ReadInSystemAt = &now
	}
	st.touch(now)
}

// MarkReadEverywhere marks both surfaces read with the same instant.
func (st *NotificationState) MarkReadEverywhere(now time.Time) {
	st.IsReadInBell = true
	if st.ReadInBellAt == nil {
		st.ReadInBellAt = &now
	}
	st.IsReadInSystem = true
	if st.ReadInSystemAt == nil {
		st.ReadInSystemAt = &now
	}
	st.touch(now)
}

// RemoveFromBell hides the message from the bell dropdown. It never touches
// the system-view flags. Callers gate this behind CanRemoveFromBell; the
// transition itself does not.
func (st *NotificationState) RemoveFromBell(now time.Time) {
	st.IsRemovedFromBell = true
	if st.RemovedFromBellAt == nil {
		st.RemovedFromBellAt = &now
	}
	st.touch(now)
}

// DeleteFromSystem flags the message deleted on the system page and cascades
// to bell removal with the same instant. The two flag pairs must always be
// persisted in one write.
func (st *NotificationState) DeleteFromSystem(now time.Time) {
	st.IsDeletedFromSystem = true
	if st.DeletedFromSystemAt == nil {
		st.DeletedFromSystemAt = &now
	}
	st.IsRemovedFromBell = true
	if st.RemovedFromBellAt == nil {
		st.RemovedFromBellAt = &now
	}
	st.touch(now)
}

// CanRemoveFromBell is the UI-facing rule for offering a remove affordance:
// only a bell-read, not-yet-removed message qualifies.
func (st *NotificationState) CanRemoveFromBell() bool {
	return st.IsReadInBell && !st.IsRemovedFromBell
}

func (st *NotificationState) touch(now time.Time) {
	st.LastInteractionAt = &now
}

// Message is a broadcast or targeted system message. Per-recipient state
// lives in the message_recipient_states companion table, one row per
// recipient keyed (message_id, recipient_id); a recipient without a row was
// never targeted and can never see the message.
type Message struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Content     string          `json:"content" db:"content"`
	Type        MessageType     `json:"type" db:"type"`
	Priority    MessagePriority `json:"priority" db:"priority"`
	Creator     CreatorSnapshot `json:"creator"`
	HideCreator bool            `json:"hideCreator" db:"hide_creator"`
	// TargetRoles is re-checked against the recipient's current role on every
	// read; a role change after send immediately changes visibility.
	TargetRoles  []UserRole `json:"targetRoles,omitempty" db:"target_roles"`
	TargetUserID *uuid.UUID `json:"targetUserId,omitempty" db:"target_user_id"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// ShouldShowInBell reports whether the message belongs in the recipient's
// bell list. A nil state means the recipient was never targeted, which is an
// absolute exclusion. Read status is ignored here: read-but-kept messages
// stay visible.
func (m *Message) ShouldShowInBell(st *NotificationState) bool {
	return m.IsActive && st != nil && !st.IsRemovedFromBell
}

// ShouldShowInSystem reports whether the message belongs on the recipient's
// system-messages page.
func (m *Message) ShouldShowInSystem(st *NotificationState) bool {
	return m.IsActive && st != nil && !st.IsDeletedFromSystem
}

// VisibleToRole applies the read-time role filter. An empty TargetRoles set
// means no role restriction.
func (m *Message) VisibleToRole(role UserRole) bool {
	if len(m.TargetRoles) == 0 {
		return true
	}
	for _, r := range m.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Expired reports whether the message is past its expiry instant.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// DisplayTitle is the title as rendered on either surface. Identity today;
// kept as a named seam so the surfaces can format differently later.
func (m *Message) DisplayTitle() string {
	return m.Title
}

// PublicCreator returns the creator identity for presentation, or nil when
// the author chose to hide it. The snapshot itself is always stored.
func (m *Message) PublicCreator() *CreatorSnapshot {
	if m.HideCreator {
		return nil
	}
	c := m.Creator
	return &c
}
