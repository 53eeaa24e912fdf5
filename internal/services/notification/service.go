package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/citrine/internal/models"
)

// Event types pushed to the delivery collaborator. Every per-recipient state
// change is individually observable.
const (
	EventTypeMessageCreate = "SYSTEM_MESSAGE_CREATE"
	EventTypeMessageRead   = "SYSTEM_MESSAGE_READ"
	EventTypeMessageRemove = "SYSTEM_MESSAGE_REMOVE"
	EventTypeMessageDelete = "SYSTEM_MESSAGE_DELETE"
)

// Change kinds carried in state-change events.
const (
	ChangeCreated           = "created"
	ChangeReadInBell        = "read_in_bell"
	ChangeReadInSystem      = "read_in_system"
	ChangeReadEverywhere    = "read_everywhere"
	ChangeRemovedFromBell   = "removed_from_bell"
	ChangeDeletedFromSystem = "deleted_from_system"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotTargeted     = errors.New("recipient was never targeted by this message")
	ErrNotPermitted    = errors.New("role not permitted to author messages")
	ErrNoRecipients    = errors.New("no recipients resolved")
)

// ValidationError reports a creation payload that violates the content
// bounds or closed enum sets. The message is never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotifierInterface is the subset of the WebSocket hub the service needs to
// make each mutation observable to a delivery transport.
type NotifierInterface interface {
	SendUserEvent(userID uuid.UUID, eventType string, data any)
}

// UserDirectory resolves recipients and the acting user's identity. Roles
// are always read live so that role changes take effect immediately.
type UserDirectory interface {
	CreatorSnapshot(ctx context.Context, userID uuid.UUID) (*models.CreatorSnapshot, error)
	CurrentRole(ctx context.Context, userID uuid.UUID) (models.UserRole, error)
	ListUserIDs(ctx context.Context, roles []models.UserRole, exclude []uuid.UUID) ([]uuid.UUID, error)
}

// Service owns the per-recipient message state machine: targeting and
// creation, the bell/system read transitions, the two recipient-facing
// views, unread counts, and the expiry sweep.
type Service struct {
	store    Store
	users    UserDirectory
	notifier NotifierInterface
	now      func() time.Time
}

func NewService(store Store, users UserDirectory, notifier NotifierInterface) *Service {
	return &Service{
		store:    store,
		users:    users,
		notifier: notifier,
		now:      time.Now,
	}
}

// ---------- Creation ----------

type CreateBroadcastRequest struct {
	Title          string                 `json:"title" validate:"required,max=200"`
	Content        string                 `json:"content" validate:"required,max=5000"`
	Type           models.MessageType     `json:"type" validate:"required,messagetype"`
	Priority       models.MessagePriority `json:"priority" validate:"required,messagepriority"`
	HideCreator    bool                   `json:"hideCreator"`
	TargetRoles    []models.UserRole      `json:"targetRoles" validate:"omitempty,dive,userrole"`
	ExcludeUserIDs []uuid.UUID            `json:"excludeUserIds"`
	ExpiresAt      *time.Time             `json:"expiresAt"`
}

// CreateBroadcast resolves the recipient set (all users, or users whose
// current role is in TargetRoles, minus the exclusion list) and creates one
// message with an all-false state row per recipient. TargetRoles stays on
// the message and is re-checked on every read.
func (s *Service) CreateBroadcast(ctx context.Context, actorID uuid.UUID, req *CreateBroadcastRequest) (*models.Message, error) {
	creator, err := s.users.CreatorSnapshot(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !creator.Role.CanAuthorMessages() {
		return nil, ErrNotPermitted
	}
	if err := validateContent(req.Title, req.Content, req.Type, req.Priority); err != nil {
		return nil, err
	}

	recipients, err := s.users.ListUserIDs(ctx, req.TargetRoles, req.ExcludeUserIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := s.now()
	m := &models.Message{
		ID:          uuid.New(),
		Title:       req.Title,
		Content:     req.Content,
		Type:        req.Type,
		Priority:    req.Priority,
		Creator:     *creator,
		HideCreator: req.HideCreator,
		TargetRoles: req.TargetRoles,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateMessage(ctx, m, recipients); err != nil {
		return nil, err
	}

	log.Info().
		Str("messageId", m.ID.String()).
		Str("type", string(m.Type)).
		Int("recipients", len(recipients)).
		Msg("Broadcast message created")

	for _, rid := range recipients {
		s.emitCreated(rid, m)
	}
	return m, nil
}

type CreateTargetedRequest struct {
	Title        string                 `json:"title" validate:"required,max=200"`
	Content      string                 `json:"content" validate:"required,max=5000"`
	Type         models.MessageType     `json:"type" validate:"required,messagetype"`
	Priority     models.MessagePriority `json:"priority" validate:"required,messagepriority"`
	HideCreator  bool                   `json:"hideCreator"`
	RecipientIDs []uuid.UUID            `json:"recipientIds" validate:"required,min=1"`
	ExpiresAt    *time.Time             `json:"expiresAt"`
}

// CreateTargeted addresses an explicit recipient list. When exactly one
// recipient is targeted with a single-recipient-sensitive type, the id is
// denormalized onto targetUserId so clients can match the notice without
// scanning per-recipient state.
func (s *Service) CreateTargeted(ctx context.Context, actorID uuid.UUID, req *CreateTargetedRequest) (*models.Message, error) {
	creator, err := s.users.CreatorSnapshot(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !creator.Role.CanAuthorMessages() {
		return nil, ErrNotPermitted
	}
	if err := validateContent(req.Title, req.Content, req.Type, req.Priority); err != nil {
		return nil, err
	}

	recipients := dedupeIDs(req.RecipientIDs)
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := s.now()
	m := &models.Message{
		ID:          uuid.New(),
		Title:       req.Title,
		Content:     req.Content,
		Type:        req.Type,
		Priority:    req.Priority,
		Creator:     *creator,
		HideCreator: req.HideCreator,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(recipients) == 1 && req.Type.SingleRecipient() {
		m.TargetUserID = &recipients[0]
	}

	if err := s.store.CreateMessage(ctx, m, recipients); err != nil {
		return nil, err
	}

	log.Info().
		Str("messageId", m.ID.String()).
		Str("type", string(m.Type)).
		Int("recipients", len(recipients)).
		Msg("Targeted message created")

	for _, rid := range recipients {
		s.emitCreated(rid, m)
	}
	return m, nil
}

// ---------- State machine operations ----------

// GetState returns the recipient's stored state, or a synthetic all-false
// state when the recipient was never targeted. It never creates a row.
func (s *Service) GetState(ctx context.Context, messageID, recipientID uuid.UUID) (*models.NotificationState, error) {
	st, err := s.store.GetState(ctx, messageID, recipientID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		exists, err := s.store.MessageExists(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrMessageNotFound
		}
		return &models.NotificationState{}, nil
	}
	return st, nil
}

func (s *Service) MarkReadInBell(ctx context.Context, messageID, recipientID uuid.UUID) error {
	updated, err := s.store.MarkReadInBell(ctx, messageID, recipientID, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return s.stateWriteMiss(ctx, messageID)
	}
	s.emitChange(recipientID, EventTypeMessageRead, messageID, ChangeReadInBell)
	return nil
}

func (s *Service) MarkReadInSystem(ctx context.Context, messageID, recipientID uuid.UUID) error {
	updated, err := s.store.MarkReadInSystem(ctx, messageID, recipientID, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return s.stateWriteMiss(ctx, messageID)
	}
	s.emitChange(recipientID, EventTypeMessageRead, messageID, ChangeReadInSystem)
	return nil
}

// MarkReadEverywhere sets both surfaces read atomically with one instant.
func (s *Service) MarkReadEverywhere(ctx context.Context, messageID, recipientID uuid.UUID) error {
	updated, err := s.store.MarkReadEverywhere(ctx, messageID, recipientID, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return s.stateWriteMiss(ctx, messageID)
	}
	s.emitChange(recipientID, EventTypeMessageRead, messageID, ChangeReadEverywhere)
	return nil
}

// RemoveFromBell hides the message from the recipient's bell. The read
// precondition surfaced through canRemove is a presentation rule; an
// out-of-order call still lands.
func (s *Service) RemoveFromBell(ctx context.Context, messageID, recipientID uuid.UUID) error {
	updated, err := s.store.RemoveFromBell(ctx, messageID, recipientID, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return s.stateWriteMiss(ctx, messageID)
	}
	s.emitChange(recipientID, EventTypeMessageRemove, messageID, ChangeRemovedFromBell)
	return nil
}

// DeleteFromSystem flags the message deleted on the system page and cascades
// to bell removal in the same store write.
func (s *Service) DeleteFromSystem(ctx context.Context, messageID, recipientID uuid.UUID) error {
	updated, err := s.store.DeleteFromSystem(ctx, messageID, recipientID, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return s.stateWriteMiss(ctx, messageID)
	}
	s.emitChange(recipientID, EventTypeMessageDelete, messageID, ChangeDeletedFromSystem)
	return nil
}

// stateWriteMiss turns a zero-row update into the caller-distinguishable
// error: message missing vs. recipient never targeted.
func (s *Service) stateWriteMiss(ctx context.Context, messageID uuid.UUID) error {
	exists, err := s.store.MessageExists(ctx, messageID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrMessageNotFound
	}
	return ErrNotTargeted
}

// ---------- Retrieval & aggregation ----------

// BellNotification is one bell-dropdown row for a recipient.
type BellNotification struct {
	MessageID    uuid.UUID               `json:"messageId"`
	Title        string                  `json:"title"`
	Content      string                  `json:"content"`
	Type         models.MessageType      `json:"type"`
	Priority     models.MessagePriority  `json:"priority"`
	TargetUserID *uuid.UUID              `json:"targetUserId,omitempty"`
	IsRead       bool                    `json:"isRead"`
	ReadAt       *time.Time              `json:"readAt,omitempty"`
	CanRemove    bool                    `json:"canRemove"`
	Creator      *models.CreatorSnapshot `json:"creator,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// SystemMessage is one row on the recipient's system-messages page.
type SystemMessage struct {
	MessageID uuid.UUID               `json:"messageId"`
	Title     string                  `json:"title"`
	Content   string                  `json:"content"`
	Type      models.MessageType      `json:"type"`
	Priority  models.MessagePriority  `json:"priority"`
	IsRead    bool                    `json:"isRead"`
	ReadAt    *time.Time              `json:"readAt,omitempty"`
	Creator   *models.CreatorSnapshot `json:"creator,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
	ExpiresAt *time.Time              `json:"expiresAt,omitempty"`
}

// UnreadCounts aggregates a recipient's unread messages per surface. Total
// is the bell count; the bell drives the badge, system is reported
// separately and never summed in.
type UnreadCounts struct {
	Bell   int64 `json:"bell"`
	System int64 `json:"system"`
	Total  int64 `json:"total"`
}

// BellList returns the recipient's bell dropdown, newest first. The role
// filter uses the recipient's role right now, so a role change immediately
// affects which past broadcasts are visible.
func (s *Service) BellList(ctx context.Context, recipientID uuid.UUID) ([]*BellNotification, error) {
	rows, err := s.visibleRows(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	out := []*BellNotification{}
	for _, row := range rows {
		if !row.Message.ShouldShowInBell(&row.State) {
			continue
		}
		out = append(out, &BellNotification{
			MessageID:    row.Message.ID,
			Title:        row.Message.DisplayTitle(),
			Content:      row.Message.Content,
			Type:         row.Message.Type,
			Priority:     row.Message.Priority,
			TargetUserID: row.Message.TargetUserID,
			IsRead:       row.State.IsReadInBell,
			ReadAt:       row.State.ReadInBellAt,
			CanRemove:    row.State.CanRemoveFromBell(),
			Creator:      row.Message.PublicCreator(),
			CreatedAt:    row.Message.CreatedAt,
		})
	}
	return out, nil
}

// SystemPage returns one page of the recipient's system messages plus the
// total over the filtered set. Filtering happens before pagination, so the
// totals always reflect what the recipient can actually see.
func (s *Service) SystemPage(ctx context.Context, recipientID uuid.UUID, page, limit int) ([]*SystemMessage, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := s.visibleRows(ctx, recipientID)
	if err != nil {
		return nil, 0, err
	}

	visible := []*SystemMessage{}
	for _, row := range rows {
		if !row.Message.ShouldShowInSystem(&row.State) {
			continue
		}
		visible = append(visible, &SystemMessage{
			MessageID: row.Message.ID,
			Title:     row.Message.DisplayTitle(),
			Content:   row.Message.Content,
			Type:      row.Message.Type,
			Priority:  row.Message.Priority,
			IsRead:    row.State.IsReadInSystem,
			ReadAt:    row.State.ReadInSystemAt,
			Creator:   row.Message.PublicCreator(),
			CreatedAt: row.Message.CreatedAt,
			ExpiresAt: row.Message.ExpiresAt,
		})
	}

	total := int64(len(visible))
	start := (page - 1) * limit
	if start >= len(visible) {
		return []*SystemMessage{}, total, nil
	}
	end := start + limit
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end], total, nil
}

// UnreadCounts returns the recipient's unread counts for both surfaces.
// Failures surface as errors; a zero count is a valid true state and must
// never double as one.
func (s *Service) UnreadCounts(ctx context.Context, recipientID uuid.UUID) (*UnreadCounts, error) {
	rows, err := s.visibleRows(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	counts := &UnreadCounts{}
	for _, row := range rows {
		if row.Message.ShouldShowInBell(&row.State) && !row.State.IsReadInBell {
			counts.Bell++
		}
		if row.Message.ShouldShowInSystem(&row.State) && !row.State.IsReadInSystem {
			counts.System++
		}
	}
	counts.Total = counts.Bell
	return counts, nil
}

// visibleRows loads the recipient's candidate rows and applies the
// read-time role filter, newest first.
func (s *Service) visibleRows(ctx context.Context, recipientID uuid.UUID) ([]*RecipientMessage, error) {
	role, err := s.users.CurrentRole(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipient role: %w", err)
	}

	rows, err := s.store.ListRecipientMessages(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	filtered := rows[:0:0]
	for _, row := range rows {
		if row.Message.VisibleToRole(role) {
			filtered = append(filtered, row)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Message.CreatedAt.After(filtered[j].Message.CreatedAt)
	})
	return filtered, nil
}

// ---------- Maintenance sweep ----------

// ExpireStale retires every active message past its expiry. Per-recipient
// flags are untouched; both surfaces short-circuit on isActive. Idempotent.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	return s.store.DeactivateExpired(ctx, s.now())
}

// RunSweeper runs the expiry sweep on a ticker until ctx is done. Transient
// failures are logged and retried on the next tick; no caller is waiting.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			retired, err := s.ExpireStale(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Expiry sweep failed, will retry next tick")
				continue
			}
			if retired > 0 {
				log.Info().Int64("retired", retired).Msg("Expiry sweep retired stale messages")
			}
		}
	}
}

// ---------- Internal helpers ----------

// StateChangeEvent is the payload delivered for every per-recipient state
// mutation.
type StateChangeEvent struct {
	MessageID   uuid.UUID `json:"messageId"`
	RecipientID uuid.UUID `json:"recipientId"`
	Change      string    `json:"change"`
}

// MessageCreatedEvent is the payload delivered when a recipient is targeted
// by a new message.
type MessageCreatedEvent struct {
	RecipientID uuid.UUID         `json:"recipientId"`
	Change      string            `json:"change"`
	Message     *BellNotification `json:"message"`
}

func (s *Service) emitCreated(recipientID uuid.UUID, m *models.Message) {
	s.notifier.SendUserEvent(recipientID, EventTypeMessageCreate, &MessageCreatedEvent{
		RecipientID: recipientID,
		Change:      ChangeCreated,
		Message: &BellNotification{
			MessageID:    m.ID,
			Title:        m.DisplayTitle(),
			Content:      m.Content,
			Type:         m.Type,
			Priority:     m.Priority,
			TargetUserID: m.TargetUserID,
			Creator:      m.PublicCreator(),
			CreatedAt:    m.CreatedAt,
		},
	})
}

func (s *Service) emitChange(recipientID uuid.UUID, eventType string, messageID uuid.UUID, change string) {
	s.notifier.SendUserEvent(recipientID, eventType, &StateChangeEvent{
		MessageID:   messageID,
		RecipientID: recipientID,
		Change:      change,
	})
}

func validateContent(title, content string, typ models.MessageType, priority models.MessagePriority) error {
	if title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if utf8.RuneCountInString(title) > models.MessageTitleMaxLen {
		return &ValidationError{Field: "title", Reason: "exceeds maximum length"}
	}
	if content == "" {
		return &ValidationError{Field: "content", Reason: "required"}
	}
	if utf8.RuneCountInString(content) > models.MessageContentMaxLen {
		return &ValidationError{Field: "content", Reason: "exceeds maximum length"}
	}
	if !typ.Valid() {
		return &ValidationError{Field: "type", Reason: "unknown message type"}
	}
	if !priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
