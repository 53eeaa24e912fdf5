package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/citrine/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStore keeps messages and state rows in memory and applies the same
// transition semantics the SQL store implements.
type fakeStore struct {
	messages map[uuid.UUID]*models.Message
	states   map[uuid.UUID]map[uuid.UUID]*models.NotificationState
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[uuid.UUID]*models.Message),
		states:   make(map[uuid.UUID]map[uuid.UUID]*models.NotificationState),
	}
}

func (f *fakeStore) CreateMessage(_ context.Context, m *models.Message, recipientIDs []uuid.UUID) error {
	f.messages[m.ID] = m
	rows := make(map[uuid.UUID]*models.NotificationState, len(recipientIDs))
	for _, rid := range recipientIDs {
		rows[rid] = &models.NotificationState{}
	}
	f.states[m.ID] = rows
	return nil
}

func (f *fakeStore) MessageExists(_ context.Context, messageID uuid.UUID) (bool, error) {
	_, ok := f.messages[messageID]
	return ok, nil
}

func (f *fakeStore) GetState(_ context.Context, messageID, recipientID uuid.UUID) (*models.NotificationState, error) {
	st, ok := f.states[messageID][recipientID]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}

func (f *fakeStore) mutate(messageID, recipientID uuid.UUID, fn func(*models.NotificationState)) (bool, error) {
	st, ok := f.states[messageID][recipientID]
	if !ok {
		return false, nil
	}
	fn(st)
	return true, nil
}

func (f *fakeStore) MarkReadInBell(_ context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	return f.mutate(messageID, recipientID, func(st *models.NotificationState) { st.MarkReadInBell(now) })
}

func (f *fakeStore) MarkReadInSystem(_ context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	return f.mutate(messageID, recipientID, func(st *models.NotificationState) { st.MarkReadInSystem(now) })
}

func (f *fakeStore) MarkReadEverywhere(_ context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	return f.mutate(messageID, recipientID, func(st *models.NotificationState) { st.MarkReadEverywhere(now) })
}

func (f *fakeStore) RemoveFromBell(_ context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	return f.mutate(messageID, recipientID, func(st *models.NotificationState) { st.RemoveFromBell(now) })
}

func (f *fakeStore) DeleteFromSystem(_ context.Context, messageID, recipientID uuid.UUID, now time.Time) (bool, error) {
	return f.mutate(messageID, recipientID, func(st *models.NotificationState) { st.DeleteFromSystem(now) })
}

func (f *fakeStore) ListRecipientMessages(_ context.Context, recipientID uuid.UUID) ([]*RecipientMessage, error) {
	var out []*RecipientMessage
	for id, m := range f.messages {
		if !m.IsActive {
			continue
		}
		st, ok := f.states[id][recipientID]
		if !ok {
			continue
		}
		out = append(out, &RecipientMessage{Message: m, State: *st})
	}
	return out, nil
}

func (f *fakeStore) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.IsActive && m.Expired(now) {
			m.IsActive = false
			n++
		}
	}
	return n, nil
}

type fakeDirectory struct {
	users map[uuid.UUID]*models.User
	order []uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeDirectory) addUser(role models.UserRole) uuid.UUID {
	id := uuid.New()
	f.users[id] = &models.User{ID: id, Username: "user-" + id.String()[:8], Role: role, AuthLevel: 1}
	f.order = append(f.order, id)
	return id
}

func (f *fakeDirectory) CreatorSnapshot(_ context.Context, userID uuid.UUID) (*models.CreatorSnapshot, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	snapshot := u.ToCreatorSnapshot()
	return &snapshot, nil
}

func (f *fakeDirectory) CurrentRole(_ context.Context, userID uuid.UUID) (models.UserRole, error) {
	u, ok := f.users[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return u.Role, nil
}

func (f *fakeDirectory) ListUserIDs(_ context.Context, roles []models.UserRole, exclude []uuid.UUID) ([]uuid.UUID, error) {
	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var out []uuid.UUID
	for _, id := range f.order {
		if excluded[id] {
			continue
		}
		if len(roles) > 0 {
			match := false
			for _, r := range roles {
				if f.users[id].Role == r {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, id)
	}
	return out, nil
}

type sentEvent struct {
	UserID uuid.UUID
	Type   string
	Data   any
}

type fakeNotifier struct {
	events []sentEvent
}

func (f *fakeNotifier) SendUserEvent(userID uuid.UUID, eventType string, data any) {
	f.events = append(f.events, sentEvent{UserID: userID, Type: eventType, Data: data})
}

func newTestService() (*Service, *fakeStore, *fakeDirectory, *fakeNotifier) {
	store := newFakeStore()
	dir := newFakeDirectory()
	notifier := &fakeNotifier{}
	svc := NewService(store, dir, notifier)
	svc.now = func() time.Time { return fixedNow }
	return svc, store, dir, notifier
}

func broadcastReq() *CreateBroadcastRequest {
	return &CreateBroadcastRequest{
		Title:    "Scheduled maintenance",
		Content:  "The platform goes down at midnight.",
		Type:     models.MessageTypeMaintenance,
		Priority: models.MessagePriorityHigh,
	}
}

func TestCreateBroadcastInitializesAllRecipients(t *testing.T) {
	svc, store, dir, notifier := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	p1 := dir.addUser(models.UserRoleParticipant)
	p2 := dir.addUser(models.UserRoleParticipant)

	m, err := svc.CreateBroadcast(context.Background(), admin, broadcastReq())
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	if !m.IsActive {
		t.Fatalf("new message not active")
	}
	if m.Creator.ID != admin {
		t.Fatalf("creator snapshot not captured")
	}

	for _, rid := range []uuid.UUID{admin, p1, p2} {
		st := store.states[m.ID][rid]
		if st == nil {
			t.Fatalf("recipient %s has no state row", rid)
		}
		if st.IsReadInBell || st.IsReadInSystem || st.IsRemovedFromBell || st.IsDeletedFromSystem {
			t.Fatalf("fresh state row not all-false: %+v", st)
		}
	}

	if len(notifier.events) != 3 {
		t.Fatalf("expected 3 create events, got %d", len(notifier.events))
	}
	for _, ev := range notifier.events {
		if ev.Type != EventTypeMessageCreate {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	}
}

func TestCreateBroadcastHonorsRolesAndExclusions(t *testing.T) {
	svc, store, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	leader := dir.addUser(models.UserRoleLeader)
	excludedLeader := dir.addUser(models.UserRoleLeader)
	participant := dir.addUser(models.UserRoleParticipant)

	req := broadcastReq()
	req.TargetRoles = []models.UserRole{models.UserRoleLeader}
	req.ExcludeUserIDs = []uuid.UUID{excludedLeader}

	m, err := svc.CreateBroadcast(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	rows := store.states[m.ID]
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 state row, got %d", len(rows))
	}
	if rows[leader] == nil {
		t.Fatalf("targeted leader missing a state row")
	}
	if rows[excludedLeader] != nil || rows[participant] != nil {
		t.Fatalf("exclusion or role filter ignored at creation")
	}
}

func TestCreateBroadcastRejectsNonAuthors(t *testing.T) {
	svc, _, dir, _ := newTestService()
	participant := dir.addUser(models.UserRoleParticipant)
	dir.addUser(models.UserRoleParticipant)

	_, err := svc.CreateBroadcast(context.Background(), participant, broadcastReq())
	if !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted, got %v", err)
	}

	leader := dir.addUser(models.UserRoleLeader)
	_, err = svc.CreateBroadcast(context.Background(), leader, broadcastReq())
	if !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("leaders must not author messages, got %v", err)
	}
}

func TestCreateBroadcastValidation(t *testing.T) {
	svc, store, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	dir.addUser(models.UserRoleParticipant)

	longTitle := make([]byte, models.MessageTitleMaxLen+1)
	for i := range longTitle {
		longTitle[i] = 'a'
	}

	tests := []struct {
		name   string
		mutate func(*CreateBroadcastRequest)
	}{
		{"empty title", func(r *CreateBroadcastRequest) { r.Title = "" }},
		{"title too long", func(r *CreateBroadcastRequest) { r.Title = string(longTitle) }},
		{"empty content", func(r *CreateBroadcastRequest) { r.Content = "" }},
		{"unknown type", func(r *CreateBroadcastRequest) { r.Type = "urgent_gossip" }},
		{"unknown priority", func(r *CreateBroadcastRequest) { r.Priority = "critical" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := broadcastReq()
			tt.mutate(req)
			_, err := svc.CreateBroadcast(context.Background(), admin, req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	if len(store.messages) != 0 {
		t.Fatalf("rejected message was persisted")
	}
}

func TestCreateBroadcastCountsTitleRunesNotBytes(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	dir.addUser(models.UserRoleParticipant)

	// 200 two-byte runes: over the limit in bytes, exactly at it in runes
	req := broadcastReq()
	req.Title = strings.Repeat("é", models.MessageTitleMaxLen)
	if _, err := svc.CreateBroadcast(context.Background(), admin, req); err != nil {
		t.Fatalf("title at the rune limit rejected: %v", err)
	}

	req = broadcastReq()
	req.Title = strings.Repeat("é", models.MessageTitleMaxLen+1)
	_, err := svc.CreateBroadcast(context.Background(), admin, req)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError past the rune limit, got %v", err)
	}
}

func TestCreateBroadcastNoRecipients(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)

	req := broadcastReq()
	req.TargetRoles = []models.UserRole{models.UserRoleLeader}

	_, err := svc.CreateBroadcast(context.Background(), admin, req)
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestCreateTargetedSingleRecipientDenormalizesTarget(t *testing.T) {
	svc, store, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)

	m, err := svc.CreateTargeted(context.Background(), admin, &CreateTargetedRequest{
		Title:        "Your role has changed",
		Content:      "You are now a leader.",
		Type:         models.MessageTypeRoleChange,
		Priority:     models.MessagePriorityHigh,
		RecipientIDs: []uuid.UUID{recipient, recipient},
	})
	if err != nil {
		t.Fatalf("create targeted: %v", err)
	}
	if m.TargetUserID == nil || *m.TargetUserID != recipient {
		t.Fatalf("expected targetUserId %s, got %v", recipient, m.TargetUserID)
	}
	if len(store.states[m.ID]) != 1 {
		t.Fatalf("duplicate recipient ids not deduplicated")
	}
}

func TestCreateTargetedMultiRecipientHasNoTargetUser(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	r1 := dir.addUser(models.UserRoleParticipant)
	r2 := dir.addUser(models.UserRoleParticipant)

	m, err := svc.CreateTargeted(context.Background(), admin, &CreateTargetedRequest{
		Title:        "Heads up",
		Content:      "Something changed.",
		Type:         models.MessageTypeWarning,
		Priority:     models.MessagePriorityMedium,
		RecipientIDs: []uuid.UUID{r1, r2},
	})
	if err != nil {
		t.Fatalf("create targeted: %v", err)
	}
	if m.TargetUserID != nil {
		t.Fatalf("multi-recipient message carries targetUserId %v", m.TargetUserID)
	}
}

func TestBellReadKeepRemoveFlow(t *testing.T) {
	svc, _, dir, notifier := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	m, err := svc.CreateBroadcast(ctx, admin, broadcastReq())
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	bell, err := svc.BellList(ctx, recipient)
	if err != nil {
		t.Fatalf("bell list: %v", err)
	}
	if len(bell) != 1 || bell[0].IsRead || bell[0].CanRemove {
		t.Fatalf("unexpected initial bell row: %+v", bell[0])
	}

	if err := svc.MarkReadInBell(ctx, m.ID, recipient); err != nil {
		t.Fatalf("mark read in bell: %v", err)
	}

	// Read-but-kept stays visible with the remove affordance enabled
	bell, _ = svc.BellList(ctx, recipient)
	if len(bell) != 1 || !bell[0].IsRead || !bell[0].CanRemove {
		t.Fatalf("expected read, removable bell row, got %+v", bell[0])
	}

	// System surface stays unread
	st, err := svc.GetState(ctx, m.ID, recipient)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.IsReadInSystem {
		t.Fatalf("bell read leaked to system surface")
	}

	if err := svc.RemoveFromBell(ctx, m.ID, recipient); err != nil {
		t.Fatalf("remove from bell: %v", err)
	}

	bell, _ = svc.BellList(ctx, recipient)
	if len(bell) != 0 {
		t.Fatalf("removed message still in bell")
	}

	// Still on the system page after bell removal
	page, total, err := svc.SystemPage(ctx, recipient, 1, 20)
	if err != nil {
		t.Fatalf("system page: %v", err)
	}
	if total != 1 || len(page) != 1 {
		t.Fatalf("expected message on system page, total=%d len=%d", total, len(page))
	}

	var types []string
	for _, ev := range notifier.events {
		if ev.UserID == recipient {
			types = append(types, ev.Type)
		}
	}
	want := []string{EventTypeMessageCreate, EventTypeMessageRead, EventTypeMessageRemove}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestDeleteFromSystemHidesBothSurfaces(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	other := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	m, err := svc.CreateBroadcast(ctx, admin, broadcastReq())
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	if err := svc.DeleteFromSystem(ctx, m.ID, recipient); err != nil {
		t.Fatalf("delete from system: %v", err)
	}

	bell, _ := svc.BellList(ctx, recipient)
	page, total, _ := svc.SystemPage(ctx, recipient, 1, 20)
	if len(bell) != 0 || total != 0 || len(page) != 0 {
		t.Fatalf("deleted message still visible: bell=%d total=%d", len(bell), total)
	}

	// Per-recipient: the other recipient is untouched
	bell, _ = svc.BellList(ctx, other)
	if len(bell) != 1 {
		t.Fatalf("delete leaked to another recipient")
	}
}

func TestReadTimeRoleChangeAffectsVisibility(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	leader := dir.addUser(models.UserRoleLeader)
	ctx := context.Background()

	req := broadcastReq()
	req.TargetRoles = []models.UserRole{models.UserRoleLeader}
	if _, err := svc.CreateBroadcast(ctx, admin, req); err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	bell, _ := svc.BellList(ctx, leader)
	if len(bell) != 1 {
		t.Fatalf("leader cannot see leader-targeted broadcast")
	}

	// Demotion hides the past broadcast immediately
	dir.users[leader].Role = models.UserRoleParticipant
	bell, _ = svc.BellList(ctx, leader)
	if len(bell) != 0 {
		t.Fatalf("demoted recipient still sees role-restricted broadcast")
	}
	counts, _ := svc.UnreadCounts(ctx, leader)
	if counts.Bell != 0 || counts.System != 0 {
		t.Fatalf("demoted recipient still counted: %+v", counts)
	}

	// Promotion back restores it
	dir.users[leader].Role = models.UserRoleLeader
	bell, _ = svc.BellList(ctx, leader)
	if len(bell) != 1 {
		t.Fatalf("re-promoted recipient lost the broadcast")
	}
}

func TestUnreadCountsTotalIsBellCount(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	m1, _ := svc.CreateBroadcast(ctx, admin, broadcastReq())
	m2, _ := svc.CreateBroadcast(ctx, admin, broadcastReq())
	_ = m2

	if err := svc.MarkReadInBell(ctx, m1.ID, recipient); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	counts, err := svc.UnreadCounts(ctx, recipient)
	if err != nil {
		t.Fatalf("unread counts: %v", err)
	}
	if counts.Bell != 1 || counts.System != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if counts.Total != counts.Bell {
		t.Fatalf("total %d must equal bell count %d", counts.Total, counts.Bell)
	}
}

func TestSystemPagePaginatesFilteredSet(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		m, err := svc.CreateBroadcast(ctx, admin, broadcastReq())
		if err != nil {
			t.Fatalf("create broadcast: %v", err)
		}
		ids = append(ids, m.ID)
	}
	// Delete two; totals must reflect the filtered set, not raw rows
	if err := svc.DeleteFromSystem(ctx, ids[0], recipient); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteFromSystem(ctx, ids[1], recipient); err != nil {
		t.Fatalf("delete: %v", err)
	}

	page, total, err := svc.SystemPage(ctx, recipient, 1, 2)
	if err != nil {
		t.Fatalf("system page: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected filtered total 3, got %d", total)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	page, total, _ = svc.SystemPage(ctx, recipient, 2, 2)
	if total != 3 || len(page) != 1 {
		t.Fatalf("expected last page of 1, got total=%d len=%d", total, len(page))
	}

	page, _, _ = svc.SystemPage(ctx, recipient, 9, 2)
	if len(page) != 0 {
		t.Fatalf("out-of-range page not empty")
	}
}

func TestStateOpsDistinguishMissingFromUntargeted(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	outsider := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	req := broadcastReq()
	req.ExcludeUserIDs = []uuid.UUID{outsider}
	m, err := svc.CreateBroadcast(ctx, admin, req)
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	_ = recipient

	if err := svc.MarkReadInBell(ctx, uuid.New(), recipient); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if err := svc.MarkReadInBell(ctx, m.ID, outsider); !errors.Is(err, ErrNotTargeted) {
		t.Fatalf("expected ErrNotTargeted, got %v", err)
	}
}

func TestGetStateSyntheticForUntargetedRecipient(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	dir.addUser(models.UserRoleParticipant)
	outsider := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	req := broadcastReq()
	req.ExcludeUserIDs = []uuid.UUID{outsider}
	m, err := svc.CreateBroadcast(ctx, admin, req)
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	st, err := svc.GetState(ctx, m.ID, outsider)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.IsReadInBell || st.IsReadInSystem || st.IsRemovedFromBell || st.IsDeletedFromSystem {
		t.Fatalf("synthetic state not all-false: %+v", st)
	}

	if _, err := svc.GetState(ctx, uuid.New(), outsider); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestExpireStaleRetiresOnceAndHidesEverywhere(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	expiry := fixedNow.Add(-time.Hour)
	req := broadcastReq()
	req.ExpiresAt = &expiry
	if _, err := svc.CreateBroadcast(ctx, admin, req); err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	if _, err := svc.CreateBroadcast(ctx, admin, broadcastReq()); err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	retired, err := svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if retired != 1 {
		t.Fatalf("expected 1 retired message, got %d", retired)
	}

	bell, _ := svc.BellList(ctx, recipient)
	page, total, _ := svc.SystemPage(ctx, recipient, 1, 20)
	if len(bell) != 1 || total != 1 || len(page) != 1 {
		t.Fatalf("expired message still visible: bell=%d total=%d", len(bell), total)
	}

	// Sweeping again is a no-op
	retired, err = svc.ExpireStale(ctx)
	if err != nil || retired != 0 {
		t.Fatalf("second sweep retired %d (err %v)", retired, err)
	}
}

func TestBellListNewestFirst(t *testing.T) {
	svc, store, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	older, _ := svc.CreateBroadcast(ctx, admin, broadcastReq())
	newer, _ := svc.CreateBroadcast(ctx, admin, broadcastReq())
	store.messages[older.ID].CreatedAt = fixedNow.Add(-time.Hour)
	store.messages[newer.ID].CreatedAt = fixedNow

	bell, err := svc.BellList(ctx, recipient)
	if err != nil {
		t.Fatalf("bell list: %v", err)
	}
	if len(bell) != 2 || bell[0].MessageID != newer.ID || bell[1].MessageID != older.ID {
		t.Fatalf("bell list not newest-first")
	}
}

func TestHiddenCreatorOmittedFromViews(t *testing.T) {
	svc, _, dir, _ := newTestService()
	admin := dir.addUser(models.UserRoleAdmin)
	recipient := dir.addUser(models.UserRoleParticipant)
	ctx := context.Background()

	req := broadcastReq()
	req.HideCreator = true
	if _, err := svc.CreateBroadcast(ctx, admin, req); err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	bell, _ := svc.BellList(ctx, recipient)
	if bell[0].Creator != nil {
		t.Fatalf("hidden creator exposed in bell view")
	}
	page, _, _ := svc.SystemPage(ctx, recipient, 1, 20)
	if page[0].Creator != nil {
		t.Fatalf("hidden creator exposed on system page")
	}
}
