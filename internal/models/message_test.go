package models

import (
	"testing"
	"time"
)

var (
	t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(5 * time.Minute)
	t2 = t0.Add(20 * time.Minute)
)

func TestMarkReadInBellStampsFirstWins(t *testing.T) {
	st := &NotificationState{}

	st.MarkReadInBell(t0)
	if !st.IsReadInBell {
		t.Fatalf("expected bell read flag set")
	}
	if st.ReadInBellAt == nil || !st.ReadInBellAt.Equal(t0) {
		t.Fatalf("expected read stamp %v, got %v", t0, st.ReadInBellAt)
	}

	// Repeat keeps the original stamp but moves lastInteractionAt
	st.MarkReadInBell(t1)
	if !st.ReadInBellAt.Equal(t0) {
		t.Fatalf("repeat read moved stamp to %v", st.ReadInBellAt)
	}
	if st.LastInteractionAt == nil || !st.LastInteractionAt.Equal(t1) {
		t.Fatalf("expected last interaction %v, got %v", t1, st.LastInteractionAt)
	}
	if st.IsReadInSystem || st.IsRemovedFromBell || st.IsDeletedFromSystem {
		t.Fatalf("bell read leaked into other flags: %+v", st)
	}
}

func TestMarkReadInSystemIndependentOfBell(t *testing.T) {
	st := &NotificationState{}

	st.MarkReadInSystem(t0)
	if !st.IsReadInSystem {
		t.Fatalf("expected system read flag set")
	}
	if st.IsReadInBell {
		t.Fatalf("system read must not mark the bell read")
	}
	if st.ReadInSystemAt == nil || !st.ReadInSystemAt.Equal(t0) {
		t.Fatalf("expected system read stamp %v, got %v", t0, st.ReadInSystemAt)
	}
}

func TestMarkReadEverywhereUsesOneInstant(t *testing.T) {
	st := &NotificationState{}

	st.MarkReadEverywhere(t0)
	if !st.IsReadInBell || !st.IsReadInSystem {
		t.Fatalf("expected both surfaces read, got %+v", st)
	}
	if !st.ReadInBellAt.Equal(*st.ReadInSystemAt) {
		t.Fatalf("stamps differ: bell %v system %v", st.ReadInBellAt, st.ReadInSystemAt)
	}
}

func TestMarkReadEverywherePreservesEarlierStamp(t *testing.T) {
	st := &NotificationState{}
	st.MarkReadInBell(t0)

	st.MarkReadEverywhere(t1)
	if !st.ReadInBellAt.Equal(t0) {
		t.Fatalf("earlier bell stamp overwritten: %v", st.ReadInBellAt)
	}
	if !st.ReadInSystemAt.Equal(t1) {
		t.Fatalf("expected system stamp %v, got %v", t1, st.ReadInSystemAt)
	}
}

func TestRemoveFromBellLeavesSystemView(t *testing.T) {
	st := &NotificationState{}
	st.MarkReadInBell(t0)
	st.RemoveFromBell(t1)

	if !st.IsRemovedFromBell {
		t.Fatalf("expected removed flag set")
	}
	if st.IsDeletedFromSystem {
		t.Fatalf("bell removal must not delete from the system page")
	}

	m := &Message{IsActive: true}
	if m.ShouldShowInBell(st) {
		t.Fatalf("removed message still visible in bell")
	}
	if !m.ShouldShowInSystem(st) {
		t.Fatalf("removed message vanished from the system page")
	}
}

func TestDeleteFromSystemCascadesToBell(t *testing.T) {
	st := &NotificationState{}
	st.DeleteFromSystem(t0)

	if !st.IsDeletedFromSystem || !st.IsRemovedFromBell {
		t.Fatalf("delete did not cascade: %+v", st)
	}
	if !st.DeletedFromSystemAt.Equal(*st.RemovedFromBellAt) {
		t.Fatalf("cascade stamps differ: %v vs %v", st.DeletedFromSystemAt, st.RemovedFromBellAt)
	}

	m := &Message{IsActive: true}
	if m.ShouldShowInBell(st) || m.ShouldShowInSystem(st) {
		t.Fatalf("deleted message still visible somewhere")
	}

	// Deleting again is a no-op for flags and stamps
	st.DeleteFromSystem(t2)
	if !st.DeletedFromSystemAt.Equal(t0) || !st.RemovedFromBellAt.Equal(t0) {
		t.Fatalf("repeat delete moved stamps: %+v", st)
	}
}

func TestDeleteAfterRemoveKeepsRemovalStamp(t *testing.T) {
	st := &NotificationState{}
	st.RemoveFromBell(t0)
	st.DeleteFromSystem(t1)

	if !st.RemovedFromBellAt.Equal(t0) {
		t.Fatalf("cascade overwrote earlier removal stamp: %v", st.RemovedFromBellAt)
	}
	if !st.DeletedFromSystemAt.Equal(t1) {
		t.Fatalf("expected delete stamp %v, got %v", t1, st.DeletedFromSystemAt)
	}
}

func TestCanRemoveFromBell(t *testing.T) {
	tests := []struct {
		name string
		st   NotificationState
		want bool
	}{
		{"unread", NotificationState{}, false},
		{"read", NotificationState{IsReadInBell: true}, true},
		{"read and removed", NotificationState{IsReadInBell: true, IsRemovedFromBell: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.CanRemoveFromBell(); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestVisibilityRequiresStateRow(t *testing.T) {
	m := &Message{IsActive: true}
	if m.ShouldShowInBell(nil) || m.ShouldShowInSystem(nil) {
		t.Fatalf("message visible to a recipient with no state row")
	}
}

func TestInactiveMessageHiddenEverywhere(t *testing.T) {
	m := &Message{IsActive: false}
	st := &NotificationState{}
	if m.ShouldShowInBell(st) || m.ShouldShowInSystem(st) {
		t.Fatalf("inactive message visible")
	}
}

func TestVisibleToRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []UserRole
		role  UserRole
		want  bool
	}{
		{"unrestricted", nil, UserRoleParticipant, true},
		{"matching role", []UserRole{UserRoleLeader, UserRoleOrganizer}, UserRoleLeader, true},
		{"non-matching role", []UserRole{UserRoleLeader}, UserRoleParticipant, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{TargetRoles: tt.roles}
			if got := m.VisibleToRole(tt.role); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExpired(t *testing.T) {
	past := t0
	if (&Message{ExpiresAt: &past}).Expired(t1) != true {
		t.Fatalf("past expiry not detected")
	}
	future := t2
	if (&Message{ExpiresAt: &future}).Expired(t1) != false {
		t.Fatalf("future expiry treated as expired")
	}
	if (&Message{}).Expired(t1) {
		t.Fatalf("message without expiry treated as expired")
	}
}

func TestPublicCreatorHidden(t *testing.T) {
	m := &Message{Creator: CreatorSnapshot{Username: "ops"}, HideCreator: true}
	if m.PublicCreator() != nil {
		t.Fatalf("hidden creator exposed")
	}
	m.HideCreator = false
	c := m.PublicCreator()
	if c == nil || c.Username != "ops" {
		t.Fatalf("expected creator snapshot, got %+v", c)
	}
}

func TestSingleRecipientTypes(t *testing.T) {
	if !MessageTypeRoleChange.SingleRecipient() || !MessageTypeAuthLevelChange.SingleRecipient() ||
		!MessageTypeCoOrganizerAssignment.SingleRecipient() {
		t.Fatalf("account-change types must be single-recipient")
	}
	if MessageTypeAnnouncement.SingleRecipient() {
		t.Fatalf("announcement must not be single-recipient")
	}
}
