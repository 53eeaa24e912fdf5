package websocket

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func newLocalClient(h *Hub) *Client {
	c := &Client{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Send:   make(chan []byte, 4),
	}
	h.clients[c.ID] = c
	h.userClients[c.UserID] = []*Client{c}
	return c
}

func marshalPayload(t *testing.T, origin string, userID uuid.UUID) []byte {
	t.Helper()
	raw, err := json.Marshal(userEventPayload{
		Origin: origin,
		UserID: userID.String(),
		Event:  &Event{Type: "SYSTEM_MESSAGE_CREATE"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestHandleRemoteEventDropsOwnPublishes(t *testing.T) {
	h := NewHub(nil)
	c := newLocalClient(h)

	h.handleRemoteEvent(marshalPayload(t, h.instanceID, c.UserID))

	if len(c.Send) != 0 {
		t.Fatalf("self-published event delivered again locally")
	}
}

func TestHandleRemoteEventDeliversForeignPublishes(t *testing.T) {
	h := NewHub(nil)
	c := newLocalClient(h)

	h.handleRemoteEvent(marshalPayload(t, "some-other-instance", c.UserID))

	if len(c.Send) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(c.Send))
	}

	var ev Event
	if err := json.Unmarshal(<-c.Send, &ev); err != nil {
		t.Fatalf("unmarshal delivered event: %v", err)
	}
	if ev.Type != "SYSTEM_MESSAGE_CREATE" {
		t.Fatalf("unexpected event type %q", ev.Type)
	}
}

func TestHandleRemoteEventIgnoresGarbage(t *testing.T) {
	h := NewHub(nil)
	c := newLocalClient(h)

	h.handleRemoteEvent([]byte("not json"))
	h.handleRemoteEvent(marshalPayload(t, "other", uuid.New()))

	if len(c.Send) != 0 {
		t.Fatalf("unexpected delivery: %d events", len(c.Send))
	}
}
