package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Event: "low_credits", Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Events: []string{"low_credits", "credits_reset"},
	}}

	lowCredits := &Event{Event: "low_credits"}
	reset := &Event{Event: "credits_reset"}
	cancelled := &Event{Event: "license_cancelled"}

	if !h.shouldSend(client, lowCredits) {
		t.Error("Should receive low_credits events")
	}
	if !h.shouldSend(client, reset) {
		t.Error("Should receive credits_reset events")
	}
	if h.shouldSend(client, cancelled) {
		t.Error("Should NOT receive license_cancelled events")
	}
}

func TestShouldSend_LicenseFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		LicenseIDs: []string{"lic_1"},
	}}

	matching := &Event{
		Event: "low_credits",
		Data:  map[string]interface{}{"license_id": "lic_1"},
	}
	notMatching := &Event{
		Event: "low_credits",
		Data:  map[string]interface{}{"license_id": "lic_2"},
	}
	noData := &Event{Event: "low_credits"}

	if !h.shouldSend(client, matching) {
		t.Error("Should match the watched license")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other licenses")
	}
	if h.shouldSend(client, noData) {
		t.Error("Should NOT match events without license data")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	event := &Event{Event: "credits_reset"}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription should receive everything")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_RegisterAndBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 8),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- client

	h.Emit(context.Background(), "credits_used", map[string]interface{}{"license_id": "lic_1"})

	select {
	case raw := <-client.send:
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if evt.Event != "credits_used" {
			t.Errorf("unexpected event %q", evt.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- client
	h.unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel closed on unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- client

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel closed on shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected done channel closed after Run exits")
	}
}

func TestHub_Stats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- client

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := h.Stats()
		if stats["connectedClients"].(int) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never counted in stats")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
