package events

import (
	"testing"
	"time"

	"github.com/goclaw/recall/pkg/monitor"
)

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.Broadcast(Event{
		Type: TypeConfig,
		Payload: map[string]any{
			"strategy": "fulltext",
		},
	})

	select {
	case event := <-ch:
		if event.Type != TypeConfig {
			t.Fatalf("type = %q, want %s", event.Type, TypeConfig)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
	}

	b.Unsubscribe(ch)
}

func TestBroadcaster_Helpers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(3)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.BroadcastAlert(monitor.Alert{ID: "a1", Type: monitor.AlertErrorRate, Timestamp: at})
	b.BroadcastBreakerChanged("fulltext", "open")
	b.BroadcastConfigChanged("fulltext", "update")

	var types []string
	for len(types) < 3 {
		select {
		case event := <-ch:
			types = append(types, event.Type)
			if event.Type == TypeAlert && !event.Timestamp.Equal(at) {
				t.Errorf("alert timestamp = %v, want %v", event.Timestamp, at)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected 3 helper events, got %d", len(types))
		}
	}
	want := []string{TypeAlert, TypeBreaker, TypeConfig}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestBroadcaster_DropsOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.BroadcastConfigChanged("a", "update")
	b.BroadcastConfigChanged("b", "update")

	if got := len(ch); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	b.Close()
	if _, ok := <-ch; !ok {
		t.Fatal("expected the buffered event before close")
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
}
