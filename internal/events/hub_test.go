package events

import (
	"encoding/json"
	"testing"

	"github.com/AlanyTan/sweteam/pkg/models"
)

func TestHub_publishReachesSubscribers(t *testing.T) {
	t.Parallel()
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(models.Event{Type: models.EventIssueChanged, IssueID: "1"})
	select {
	case b := <-ch:
		var ev models.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != models.EventIssueChanged || ev.IssueID != "1" {
			t.Fatalf("event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("timestamp not stamped")
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestHub_slowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	// Overfill the buffer; publishes must return without blocking.
	for i := 0; i < models.DefaultSSEChannelBuffer+50; i++ {
		h.Publish(models.Event{Type: models.EventToolDispatch})
	}
	if n := len(ch); n != models.DefaultSSEChannelBuffer {
		t.Fatalf("buffered events: got %d, want %d", n, models.DefaultSSEChannelBuffer)
	}
}

func TestHub_unsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	// A second unsubscribe is harmless.
	h.Unsubscribe(ch)
}
