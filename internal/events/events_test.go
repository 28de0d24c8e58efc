package events

import (
	"encoding/json"
	"testing"
)

func TestMakeEventEnvelope(t *testing.T) {
	raw := MakeEvent("req-1", TypeStageCompleted, 1, map[string]any{"stage": "enrich", "records": 3})

	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != TypeStageCompleted || e.Version != 1 || e.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", e)
	}
	var data struct {
		Stage   string `json:"stage"`
		Records int    `json:"records"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Stage != "enrich" || data.Records != 3 {
		t.Fatalf("data = %+v", data)
	}
}

func TestMakeEventWithoutData(t *testing.T) {
	var e map[string]any
	if err := json.Unmarshal([]byte(MakeEvent("", TypePing, 1, nil)), &e); err != nil {
		t.Fatal(err)
	}
	if _, ok := e["data"]; ok {
		t.Fatalf("data should be omitted: %v", e)
	}
	if _, ok := e["request_id"]; ok {
		t.Fatalf("request_id should be omitted: %v", e)
	}
}

func TestHubFanOutAndUnsubscribe(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	if n := h.Publish("x"); n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	if got := <-a; got != "x" {
		t.Fatalf("a got %q", got)
	}
	if got := <-b; got != "x" {
		t.Fatalf("b got %q", got)
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a) // second call is a no-op
	if _, open := <-a; open {
		t.Fatal("channel should be closed")
	}
	if n := h.Publish("y"); n != 1 || h.Subscribers() != 1 {
		t.Fatalf("delivered=%d subscribers=%d", n, h.Subscribers())
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < cap(ch); i++ {
		h.Publish("fill")
	}
	if n := h.Publish("overflow"); n != 0 {
		t.Fatalf("full subscriber should be skipped, delivered=%d", n)
	}
}

func TestNotifierPublishesEnvelope(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Notifier("r")(TypeHarvestStarted, map[string]string{"run_id": "abc"})

	var e Event
	if err := json.Unmarshal([]byte(<-ch), &e); err != nil {
		t.Fatal(err)
	}
	if e.Type != TypeHarvestStarted || e.RequestID != "r" {
		t.Fatalf("got %+v", e)
	}
}
