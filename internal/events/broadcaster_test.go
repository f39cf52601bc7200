package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()

	sub1 := Subscribe()
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after first subscribe, got %d", initial+1, SubscriberCount())
	}

	sub2 := Subscribe()
	if SubscriberCount() != initial+2 {
		t.Errorf("expected %d subscribers after second subscribe, got %d", initial+2, SubscriberCount())
	}

	Unsubscribe(sub1)
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after unsubscribe, got %d", initial+1, SubscriberCount())
	}

	// second unsubscribe must not panic on a closed channel
	Unsubscribe(sub1)

	Unsubscribe(sub2)
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers after all unsubscribed, got %d", initial, SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	if _, err := Emit("info", "variable.declared", "test", map[string]interface{}{"name": "x"}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	select {
	case e := <-sub:
		if e.Name != "variable.declared" {
			t.Errorf("expected event name 'variable.declared', got '%s'", e.Name)
		}
		if e.Fields["name"] != "x" {
			t.Errorf("expected name 'x', got '%v'", e.Fields["name"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	before := TotalCount()
	if _, err := Emit("info", "node.started", "", nil); err == nil {
		t.Fatal("expected error for unknown event name")
	}
	if TotalCount() != before {
		t.Errorf("expected total count unchanged, got %d -> %d", before, TotalCount())
	}
}

func TestEmitReturnsJSON(t *testing.T) {
	b, err := Emit("info", "window.created", "window created", map[string]interface{}{"name": "w"})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["event"] != "window.created" {
		t.Errorf("expected event 'window.created', got %v", decoded["event"])
	}
	if decoded["msg"] != "window created" {
		t.Errorf("expected msg 'window created', got %v", decoded["msg"])
	}
}

func TestEmitLogsAtEventLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	cases := []struct {
		level string
		want  string
	}{
		{"error", "error"},
		{"warning", "warn"},
		{"info", "info"},
		{"debug", "debug"},
	}
	for _, tc := range cases {
		buf.Reset()
		if _, err := Emit(tc.level, "process.failed", "process instance rejected by engine", nil); err != nil {
			t.Fatalf("emit failed: %v", err)
		}
		var line map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("invalid log line %q: %v", buf.String(), err)
		}
		if line["level"] != tc.want {
			t.Errorf("expected level %q for %s event, got %v", tc.want, tc.level, line["level"])
		}
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "variable.declared", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	all := RecentEvents(100)
	if len(all) != 10 {
		t.Errorf("expected 10 events when requesting 100, got %d", len(all))
	}

	zero := RecentEvents(0)
	if len(zero) != 10 {
		t.Errorf("expected 10 events when requesting 0, got %d", len(zero))
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{Name: "state.reset", Fields: map[string]interface{}{"i": i}})
	}
	snap := rb.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 events, got %d", len(snap))
	}
	for idx, want := range []int{2, 3, 4} {
		if snap[idx].Fields["i"] != want {
			t.Errorf("snapshot[%d]: expected i=%d, got %v", idx, want, snap[idx].Fields["i"])
		}
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	sub := Subscribe()
	CloseAllSubscribers()

	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", SubscriberCount())
	}
	if _, ok := <-sub; ok {
		t.Error("expected subscriber channel to be closed")
	}
}

type failingJournal struct {
	mu    sync.Mutex
	calls int
}

func (f *failingJournal) Append(time.Time, string, string, string, map[string]interface{}, string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("connection refused")
}

func TestJournalFailureReportedOnce(t *testing.T) {
	Clear()
	j := &failingJournal{}
	SetJournal(j, "session-1")
	defer SetJournal(nil, "")

	for i := 0; i < 3; i++ {
		if _, err := Emit("info", "state.reset", "", nil); err != nil {
			t.Fatalf("emit should not fail on journal error: %v", err)
		}
	}

	if j.calls != 3 {
		t.Errorf("expected 3 journal appends, got %d", j.calls)
	}

	errorsSeen := 0
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected exactly 1 system.error event, got %d", errorsSeen)
	}
}
