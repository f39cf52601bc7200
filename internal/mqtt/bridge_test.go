package mqtt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/AaronLay10/Haeccstable/internal/model"
	"github.com/AaronLay10/Haeccstable/internal/registry"
)

func TestBridgeTopics(t *testing.T) {
	b := NewBridge(newMockTransport(), "/studio/")
	if got := b.Topic(TopicExecute); got != "studio/engine/process/execute" {
		t.Errorf("expected studio/engine/process/execute, got %s", got)
	}
	if got := NewBridge(newMockTransport(), "").Topic(TopicStop); got != TopicStop {
		t.Errorf("expected %s, got %s", TopicStop, got)
	}
}

func TestBridgeExecutePublishes(t *testing.T) {
	tr := newMockTransport()
	b := NewBridge(tr, "haeccstable")

	req := registry.ExecuteRequest{
		InstanceID: "abc",
		Process:    "sobel",
		Parameters: []string{"video", "threshold"},
		Arguments:  map[string]model.Value{"threshold": model.NumberValue(0.5)},
	}
	if err := b.Execute(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := tr.messages("haeccstable/engine/process/execute")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	var got map[string]interface{}
	if err := json.Unmarshal(msgs[0], &got); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if got["instance_id"] != "abc" || got["process"] != "sobel" {
		t.Errorf("unexpected payload %s", msgs[0])
	}
}

func TestBridgeStopPublishes(t *testing.T) {
	tr := newMockTransport()
	b := NewBridge(tr, "haeccstable")
	if err := b.Stop("abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := tr.messages("haeccstable/engine/process/stop")
	if len(msgs) != 1 || string(msgs[0]) != `{"instance_id":"abc"}` {
		t.Errorf("unexpected stop messages %q", msgs)
	}
}

func TestBridgeDisconnectedRejects(t *testing.T) {
	tr := newMockTransport()
	tr.connected = false
	reg := registry.New(NewBridge(tr, "haeccstable"))

	if reg.ExecuteProcess(registry.ExecuteRequest{InstanceID: "x", Process: "sobel"}) {
		t.Error("expected execution rejected while disconnected")
	}
	if err := NewBridge(tr, "p").Stop("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if stats := reg.Stats(); stats.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", stats.Failed)
	}
}

func TestSubscriberRoutesMessages(t *testing.T) {
	tr := newMockTransport()
	sink := newMockSink()
	bridge := NewBridge(tr, "haeccstable")
	monitor := NewMonitor(sink, 2)
	sub := NewEngineSubscriber(tr, bridge, monitor)

	if err := sub.SubscribeAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	topics := sub.SubscribedTopics()
	if len(topics) != 2 || topics[0] != "haeccstable/engine/heartbeat" || topics[1] != "haeccstable/engine/register" {
		t.Fatalf("unexpected topics %v", topics)
	}

	if !tr.deliver("haeccstable/engine/register", []byte(validRegistration)) {
		t.Fatal("no handler for register topic")
	}
	if _, ok := sink.device("video0"); !ok {
		t.Error("expected video0 registered through subscriber")
	}

	tr.deliver("haeccstable/engine/heartbeat", []byte(`{"engine_id":"engine-1"}`))
	if monitor.GetEngineState("engine-1") == nil {
		t.Error("expected engine tracked")
	}

	// malformed payloads are dropped
	tr.deliver("haeccstable/engine/register", []byte(`nope`))
	tr.deliver("haeccstable/engine/heartbeat", []byte(`nope`))
}

func TestSubscriberIdempotent(t *testing.T) {
	tr := newMockTransport()
	sub := NewEngineSubscriber(tr, NewBridge(tr, "h"), NewMonitor(newMockSink(), 2))

	sub.SubscribeAll()
	tr.mu.Lock()
	tr.subscriptions = make(map[string]Handler)
	tr.mu.Unlock()

	// already tracked, so nothing is re-subscribed
	sub.SubscribeAll()
	if tr.deliver("h/engine/register", []byte(validRegistration)) {
		t.Error("expected no re-subscription while tracked")
	}

	sub.ClearSubscriptions()
	if sub.IsSubscribed("h/engine/register") {
		t.Error("expected subscriptions cleared")
	}
	sub.SubscribeAll()
	if !sub.IsSubscribed("h/engine/register") {
		t.Error("expected re-subscription after clear")
	}
}

func TestSubscriberReportsFailure(t *testing.T) {
	tr := newMockTransport()
	tr.subscribeErr = errors.New("broker says no")
	sub := NewEngineSubscriber(tr, NewBridge(tr, "h"), NewMonitor(newMockSink(), 2))
	if err := sub.SubscribeAll(); err == nil {
		t.Error("expected subscribe error")
	}
	if len(sub.SubscribedTopics()) != 0 {
		t.Error("expected nothing tracked after failure")
	}
}
