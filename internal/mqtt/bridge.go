package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AaronLay10/Haeccstable/internal/registry"
)

const (
	TopicRegister  = "engine/register"
	TopicHeartbeat = "engine/heartbeat"
	TopicExecute   = "engine/process/execute"
	TopicStop      = "engine/process/stop"
)

// Bridge forwards process execute and stop requests to a media engine over
// MQTT. It satisfies registry.Engine.
type Bridge struct {
	transport Transport
	prefix    string
}

var _ registry.Engine = (*Bridge)(nil)

// NewBridge publishes under prefix, e.g. "haeccstable/engine/process/execute".
func NewBridge(t Transport, prefix string) *Bridge {
	return &Bridge{transport: t, prefix: strings.Trim(prefix, "/")}
}

// Topic joins the bridge prefix and suffix.
func (b *Bridge) Topic(suffix string) string {
	if b.prefix == "" {
		return suffix
	}
	return b.prefix + "/" + suffix
}

func (b *Bridge) Execute(req registry.ExecuteRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode execute request: %w", err)
	}
	return b.transport.Publish(b.Topic(TopicExecute), payload)
}

type stopRequest struct {
	InstanceID string `json:"instance_id"`
}

func (b *Bridge) Stop(instanceID string) error {
	payload, err := json.Marshal(stopRequest{InstanceID: instanceID})
	if err != nil {
		return err
	}
	return b.transport.Publish(b.Topic(TopicStop), payload)
}
