package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// variable
	"variable.declared": {},
	"variable.removed":  {},

	// function
	"function.defined": {},
	"function.removed": {},

	// process
	"process.defined": {},
	"process.started": {},
	"process.stopped": {},
	"process.failed":  {},
	"process.removed": {},

	// layer
	"layer.created": {},
	"layer.updated": {},
	"layer.removed": {},

	// window
	"window.created": {},
	"window.updated": {},
	"window.removed": {},

	// state
	"state.reset":    {},
	"state.restored": {},

	// client
	"client.connected":    {},
	"client.disconnected": {},

	// device
	"device.connected":    {},
	"device.disconnected": {},
	"device.error":        {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate returns an error for event names outside the allow-list.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
