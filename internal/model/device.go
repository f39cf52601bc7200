package model

import (
	"fmt"
	"time"
)

// Device is a capture or output device announced by a media engine.
type Device struct {
	ID           int       `json:"id"`
	Kind         string    `json:"kind"`
	Direction    string    `json:"direction"`
	Name         string    `json:"name"`
	EngineID     string    `json:"engine_id"`
	Connected    bool      `json:"connected"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Key is the dossier key for the device, e.g. "video0".
func (d Device) Key() string {
	return fmt.Sprintf("%s%d", d.Kind, d.ID)
}
