package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// RegistrationPayload is a v1 engine registration message.
type RegistrationPayload struct {
	Version int                  `json:"version"`
	Engine  EngineInfo           `json:"engine"`
	Devices []DeviceRegistration `json:"devices"`
}

type EngineInfo struct {
	ID           string `json:"id"`
	Version      string `json:"version,omitempty"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// DeviceRegistration describes one capture or output device of an engine.
type DeviceRegistration struct {
	ID        int    `json:"id"`
	Kind      string `json:"kind"`
	Direction string `json:"direction"`
	Name      string `json:"name"`
}

// HeartbeatPayload is published by an engine every heartbeat_sec.
type HeartbeatPayload struct {
	EngineID string `json:"engine_id"`
	UptimeMS int64  `json:"uptime_ms,omitempty"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Engine.ID == "" {
		return nil, fmt.Errorf("engine.id is required")
	}

	return &payload, nil
}

func ParseHeartbeat(data []byte) (*HeartbeatPayload, error) {
	var hb HeartbeatPayload
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("invalid heartbeat JSON: %w", err)
	}
	if hb.EngineID == "" {
		return nil, fmt.Errorf("engine_id is required")
	}
	return &hb, nil
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

var validKinds = map[string]bool{"video": true, "audio": true}

var validDirections = map[string]bool{"input": true, "output": true}

// ValidateRegistration checks every announced device. Devices that fail
// are reported as errors; an engine with no devices only warns.
func ValidateRegistration(payload *RegistrationPayload) *ValidationResult {
	result := &ValidationResult{Valid: true}

	seen := make(map[string]bool)
	for _, dev := range payload.Devices {
		if !validKinds[dev.Kind] {
			result.Errors = append(result.Errors, fmt.Sprintf("device %d: unknown kind %q", dev.ID, dev.Kind))
			result.Valid = false
			continue
		}
		if dev.Direction != "" && !validDirections[dev.Direction] {
			result.Errors = append(result.Errors, fmt.Sprintf("device %s%d: invalid direction %q", dev.Kind, dev.ID, dev.Direction))
			result.Valid = false
		}
		if dev.ID < 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("device %s%d: negative id", dev.Kind, dev.ID))
			result.Valid = false
		}
		key := fmt.Sprintf("%s%d", dev.Kind, dev.ID)
		if seen[key] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate device: %s", key))
			result.Valid = false
		}
		seen[key] = true
	}

	if len(payload.Devices) == 0 {
		result.Warnings = append(result.Warnings, "engine registered no devices")
	}
	if payload.Engine.HeartbeatSec <= 0 {
		result.Warnings = append(result.Warnings, "heartbeat_sec not set, using default")
	}

	return result
}

// ModelDevices converts the registration to dossier devices.
func (p *RegistrationPayload) ModelDevices(now time.Time) []model.Device {
	out := make([]model.Device, 0, len(p.Devices))
	for _, dev := range p.Devices {
		direction := dev.Direction
		if direction == "" {
			direction = "input"
		}
		out = append(out, model.Device{
			ID:           dev.ID,
			Kind:         dev.Kind,
			Direction:    direction,
			Name:         dev.Name,
			EngineID:     p.Engine.ID,
			Connected:    true,
			RegisteredAt: now,
		})
	}
	return out
}
