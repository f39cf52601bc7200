package state

import (
	"fmt"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// RegisterDevice records a device announced by an engine.
func (m *Manager) RegisterDevice(d model.Device) error {
	if d.Kind == "" {
		return fmt.Errorf("%w: device kind is required", ErrInvalidArgument)
	}
	key := d.Key()

	m.mu.Lock()
	m.devices[key] = d
	m.store.UpdateDevice(d)
	m.mu.Unlock()

	m.emit("device.connected", "device registered", map[string]interface{}{
		"device": key,
		"engine": d.EngineID,
		"name":   d.Name,
	})
	return nil
}

// SetEngineConnected marks every device of an engine connected or not and
// returns how many devices changed.
func (m *Manager) SetEngineConnected(engineID string, connected bool) int {
	m.mu.Lock()
	var dt dirty
	for key, d := range m.devices {
		if d.EngineID != engineID || d.Connected == connected {
			continue
		}
		d.Connected = connected
		m.devices[key] = d
		dt.devices = append(dt.devices, key)
	}
	if len(dt.devices) > 0 {
		m.persist(dt)
	}
	m.mu.Unlock()

	if len(dt.devices) == 0 {
		return 0
	}
	name := "device.disconnected"
	if connected {
		name = "device.connected"
	}
	m.emit(name, "engine devices changed", map[string]interface{}{
		"engine":  engineID,
		"devices": dt.devices,
	})
	return len(dt.devices)
}

// PruneEngineDevices removes the devices of an engine whose keys are not
// in keep and returns how many were removed.
func (m *Manager) PruneEngineDevices(engineID string, keep []string) int {
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}

	m.mu.Lock()
	var removed []string
	for _, key := range sortedKeys(m.devices) {
		if m.devices[key].EngineID != engineID || kept[key] {
			continue
		}
		delete(m.devices, key)
		m.store.RemoveDevice(key)
		removed = append(removed, key)
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.emit("device.disconnected", "engine devices withdrawn", map[string]interface{}{
			"engine":  engineID,
			"devices": removed,
		})
	}
	return len(removed)
}

// Devices returns every device sorted by key.
func (m *Manager) Devices() []model.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, key := range sortedKeys(m.devices) {
		out = append(out, m.devices[key])
	}
	return out
}
