package mqtt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/model"
)

// DefaultHeartbeatSec is assumed when an engine does not announce one.
const DefaultHeartbeatSec = 5

// DeviceSink records devices. The state manager implements it.
type DeviceSink interface {
	RegisterDevice(d model.Device) error
	SetEngineConnected(engineID string, connected bool) int
	PruneEngineDevices(engineID string, keep []string) int
}

// EngineState tracks a registered engine's health.
type EngineState struct {
	EngineID     string
	LastSeen     time.Time
	HeartbeatSec int
	Devices      []string // device keys
	Connected    bool
}

// Monitor tracks engine registration and heartbeats.
type Monitor struct {
	mu        sync.RWMutex
	engines   map[string]*EngineState
	sink      DeviceSink
	tolerance float64 // multiple of heartbeat_sec before an engine is lost
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor writing devices to sink.
func NewMonitor(sink DeviceSink, tolerance float64) *Monitor {
	if tolerance < 1.0 {
		tolerance = 3.0
	}
	return &Monitor{
		engines:   make(map[string]*EngineState),
		sink:      sink,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// HandleRegistration validates payload and registers its devices.
func (m *Monitor) HandleRegistration(payload *RegistrationPayload) *ValidationResult {
	result := ValidateRegistration(payload)
	engineID := payload.Engine.ID

	if !result.Valid {
		events.Emit("error", "device.error", "registration validation failed", map[string]interface{}{
			"engine": engineID,
			"errors": result.Errors,
		})
		return result
	}
	for _, w := range result.Warnings {
		log.Warn().Str("engine", engineID).Msg(w)
	}

	now := m.now()
	var keys, announced []string
	for _, d := range payload.ModelDevices(now) {
		announced = append(announced, d.Key())
		if err := m.sink.RegisterDevice(d); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		keys = append(keys, d.Key())
	}
	if n := m.sink.PruneEngineDevices(engineID, announced); n > 0 {
		log.Info().Str("engine", engineID).Int("devices", n).Msg("withdrawn devices removed")
	}

	heartbeat := payload.Engine.HeartbeatSec
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatSec
	}

	m.mu.Lock()
	m.engines[engineID] = &EngineState{
		EngineID:     engineID,
		LastSeen:     now,
		HeartbeatSec: heartbeat,
		Devices:      keys,
		Connected:    true,
	}
	m.mu.Unlock()

	log.Info().Str("engine", engineID).Int("devices", len(keys)).Msg("engine registered")
	return result
}

// HandleHeartbeat refreshes an engine. A heartbeat from a lost engine
// reconnects its devices; one from an unknown engine is ignored.
func (m *Monitor) HandleHeartbeat(engineID string) bool {
	m.mu.Lock()
	state, ok := m.engines[engineID]
	if !ok {
		m.mu.Unlock()
		log.Debug().Str("engine", engineID).Msg("heartbeat from unregistered engine")
		return false
	}
	state.LastSeen = m.now()
	reconnect := !state.Connected
	state.Connected = true
	m.mu.Unlock()

	if reconnect {
		m.sink.SetEngineConnected(engineID, true)
		log.Info().Str("engine", engineID).Msg("engine reconnected")
	}
	return true
}

// Run checks engine health every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.wg.Add(1)
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckHealth()
		}
	}
}

// Wait blocks until Run has returned.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// CheckHealth marks engines that missed their heartbeat as disconnected
// and returns their ids.
func (m *Monitor) CheckHealth() []string {
	now := m.now()

	m.mu.Lock()
	var lost []string
	for id, state := range m.engines {
		if !state.Connected {
			continue
		}
		timeout := time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false
			lost = append(lost, id)
			log.Warn().
				Str("engine", id).
				Time("last_seen", state.LastSeen).
				Dur("timeout", timeout).
				Msg("engine heartbeat timeout")
		}
	}
	m.mu.Unlock()

	sort.Strings(lost)
	for _, id := range lost {
		m.sink.SetEngineConnected(id, false)
	}
	return lost
}

// GetEngineState returns a copy of an engine's state, or nil.
func (m *Monitor) GetEngineState(engineID string) *EngineState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.engines[engineID]; ok {
		cpy := *state
		cpy.Devices = append([]string{}, state.Devices...)
		return &cpy
	}
	return nil
}

// ConnectedEngines returns the sorted ids of connected engines.
func (m *Monitor) ConnectedEngines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.engines {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
