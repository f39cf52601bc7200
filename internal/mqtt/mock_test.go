package mqtt

import (
	"errors"
	"sync"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// mockTransport records publishes and lets tests deliver messages.
type mockTransport struct {
	mu            sync.Mutex
	subscriptions map[string]Handler
	published     map[string][][]byte
	connected     bool
	subscribeErr  error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		subscriptions: make(map[string]Handler),
		published:     make(map[string][][]byte),
		connected:     true,
	}
}

func (m *mockTransport) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.published[topic] = append(m.published[topic], payload)
	return nil
}

func (m *mockTransport) Subscribe(topic string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockTransport) deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
	return ok
}

func (m *mockTransport) messages(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.published[topic]...)
}

// mockSink stands in for the state manager.
type mockSink struct {
	mu        sync.Mutex
	devices   map[string]model.Device
	rejectAll bool
}

func newMockSink() *mockSink {
	return &mockSink{devices: make(map[string]model.Device)}
}

func (s *mockSink) RegisterDevice(d model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectAll {
		return errors.New("rejected")
	}
	s.devices[d.Key()] = d
	return nil
}

func (s *mockSink) SetEngineConnected(engineID string, connected bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, d := range s.devices {
		if d.EngineID == engineID && d.Connected != connected {
			d.Connected = connected
			s.devices[k] = d
			n++
		}
	}
	return n
}

func (s *mockSink) PruneEngineDevices(engineID string, keep []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	n := 0
	for k, d := range s.devices {
		if d.EngineID == engineID && !kept[k] {
			delete(s.devices, k)
			n++
		}
	}
	return n
}

func (s *mockSink) device(key string) (model.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[key]
	return d, ok
}
