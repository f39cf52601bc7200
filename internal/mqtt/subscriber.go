package mqtt

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/AaronLay10/Haeccstable/internal/events"
)

// EngineSubscriber routes engine registration and heartbeat messages to a
// Monitor. Subscribing is idempotent across reconnects.
type EngineSubscriber struct {
	mu         sync.RWMutex
	transport  Transport
	bridge     *Bridge
	monitor    *Monitor
	subscribed map[string]bool
}

func NewEngineSubscriber(t Transport, bridge *Bridge, monitor *Monitor) *EngineSubscriber {
	return &EngineSubscriber{
		transport:  t,
		bridge:     bridge,
		monitor:    monitor,
		subscribed: make(map[string]bool),
	}
}

// SubscribeAll subscribes to the registration and heartbeat topics. A
// failure is reported as device.error and the remaining topics are tried.
func (s *EngineSubscriber) SubscribeAll() error {
	var firstErr error
	topics := map[string]Handler{
		s.bridge.Topic(TopicRegister):  s.handleRegistration,
		s.bridge.Topic(TopicHeartbeat): s.handleHeartbeat,
	}
	for topic, handler := range topics {
		if err := s.subscribe(topic, handler); err != nil {
			events.Emit("error", "device.error", "failed to subscribe to engine topic", map[string]interface{}{
				"topic": topic,
				"error": err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *EngineSubscriber) subscribe(topic string, handler Handler) error {
	s.mu.RLock()
	done := s.subscribed[topic]
	s.mu.RUnlock()
	if done {
		return nil
	}

	if err := s.transport.Subscribe(topic, handler); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed[topic] = true
	s.mu.Unlock()
	log.Info().Str("topic", topic).Msg("mqtt subscribed")
	return nil
}

func (s *EngineSubscriber) handleRegistration(topic string, payload []byte) {
	reg, err := ParseRegistration(payload)
	if err != nil {
		events.Emit("error", "device.error", "invalid engine registration", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
		return
	}
	s.monitor.HandleRegistration(reg)
}

func (s *EngineSubscriber) handleHeartbeat(topic string, payload []byte) {
	hb, err := ParseHeartbeat(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("dropping heartbeat")
		return
	}
	s.monitor.HandleHeartbeat(hb.EngineID)
}

func (s *EngineSubscriber) IsSubscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed[topic]
}

// SubscribedTopics returns the sorted subscribed topics.
func (s *EngineSubscriber) SubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subscribed))
	for topic := range s.subscribed {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// ClearSubscriptions forgets subscriptions so the next SubscribeAll
// re-subscribes. Call it when the connection drops.
func (s *EngineSubscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}
