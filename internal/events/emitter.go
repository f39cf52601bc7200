package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var buffer = NewRingBuffer(256)

var totalCount atomic.Int64

// Journal persists emitted events. The Postgres client implements it.
type Journal interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	journal            Journal
	journalSession     string
	journalMu          sync.RWMutex
	journalErrorLogged bool
)

// SetJournal installs the journal sink for the given session. A nil journal
// disables persistence.
func SetJournal(j Journal, sessionID string) {
	journalMu.Lock()
	journal = j
	journalSession = sessionID
	journalErrorLogged = false
	journalMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an event: ring buffer, live subscribers, debug log and the
// journal if one is set. It returns the event encoded as JSON.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	totalCount.Add(1)
	broadcast(e)

	log.WithLevel(LevelFor(level)).Str("event", name).Fields(fields).Msg(msg)

	journalMu.RLock()
	j := journal
	sessionID := journalSession
	errorLogged := journalErrorLogged
	journalMu.RUnlock()

	if j != nil {
		if err := j.Append(ts, level, name, msg, fields, sessionID); err != nil && !errorLogged {
			// Report the first failure only. The error event goes straight to
			// the buffer so a failing journal cannot recurse through Emit.
			journalMu.Lock()
			first := !journalErrorLogged
			journalErrorLogged = true
			journalMu.Unlock()
			if first {
				log.Error().Err(err).Msg("event journal append failed")
				buffer.Add(Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "journal append failed",
					Fields: map[string]interface{}{
						"error": err.Error(),
					},
				})
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return totalCount.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

// LevelFor maps an event level string to a zerolog level.
func LevelFor(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
