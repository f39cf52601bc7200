package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AaronLay10/Haeccstable/internal/model"
	"github.com/rs/zerolog/log"
)

// ExecuteRequest is what the engine needs to start one process instance.
type ExecuteRequest struct {
	InstanceID string                 `json:"instance_id"`
	Process    string                 `json:"process"`
	Parameters []string               `json:"parameters"`
	Body       *string                `json:"body,omitempty"`
	Arguments  map[string]model.Value `json:"arguments"`
}

// Engine executes processes outside this runtime. A nil error means the
// engine accepted the request.
type Engine interface {
	Execute(req ExecuteRequest) error
	Stop(instanceID string) error
}

// LocalEngine accepts builtin processes and nothing else. It is used when
// no external engine is connected.
type LocalEngine struct {
	mu      sync.Mutex
	running map[string]string
}

func NewLocalEngine() *LocalEngine {
	return &LocalEngine{running: make(map[string]string)}
}

func (e *LocalEngine) Execute(req ExecuteRequest) error {
	if !IsBuiltin(req.Process) {
		return fmt.Errorf("%w: no engine available for $%s", ErrUnknownProcess, req.Process)
	}
	e.mu.Lock()
	e.running[req.InstanceID] = req.Process
	e.mu.Unlock()
	return nil
}

func (e *LocalEngine) Stop(instanceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[instanceID]; !ok {
		return fmt.Errorf("instance %s is not running", instanceID)
	}
	delete(e.running, instanceID)
	return nil
}

// Running returns the number of instances the local engine holds.
func (e *LocalEngine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// Stats counts execution attempts and their outcomes.
type Stats struct {
	Executed int64 `json:"executed"`
	Failed   int64 `json:"failed"`
	Stopped  int64 `json:"stopped"`
}

// Registry forwards execute and stop requests to an Engine and records
// the outcome.
type Registry struct {
	mu     sync.RWMutex
	engine Engine

	executed atomic.Int64
	failed   atomic.Int64
	stopped  atomic.Int64
}

// New returns a registry backed by engine, or by a LocalEngine if nil.
func New(engine Engine) *Registry {
	if engine == nil {
		engine = NewLocalEngine()
	}
	return &Registry{engine: engine}
}

// SetEngine swaps the engine, e.g. once the engine bridge connects.
func (r *Registry) SetEngine(engine Engine) {
	if engine == nil {
		engine = NewLocalEngine()
	}
	r.mu.Lock()
	r.engine = engine
	r.mu.Unlock()
}

// ExecuteProcess asks the engine to start an instance and reports whether
// it was accepted.
func (r *Registry) ExecuteProcess(req ExecuteRequest) bool {
	r.mu.RLock()
	engine := r.engine
	r.mu.RUnlock()

	if err := engine.Execute(req); err != nil {
		r.failed.Add(1)
		log.Warn().Err(err).
			Str("process", req.Process).
			Str("instance", req.InstanceID).
			Msg("process execution rejected")
		return false
	}
	r.executed.Add(1)
	log.Info().
		Str("process", req.Process).
		Str("instance", req.InstanceID).
		Msg("process execution accepted")
	return true
}

// StopProcess asks the engine to stop an instance. Failures are logged.
func (r *Registry) StopProcess(instanceID string) {
	r.mu.RLock()
	engine := r.engine
	r.mu.RUnlock()

	if err := engine.Stop(instanceID); err != nil {
		log.Warn().Err(err).Str("instance", instanceID).Msg("process stop failed")
		return
	}
	r.stopped.Add(1)
}

func (r *Registry) Stats() Stats {
	return Stats{
		Executed: r.executed.Load(),
		Failed:   r.failed.Load(),
		Stopped:  r.stopped.Load(),
	}
}
