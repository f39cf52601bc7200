package api

import (
	"sort"
	"sync"
)

// ComponentStatus is one entry of the /ready response.
type ComponentStatus struct {
	Ready    bool `json:"ready"`
	Optional bool `json:"optional"`
}

// Readiness tracks which runtime components are up. Optional components
// are reported but never hold readiness back.
type Readiness struct {
	mu         sync.RWMutex
	components map[string]ComponentStatus
}

func NewReadiness() *Readiness {
	return &Readiness{components: make(map[string]ComponentStatus)}
}

// Set records the status of a component.
func (r *Readiness) Set(name string, ready, optional bool) {
	r.mu.Lock()
	r.components[name] = ComponentStatus{Ready: ready, Optional: optional}
	r.mu.Unlock()
}

// Ready reports whether every required component is ready.
func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.components {
		if !c.Optional && !c.Ready {
			return false
		}
	}
	return true
}

// Is reports whether the named component is ready.
func (r *Readiness) Is(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.components[name].Ready
}

func (r *Readiness) Snapshot() map[string]ComponentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ComponentStatus, len(r.components))
	for k, v := range r.components {
		out[k] = v
	}
	return out
}

func (r *Readiness) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for k := range r.components {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
