package state

import (
	"fmt"
	"strings"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// DefineProcess stores or replaces a process. The name is held without
// its sigil. Replacing a process stops its running instances, keeps them
// as history on the new definition, and returns their ids so the caller
// can stop them in the engine.
func (m *Manager) DefineProcess(p model.Process) ([]string, error) {
	p.Name = stripSigil(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: process name is required", ErrInvalidArgument)
	}
	if dup := duplicate(p.Parameters); dup != "" {
		return nil, fmt.Errorf("%w: duplicate parameter '%s'", ErrInvalidArgument, dup)
	}
	if !p.Status.Valid() {
		p.Status = model.ProcessDefined
	}

	var stopped []string
	m.mu.Lock()
	if prev, ok := m.processes[p.Name]; ok {
		for _, inst := range prev.Instances {
			inst = inst.Clone()
			if inst.Status == model.ProcessRunning {
				inst.Status = model.ProcessStopped
				stopped = append(stopped, inst.ID)
			}
			p.Instances = append(p.Instances, inst)
		}
	}
	m.processes[p.Name] = p.Clone()
	m.store.UpdateProcess(p)
	m.mu.Unlock()

	for _, id := range stopped {
		m.emit("process.stopped", "process instance stopped", map[string]interface{}{
			"name":     p.DisplayName(),
			"instance": id,
		})
	}
	m.emit("process.defined", "process defined", map[string]interface{}{
		"name":    p.DisplayName(),
		"builtin": p.IsBuiltin(),
	})
	return stopped, nil
}

// EnsureBuiltin returns the named process, defining it with params first
// when it does not exist yet. An existing definition is never replaced.
func (m *Manager) EnsureBuiltin(name string, params []string) (model.Process, error) {
	name = stripSigil(name)
	if name == "" {
		return model.Process{}, fmt.Errorf("%w: process name is required", ErrInvalidArgument)
	}

	m.mu.Lock()
	if p, ok := m.processes[name]; ok {
		m.mu.Unlock()
		return p.Clone(), nil
	}
	p := model.NewProcess(name, params, nil)
	m.processes[name] = p.Clone()
	m.store.UpdateProcess(p)
	m.mu.Unlock()

	m.emit("process.defined", "process defined", map[string]interface{}{
		"name":    p.DisplayName(),
		"builtin": p.IsBuiltin(),
	})
	return p, nil
}

// GetProcess looks a process up by name, with or without its sigil.
func (m *Manager) GetProcess(name string) (model.Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processes[stripSigil(name)]
	if !ok {
		return model.Process{}, false
	}
	return p.Clone(), true
}

func (m *Manager) RemoveProcess(name string) error {
	name = stripSigil(name)
	m.mu.Lock()
	if _, ok := m.processes[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: process '$%s'", ErrNotFound, name)
	}
	delete(m.processes, name)
	m.store.RemoveProcess(name)
	m.mu.Unlock()

	m.emit("process.removed", "process removed", map[string]interface{}{"name": model.Sigil + name})
	return nil
}

// UpdateProcessStatus sets the status of a process definition.
func (m *Manager) UpdateProcessStatus(name string, status model.ProcessStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown process status '%s'", ErrInvalidArgument, status)
	}
	name = stripSigil(name)

	m.mu.Lock()
	p, ok := m.processes[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: process '$%s'", ErrNotFound, name)
	}
	p.Status = status
	m.processes[name] = p
	m.store.UpdateProcess(p)
	m.mu.Unlock()
	return nil
}

// StartProcessInstance records an instance. A running instance marks the
// process running; a failed one marks it errored unless others still run.
func (m *Manager) StartProcessInstance(name string, inst model.ProcessInstance) error {
	name = stripSigil(name)
	if inst.ID == "" {
		return fmt.Errorf("%w: instance id is required", ErrInvalidArgument)
	}

	m.mu.Lock()
	p, ok := m.processes[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: process '$%s'", ErrNotFound, name)
	}
	p.Instances = append(p.Instances, inst.Clone())
	switch {
	case inst.Status == model.ProcessRunning:
		p.Status = model.ProcessRunning
	case p.RunningCount() == 0:
		p.Status = model.ProcessError
	}
	m.processes[name] = p
	m.store.UpdateProcess(p)
	m.mu.Unlock()

	fields := map[string]interface{}{
		"name":     model.Sigil + name,
		"instance": inst.ID,
	}
	if inst.Status == model.ProcessRunning {
		m.emit("process.started", "process instance started", fields)
	} else {
		m.emit("process.failed", "process instance rejected by engine", fields)
	}
	return nil
}

// StopProcessInstances stops one running instance, or every running
// instance when instanceID is empty, and returns the ids it stopped.
func (m *Manager) StopProcessInstances(name, instanceID string) ([]string, error) {
	name = stripSigil(name)

	m.mu.Lock()
	p, ok := m.processes[name]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: process '$%s'", ErrNotFound, name)
	}
	if instanceID != "" && p.Instance(instanceID) < 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: instance '%s' of process '$%s'", ErrNotFound, instanceID, name)
	}

	var stopped []string
	for i := range p.Instances {
		inst := &p.Instances[i]
		if inst.Status != model.ProcessRunning {
			continue
		}
		if instanceID != "" && inst.ID != instanceID {
			continue
		}
		inst.Status = model.ProcessStopped
		stopped = append(stopped, inst.ID)
	}
	if len(stopped) > 0 && p.RunningCount() == 0 {
		p.Status = model.ProcessStopped
	}
	m.processes[name] = p
	if len(stopped) > 0 {
		m.store.UpdateProcess(p)
	}
	m.mu.Unlock()

	for _, id := range stopped {
		m.emit("process.stopped", "process instance stopped", map[string]interface{}{
			"name":     model.Sigil + name,
			"instance": id,
		})
	}
	return stopped, nil
}

// Processes returns every process sorted by name.
func (m *Manager) Processes() []model.Process {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Process, 0, len(m.processes))
	for _, name := range sortedKeys(m.processes) {
		out = append(out, m.processes[name].Clone())
	}
	return out
}

func stripSigil(name string) string {
	return strings.TrimPrefix(name, model.Sigil)
}
