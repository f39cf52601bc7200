package state

import (
	"fmt"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// SetVariable declares or replaces a variable. Window and layer variables
// are reserved for CreateWindow and CreateLayer.
func (m *Manager) SetVariable(v model.Variable) error {
	if v.Name == "" {
		return fmt.Errorf("%w: variable name is required", ErrInvalidArgument)
	}
	if _, err := model.ParseVarType(string(v.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if v.Type == model.VarWindow || v.Type == model.VarLayer {
		return fmt.Errorf("%w: %s variables are created with their %s", ErrReservedType, v.Type, entityNoun(v.Type))
	}

	m.mu.Lock()
	dt := dirty{variables: []string{v.Name}}
	m.replaceLocked(v.Name, v.Type, &dt)
	m.variables[v.Name] = v.Clone()
	if dt.compound() {
		m.persist(dt)
	} else {
		m.store.UpdateVariable(v)
	}
	m.mu.Unlock()

	m.emit("variable.declared", "variable declared", map[string]interface{}{
		"name": v.Name,
		"type": string(v.Type),
	})
	return nil
}

func (m *Manager) GetVariable(name string) (model.Variable, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variables[name]
	if !ok {
		return model.Variable{}, false
	}
	return v.Clone(), true
}

// RemoveVariable deletes a variable. Removing a window or layer variable
// removes the window or layer with it.
func (m *Manager) RemoveVariable(name string) error {
	m.mu.Lock()
	v, ok := m.variables[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: variable '%s'", ErrNotFound, name)
	}
	dt := dirty{variables: []string{name}}
	m.replaceLocked(name, "", &dt)
	delete(m.variables, name)
	m.persist(dt)
	m.mu.Unlock()

	switch v.Type {
	case model.VarWindow:
		m.emit("window.removed", "window removed", map[string]interface{}{"name": name})
	case model.VarLayer:
		m.emit("layer.removed", "layer removed", map[string]interface{}{"name": name})
	}
	m.emit("variable.removed", "variable removed", map[string]interface{}{
		"name": name,
		"type": string(v.Type),
	})
	return nil
}

// Variables returns every variable sorted by name.
func (m *Manager) Variables() []model.Variable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Variable, 0, len(m.variables))
	for _, name := range sortedKeys(m.variables) {
		out = append(out, m.variables[name].Clone())
	}
	return out
}

// replaceLocked undoes the side entities of the variable currently bound to
// name before it is rebound to newType ("" for removal). A window or layer
// of a different type is removed; a video input that stops being one is
// detached from the layers it was cast to.
func (m *Manager) replaceLocked(name string, newType model.VarType, dt *dirty) {
	prev, ok := m.variables[name]
	if !ok || prev.Type == newType {
		return
	}
	switch prev.Type {
	case model.VarWindow:
		delete(m.windows, name)
		dt.windows = append(dt.windows, name)
	case model.VarLayer:
		m.removeLayerLocked(name, dt)
	case model.VarVideoIn:
		m.detachSourceLocked(name, dt)
	}
}

// detachSourceLocked clears the source of every layer cast from name.
func (m *Manager) detachSourceLocked(name string, dt *dirty) {
	for ln, l := range m.layers {
		if l.Source != nil && *l.Source == name {
			l.Source = nil
			m.layers[ln] = l
			dt.layers = append(dt.layers, ln)
		}
	}
}

func entityNoun(t model.VarType) string {
	if t == model.VarWindow {
		return "window"
	}
	return "layer"
}
