package state

import (
	"fmt"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// CreateLayer creates or replaces a layer and binds its layer_obj variable.
// Windows already projecting a layer of the same name keep it.
func (m *Manager) CreateLayer(l model.Layer) error {
	if l.Name == "" {
		return fmt.Errorf("%w: layer name is required", ErrInvalidArgument)
	}
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("%w: layer size must be positive, got %dx%d", ErrInvalidArgument, l.Width, l.Height)
	}
	if !model.ValidOpacity(l.DefaultOpacity) {
		return fmt.Errorf("%w: opacity must be between 0 and 1, got %g", ErrInvalidArgument, l.DefaultOpacity)
	}

	m.mu.Lock()
	if l.Source != nil {
		if err := m.checkSourceLocked(*l.Source); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	dt := dirty{variables: []string{l.Name}, layers: []string{l.Name}}
	m.replaceLocked(l.Name, model.VarLayer, &dt)
	m.layers[l.Name] = l.Clone()
	m.variables[l.Name] = referenceVariable(l.Name, model.VarLayer, l.CreatedAt)
	m.persist(dt)
	m.mu.Unlock()

	m.emit("layer.created", "layer created", map[string]interface{}{
		"name":   l.Name,
		"width":  l.Width,
		"height": l.Height,
	})
	return nil
}

func (m *Manager) GetLayer(name string) (model.Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layers[name]
	if !ok {
		return model.Layer{}, false
	}
	return l.Clone(), true
}

// RemoveLayer deletes a layer, its variable, and its entries in every
// window's stack.
func (m *Manager) RemoveLayer(name string) error {
	m.mu.Lock()
	if _, ok := m.layers[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: layer '%s'", ErrNotFound, name)
	}
	dt := dirty{variables: []string{name}}
	m.removeLayerLocked(name, &dt)
	delete(m.variables, name)
	m.persist(dt)
	m.mu.Unlock()

	m.emit("layer.removed", "layer removed", map[string]interface{}{"name": name})
	return nil
}

// SetLayerSource casts a video input onto a layer. A nil source uncasts.
func (m *Manager) SetLayerSource(name string, source *string) error {
	m.mu.Lock()
	l, ok := m.layers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: layer '%s'", ErrNotFound, name)
	}
	if source != nil {
		if err := m.checkSourceLocked(*source); err != nil {
			m.mu.Unlock()
			return err
		}
		s := *source
		l.Source = &s
	} else {
		l.Source = nil
	}
	m.layers[name] = l
	m.store.UpdateLayer(l)
	m.mu.Unlock()

	fields := map[string]interface{}{"name": name, "change": "source"}
	if source != nil {
		fields["source"] = *source
	}
	m.emit("layer.updated", "layer source changed", fields)
	return nil
}

// UpdateLayerDefaults applies the set fields of d to a layer.
func (m *Manager) UpdateLayerDefaults(name string, d model.LayerDefaults) error {
	if d.Opacity != nil && !model.ValidOpacity(*d.Opacity) {
		return fmt.Errorf("%w: opacity must be between 0 and 1, got %g", ErrInvalidArgument, *d.Opacity)
	}

	m.mu.Lock()
	l, ok := m.layers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: layer '%s'", ErrNotFound, name)
	}
	d.Apply(&l)
	m.layers[name] = l
	m.store.UpdateLayer(l)
	m.mu.Unlock()

	m.emit("layer.updated", "layer defaults changed", map[string]interface{}{
		"name":   name,
		"change": "defaults",
	})
	return nil
}

// Layers returns every layer sorted by name.
func (m *Manager) Layers() []model.Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Layer, 0, len(m.layers))
	for _, name := range sortedKeys(m.layers) {
		out = append(out, m.layers[name].Clone())
	}
	return out
}

// removeLayerLocked deletes the layer and drops it from every window stack.
// The layer_obj variable is left to the caller.
func (m *Manager) removeLayerLocked(name string, dt *dirty) {
	delete(m.layers, name)
	dt.layers = append(dt.layers, name)
	for wn, w := range m.windows {
		if w.RemoveLayer(name) {
			m.windows[wn] = w
			dt.windows = append(dt.windows, wn)
		}
	}
}

func (m *Manager) checkSourceLocked(source string) error {
	v, ok := m.variables[source]
	if !ok {
		return fmt.Errorf("%w: variable '%s'", ErrNotFound, source)
	}
	if v.Type != model.VarVideoIn {
		return fmt.Errorf("%w: '%s' is %s, only %s can be cast to a layer", ErrInvalidArgument, source, v.Type, model.VarVideoIn)
	}
	return nil
}
