package state

import (
	"fmt"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// CreateWindow creates or replaces a window and binds its window_var
// variable. A replaced window starts with an empty layer stack.
func (m *Manager) CreateWindow(w model.Window) error {
	if w.Name == "" {
		return fmt.Errorf("%w: window name is required", ErrInvalidArgument)
	}
	if w.Width <= 0 || w.Height <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %dx%d", ErrInvalidArgument, w.Width, w.Height)
	}
	if w.Title == "" {
		w.Title = w.Name
	}

	m.mu.Lock()
	for _, wl := range w.LayerStack {
		if _, ok := m.layers[wl.LayerName]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: layer '%s'", ErrNotFound, wl.LayerName)
		}
	}
	dt := dirty{variables: []string{w.Name}, windows: []string{w.Name}}
	m.replaceLocked(w.Name, model.VarWindow, &dt)
	m.windows[w.Name] = w.Clone()
	m.variables[w.Name] = referenceVariable(w.Name, model.VarWindow, w.CreatedAt)
	m.persist(dt)
	m.mu.Unlock()

	m.emit("window.created", "window created", map[string]interface{}{
		"name":   w.Name,
		"title":  w.Title,
		"width":  w.Width,
		"height": w.Height,
	})
	return nil
}

func (m *Manager) GetWindow(name string) (model.Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[name]
	if !ok {
		return model.Window{}, false
	}
	return w.Clone(), true
}

// RemoveWindow deletes a window and its variable.
func (m *Manager) RemoveWindow(name string) error {
	m.mu.Lock()
	if _, ok := m.windows[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: window '%s'", ErrNotFound, name)
	}
	delete(m.windows, name)
	delete(m.variables, name)
	m.persist(dirty{variables: []string{name}, windows: []string{name}})
	m.mu.Unlock()

	m.emit("window.removed", "window removed", map[string]interface{}{"name": name})
	return nil
}

func (m *Manager) UpdateWindowTitle(name, title string) error {
	return m.updateWindow(name, "title", func(w *model.Window) error {
		w.Title = title
		return nil
	})
}

// WindowProjectLayer places a layer on a window at priority. Projecting a
// layer that is already on the stack moves it.
func (m *Manager) WindowProjectLayer(window, layer string, priority int) error {
	return m.updateWindow(window, "project", func(w *model.Window) error {
		if _, ok := m.layers[layer]; !ok {
			return fmt.Errorf("%w: layer '%s'", ErrNotFound, layer)
		}
		w.ProjectLayer(layer, priority)
		return nil
	})
}

func (m *Manager) WindowRemoveLayer(window, layer string) error {
	return m.updateWindow(window, "layerremove", func(w *model.Window) error {
		if !w.RemoveLayer(layer) {
			return notOnStack(window, layer)
		}
		return nil
	})
}

func (m *Manager) WindowSetLayerPriority(window, layer string, priority int) error {
	return m.updateWindow(window, "layerpriority", func(w *model.Window) error {
		if !w.SetLayerPriority(layer, priority) {
			return notOnStack(window, layer)
		}
		return nil
	})
}

func (m *Manager) WindowSetLayerOpacity(window, layer string, opacity float64) error {
	if !model.ValidOpacity(opacity) {
		return fmt.Errorf("%w: opacity must be between 0 and 1, got %g", ErrInvalidArgument, opacity)
	}
	return m.updateWindow(window, "layeropacity", func(w *model.Window) error {
		if !w.SetLayerOpacity(layer, opacity) {
			return notOnStack(window, layer)
		}
		return nil
	})
}

func (m *Manager) WindowSetLayerPosition(window, layer string, position model.Vec2) error {
	return m.updateWindow(window, "layerposition", func(w *model.Window) error {
		if !w.SetLayerPosition(layer, position) {
			return notOnStack(window, layer)
		}
		return nil
	})
}

func (m *Manager) WindowSetLayerScale(window, layer string, scale model.Vec2) error {
	return m.updateWindow(window, "layerscale", func(w *model.Window) error {
		if !w.SetLayerScale(layer, scale) {
			return notOnStack(window, layer)
		}
		return nil
	})
}

// Windows returns every window sorted by name.
func (m *Manager) Windows() []model.Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Window, 0, len(m.windows))
	for _, name := range sortedKeys(m.windows) {
		out = append(out, m.windows[name].Clone())
	}
	return out
}

// updateWindow applies fn to a copy of the window and commits it only if
// fn succeeds.
func (m *Manager) updateWindow(name, change string, fn func(w *model.Window) error) error {
	m.mu.Lock()
	w, ok := m.windows[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: window '%s'", ErrNotFound, name)
	}
	w = w.Clone()
	if err := fn(&w); err != nil {
		m.mu.Unlock()
		return err
	}
	m.windows[name] = w
	m.store.UpdateWindow(w)
	stack := w.LayerNames()
	m.mu.Unlock()

	m.emit("window.updated", "window updated", map[string]interface{}{
		"name":   name,
		"change": change,
		"layers": stack,
	})
	return nil
}

func notOnStack(window, layer string) error {
	return fmt.Errorf("%w: layer '%s' is not projected on window '%s'", ErrNotFound, layer, window)
}

// referenceVariable is the variable entry bound to a window or layer. It
// carries only the name; the data lives in the window or layer collection.
func referenceVariable(name string, typ model.VarType, createdAt time.Time) model.Variable {
	v := model.NewVariable(name, typ, model.StringValue(name))
	if !createdAt.IsZero() {
		v.CreatedAt = createdAt
	}
	return v
}
