package state

import (
	"fmt"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

// DefineFunction stores or replaces a function.
func (m *Manager) DefineFunction(f model.Function) error {
	if f.Name == "" {
		return fmt.Errorf("%w: function name is required", ErrInvalidArgument)
	}
	if dup := duplicate(f.Parameters); dup != "" {
		return fmt.Errorf("%w: duplicate parameter '%s'", ErrInvalidArgument, dup)
	}

	m.mu.Lock()
	m.functions[f.Name] = f.Clone()
	m.store.UpdateFunction(f)
	m.mu.Unlock()

	m.emit("function.defined", "function defined", map[string]interface{}{
		"name":       f.Name,
		"parameters": len(f.Parameters),
	})
	return nil
}

func (m *Manager) GetFunction(name string) (model.Function, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.functions[name]
	if !ok {
		return model.Function{}, false
	}
	return f.Clone(), true
}

func (m *Manager) RemoveFunction(name string) error {
	m.mu.Lock()
	if _, ok := m.functions[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: function '%s'", ErrNotFound, name)
	}
	delete(m.functions, name)
	m.store.RemoveFunction(name)
	m.mu.Unlock()

	m.emit("function.removed", "function removed", map[string]interface{}{"name": name})
	return nil
}

// Functions returns every function sorted by name.
func (m *Manager) Functions() []model.Function {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Function, 0, len(m.functions))
	for _, name := range sortedKeys(m.functions) {
		out = append(out, m.functions[name].Clone())
	}
	return out
}

// duplicate returns the first repeated name, or "".
func duplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n
		}
		seen[n] = struct{}{}
	}
	return ""
}
