package state

import (
	"github.com/AaronLay10/Haeccstable/internal/dossier"
	"github.com/AaronLay10/Haeccstable/internal/model"
	"github.com/rs/zerolog/log"
)

// RestoreReport summarizes what was rebuilt from a dossier.
type RestoreReport struct {
	Variables int
	Functions int
	Processes int
	Layers    int
	Windows   int
	Devices   int
	Repaired  int
}

// restore rebuilds the collections from doc and repairs references that
// do not hold: window/layer variables without their entity and the
// reverse, stack entries naming missing layers, sources that are not video
// inputs, and instances left running by a previous session.
func (m *Manager) restore(doc dossier.Document) RestoreReport {
	m.variables = doc.Variables
	m.functions = doc.Functions
	m.processes = doc.Processes
	m.layers = doc.Layers
	m.windows = doc.Windows
	m.devices = doc.Devices

	var dt dirty
	for name, v := range m.variables {
		switch v.Type {
		case model.VarWindow:
			if _, ok := m.windows[name]; !ok {
				delete(m.variables, name)
				dt.variables = append(dt.variables, name)
			}
		case model.VarLayer:
			if _, ok := m.layers[name]; !ok {
				delete(m.variables, name)
				dt.variables = append(dt.variables, name)
			}
		}
	}
	// a name bound to both a window and a layer keeps the one its variable
	// points at, or the window if neither
	for name := range m.layers {
		if _, ok := m.windows[name]; !ok {
			continue
		}
		if v, ok := m.variables[name]; ok && v.Type == model.VarLayer {
			delete(m.windows, name)
			dt.windows = append(dt.windows, name)
		} else {
			delete(m.layers, name)
			dt.layers = append(dt.layers, name)
		}
	}
	for name, w := range m.windows {
		if v, ok := m.variables[name]; !ok || v.Type != model.VarWindow {
			m.variables[name] = referenceVariable(name, model.VarWindow, w.CreatedAt)
			dt.variables = append(dt.variables, name)
		}
		var kept []model.WindowLayer
		for _, wl := range w.LayerStack {
			if _, ok := m.layers[wl.LayerName]; ok {
				kept = append(kept, wl)
			}
		}
		before := w.LayerNames()
		w.LayerStack = kept
		w.Normalize()
		if !sameOrder(before, w.LayerNames()) {
			m.windows[name] = w
			dt.windows = append(dt.windows, name)
		}
	}
	for name, l := range m.layers {
		if v, ok := m.variables[name]; !ok || v.Type != model.VarLayer {
			m.variables[name] = referenceVariable(name, model.VarLayer, l.CreatedAt)
			dt.variables = append(dt.variables, name)
		}
		if l.Source != nil {
			if v, ok := m.variables[*l.Source]; !ok || v.Type != model.VarVideoIn {
				l.Source = nil
				m.layers[name] = l
				dt.layers = append(dt.layers, name)
			}
		}
	}
	for name, p := range m.processes {
		changed := false
		for i := range p.Instances {
			if p.Instances[i].Status == model.ProcessRunning {
				p.Instances[i].Status = model.ProcessStopped
				changed = true
			}
		}
		if p.Status == model.ProcessRunning {
			p.Status = model.ProcessStopped
			changed = true
		}
		if changed {
			m.processes[name] = p
			dt.processes = append(dt.processes, name)
		}
	}
	for key, d := range m.devices {
		if d.Connected {
			d.Connected = false
			m.devices[key] = d
			dt.devices = append(dt.devices, key)
		}
	}

	report := RestoreReport{
		Variables: len(m.variables),
		Functions: len(m.functions),
		Processes: len(m.processes),
		Layers:    len(m.layers),
		Windows:   len(m.windows),
		Devices:   len(m.devices),
		Repaired:  len(dt.variables) + len(dt.processes) + len(dt.layers) + len(dt.windows) + len(dt.devices),
	}
	if report.Repaired > 0 {
		log.Warn().Int("repaired", report.Repaired).Str("path", m.store.Path()).Msg("dossier references repaired on restore")
		m.persist(dt)
	}

	log.Info().
		Int("variables", report.Variables).
		Int("functions", report.Functions).
		Int("processes", report.Processes).
		Int("layers", report.Layers).
		Int("windows", report.Windows).
		Msg("state restored from dossier")
	m.emit("state.restored", "state restored from dossier", map[string]interface{}{
		"variables": report.Variables,
		"functions": report.Functions,
		"processes": report.Processes,
		"layers":    report.Layers,
		"windows":   report.Windows,
		"devices":   report.Devices,
		"repaired":  report.Repaired,
	})
	return report
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
