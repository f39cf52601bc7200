package state

import (
	"github.com/AaronLay10/Haeccstable/internal/dossier"
	"github.com/AaronLay10/Haeccstable/internal/model"
)

// dirty names the entries a compound mutation touched.
type dirty struct {
	variables []string
	processes []string
	layers    []string
	windows   []string
	devices   []string
}

// compound reports whether more than the named variable was touched.
func (dt dirty) compound() bool {
	return len(dt.variables) > 1 || len(dt.processes)+len(dt.layers)+len(dt.windows)+len(dt.devices) > 0
}

// persist copies the touched entries into the dossier in one rewrite.
// Entries missing from memory are deleted. Callers hold m.mu.
func (m *Manager) persist(dt dirty) {
	m.store.Apply(func(d *dossier.Document) {
		syncCollection(d.Variables, m.variables, dt.variables, model.Variable.Clone)
		syncCollection(d.Processes, m.processes, dt.processes, model.Process.Clone)
		syncCollection(d.Layers, m.layers, dt.layers, model.Layer.Clone)
		syncCollection(d.Windows, m.windows, dt.windows, model.Window.Clone)
		syncCollection(d.Devices, m.devices, dt.devices, func(dev model.Device) model.Device { return dev })
	})
}

func syncCollection[V any](dst, src map[string]V, keys []string, clone func(V) V) {
	for _, k := range keys {
		if v, ok := src[k]; ok {
			dst[k] = clone(v)
		} else {
			delete(dst, k)
		}
	}
}
