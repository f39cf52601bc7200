// Package state owns the authoritative in-memory entity collections. Every
// mutation is written through to the dossier before the call returns.
package state

import (
	"errors"
	"sort"
	"sync"

	"github.com/AaronLay10/Haeccstable/internal/dossier"
	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrReservedType    = errors.New("reserved variable type")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Manager guards the collections and the dossier store with one lock, so
// the document on disk is only ever written by one mutation at a time.
type Manager struct {
	mu    sync.RWMutex
	store *dossier.Store

	variables map[string]model.Variable
	functions map[string]model.Function
	processes map[string]model.Process
	layers    map[string]model.Layer
	windows   map[string]model.Window
	devices   map[string]model.Device
}

// New builds a manager from the store's current document.
func New(store *dossier.Store) *Manager {
	m := &Manager{store: store}
	m.restore(store.Document())
	return m
}

// Store returns the backing dossier store.
func (m *Manager) Store() *dossier.Store {
	return m.store
}

func (m *Manager) emit(name, msg string, fields map[string]interface{}) {
	events.Emit("info", name, msg, fields)
}

// ResetAll empties the five entity collections and rewrites the dossier
// from a fresh template. Devices are kept.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	m.variables = make(map[string]model.Variable)
	m.functions = make(map[string]model.Function)
	m.processes = make(map[string]model.Process)
	m.layers = make(map[string]model.Layer)
	m.windows = make(map[string]model.Window)
	m.store.ClearAll()
	m.mu.Unlock()

	m.emit("state.reset", "all collections cleared", nil)
}

// RunningInstances returns the ids of every running process instance.
func (m *Manager) RunningInstances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, p := range m.processes {
		for _, inst := range p.Instances {
			if inst.Status == model.ProcessRunning {
				ids = append(ids, inst.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
