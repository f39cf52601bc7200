package state

// CollectionSummary describes one collection in a state summary.
type CollectionSummary struct {
	Count int      `json:"count"`
	Names []string `json:"names,omitempty"`
}

// Summary is the response body of get_state.
type Summary struct {
	Variables CollectionSummary `json:"variables"`
	Functions CollectionSummary `json:"functions"`
	Processes CollectionSummary `json:"processes"`
	Layers    CollectionSummary `json:"layers"`
	Windows   CollectionSummary `json:"windows"`
	Devices   CollectionSummary `json:"devices"`
}

// StateSummary returns collection counts, and sorted names when verbose.
func (m *Manager) StateSummary(verbose bool) Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		Variables: CollectionSummary{Count: len(m.variables)},
		Functions: CollectionSummary{Count: len(m.functions)},
		Processes: CollectionSummary{Count: len(m.processes)},
		Layers:    CollectionSummary{Count: len(m.layers)},
		Windows:   CollectionSummary{Count: len(m.windows)},
		Devices:   CollectionSummary{Count: len(m.devices)},
	}
	if verbose {
		s.Variables.Names = sortedKeys(m.variables)
		s.Functions.Names = sortedKeys(m.functions)
		s.Processes.Names = sortedKeys(m.processes)
		s.Layers.Names = sortedKeys(m.layers)
		s.Windows.Names = sortedKeys(m.windows)
		s.Devices.Names = sortedKeys(m.devices)
	}
	return s
}

// Total returns the number of entities across the five reset collections.
func (s Summary) Total() int {
	return s.Variables.Count + s.Functions.Count + s.Processes.Count + s.Layers.Count + s.Windows.Count
}
