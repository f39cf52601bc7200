package model

import (
	"sort"
	"time"
)

// WindowLayer places a layer on a window. Nil overrides fall back to the
// layer's defaults at render time.
type WindowLayer struct {
	LayerName string   `json:"layer"`
	Priority  int      `json:"priority"`
	Opacity   *float64 `json:"opacity,omitempty"`
	Position  *Vec2    `json:"position,omitempty"`
	Scale     *Vec2    `json:"scale,omitempty"`
}

// Window is an output surface with a priority-ordered layer stack.
// LayerStack is kept sorted ascending by priority; the last entry renders on top.
type Window struct {
	Name       string        `json:"name"`
	Title      string        `json:"title"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	LayerStack []WindowLayer `json:"layers,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

func NewWindow(name, title string, width, height int) Window {
	return Window{
		Name:      name,
		Title:     title,
		Width:     width,
		Height:    height,
		CreatedAt: time.Now().UTC(),
	}
}

// LayerIndex returns the stack index of the named layer, or -1.
func (w *Window) LayerIndex(layerName string) int {
	for i := range w.LayerStack {
		if w.LayerStack[i].LayerName == layerName {
			return i
		}
	}
	return -1
}

// ProjectLayer adds a layer at the given priority. A layer already on the
// stack keeps its overrides and moves to the new priority.
func (w *Window) ProjectLayer(layerName string, priority int) {
	if i := w.LayerIndex(layerName); i >= 0 {
		w.LayerStack[i].Priority = priority
	} else {
		w.LayerStack = append(w.LayerStack, WindowLayer{LayerName: layerName, Priority: priority})
	}
	w.sortLayerStack()
}

// RemoveLayer drops the named layer. It reports whether the layer was present.
func (w *Window) RemoveLayer(layerName string) bool {
	i := w.LayerIndex(layerName)
	if i < 0 {
		return false
	}
	w.LayerStack = append(w.LayerStack[:i], w.LayerStack[i+1:]...)
	return true
}

func (w *Window) SetLayerPriority(layerName string, priority int) bool {
	i := w.LayerIndex(layerName)
	if i < 0 {
		return false
	}
	w.LayerStack[i].Priority = priority
	w.sortLayerStack()
	return true
}

func (w *Window) SetLayerOpacity(layerName string, opacity float64) bool {
	i := w.LayerIndex(layerName)
	if i < 0 {
		return false
	}
	w.LayerStack[i].Opacity = &opacity
	return true
}

func (w *Window) SetLayerPosition(layerName string, position Vec2) bool {
	i := w.LayerIndex(layerName)
	if i < 0 {
		return false
	}
	w.LayerStack[i].Position = &position
	return true
}

func (w *Window) SetLayerScale(layerName string, scale Vec2) bool {
	i := w.LayerIndex(layerName)
	if i < 0 {
		return false
	}
	w.LayerStack[i].Scale = &scale
	return true
}

// LayerNames returns the stack in render order, bottom first.
func (w *Window) LayerNames() []string {
	names := make([]string, len(w.LayerStack))
	for i, wl := range w.LayerStack {
		names[i] = wl.LayerName
	}
	return names
}

// Normalize re-sorts a stack that was not built through ProjectLayer.
func (w *Window) Normalize() {
	w.sortLayerStack()
}

// sortLayerStack orders by ascending priority; ties keep insertion order.
func (w *Window) sortLayerStack() {
	sort.SliceStable(w.LayerStack, func(i, j int) bool {
		return w.LayerStack[i].Priority < w.LayerStack[j].Priority
	})
}

func (w Window) Clone() Window {
	out := w
	if w.LayerStack != nil {
		out.LayerStack = make([]WindowLayer, len(w.LayerStack))
		for i, wl := range w.LayerStack {
			out.LayerStack[i] = wl.clone()
		}
	}
	return out
}

func (wl WindowLayer) clone() WindowLayer {
	out := wl
	if wl.Opacity != nil {
		o := *wl.Opacity
		out.Opacity = &o
	}
	if wl.Position != nil {
		p := *wl.Position
		out.Position = &p
	}
	if wl.Scale != nil {
		s := *wl.Scale
		out.Scale = &s
	}
	return out
}
