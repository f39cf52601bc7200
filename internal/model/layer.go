package model

import "time"

// Vec2 is an (x, y) pair used for positions and scales.
type Vec2 [2]float64

// Layer is an intermediate rendering surface. Its defaults apply on every
// window that does not override them.
type Layer struct {
	Name            string    `json:"name"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	DefaultOpacity  float64   `json:"default_opacity"`
	DefaultPosition Vec2      `json:"default_position"`
	DefaultScale    Vec2      `json:"default_scale"`
	Source          *string   `json:"source,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewLayer(name string, width, height int) Layer {
	return Layer{
		Name:            name,
		Width:           width,
		Height:          height,
		DefaultOpacity:  1.0,
		DefaultPosition: Vec2{0, 0},
		DefaultScale:    Vec2{1, 1},
		CreatedAt:       time.Now().UTC(),
	}
}

// LayerDefaults is a partial update of a layer's defaults.
type LayerDefaults struct {
	Opacity  *float64
	Position *Vec2
	Scale    *Vec2
}

// Apply copies every set field onto l.
func (d LayerDefaults) Apply(l *Layer) {
	if d.Opacity != nil {
		l.DefaultOpacity = *d.Opacity
	}
	if d.Position != nil {
		l.DefaultPosition = *d.Position
	}
	if d.Scale != nil {
		l.DefaultScale = *d.Scale
	}
}

func (l Layer) Clone() Layer {
	out := l
	if l.Source != nil {
		s := *l.Source
		out.Source = &s
	}
	return out
}

// ValidOpacity reports whether o lies in [0, 1].
func ValidOpacity(o float64) bool {
	return o >= 0 && o <= 1
}
