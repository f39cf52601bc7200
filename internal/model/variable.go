package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// VarType is the declared type of a variable, using the DSL keyword.
type VarType string

const (
	VarVideoIn  VarType = "video_invar"
	VarVideoOut VarType = "video_outvar"
	VarAudioIn  VarType = "audio_invar"
	VarAudioOut VarType = "audio_outvar"
	VarWindow   VarType = "window_var"
	VarLayer    VarType = "layer_obj"
	VarNumber   VarType = "number_var"
	VarGeneric  VarType = "var"
)

var varTypes = map[VarType]struct{}{
	VarVideoIn:  {},
	VarVideoOut: {},
	VarAudioIn:  {},
	VarAudioOut: {},
	VarWindow:   {},
	VarLayer:    {},
	VarNumber:   {},
	VarGeneric:  {},
}

// ParseVarType validates a DSL type keyword.
func ParseVarType(s string) (VarType, error) {
	t := VarType(s)
	if _, ok := varTypes[t]; !ok {
		return "", fmt.Errorf("unknown variable type: %s", s)
	}
	return t, nil
}

// Variable is one named entry in the shared variable namespace.
// Window and layer variables carry only a reference; their data lives
// in the window and layer collections.
type Variable struct {
	Name      string
	Type      VarType
	Value     Value
	CreatedAt time.Time
	Metadata  map[string]string
}

// NewVariable creates a variable stamped with the current time.
func NewVariable(name string, typ VarType, value Value) Variable {
	return Variable{
		Name:      name,
		Type:      typ,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
}

// variableRecord is the dossier form. The name is the collection key.
type variableRecord struct {
	Type      VarType           `json:"type"`
	Value     json.RawMessage   `json:"value,omitempty"`
	DeviceID  *int              `json:"device_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (v Variable) MarshalJSON() ([]byte, error) {
	rec := variableRecord{
		Type:      v.Type,
		CreatedAt: v.CreatedAt,
		Metadata:  v.Metadata,
	}
	if v.Value.Kind == KindDevice {
		id := v.Value.Device
		rec.DeviceID = &id
	} else {
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		rec.Value = raw
	}
	return json.Marshal(rec)
}

func (v *Variable) UnmarshalJSON(data []byte) error {
	var rec variableRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if _, ok := varTypes[rec.Type]; !ok {
		return fmt.Errorf("unknown variable type: %s", rec.Type)
	}
	v.Type = rec.Type
	v.CreatedAt = rec.CreatedAt
	v.Metadata = rec.Metadata
	switch {
	case rec.DeviceID != nil:
		v.Value = DeviceValue(*rec.DeviceID)
	case len(rec.Value) == 0:
		v.Value = NullValue()
	default:
		if err := json.Unmarshal(rec.Value, &v.Value); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy that shares no mutable state with v.
func (v Variable) Clone() Variable {
	out := v
	out.Value = v.Value.Clone()
	if v.Metadata != nil {
		out.Metadata = make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			out.Metadata[k] = val
		}
	}
	return out
}
