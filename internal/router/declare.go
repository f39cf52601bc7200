package router

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

type declareVariableData struct {
	VarType  string            `json:"var_type"`
	Name     string            `json:"name"`
	Value    json.RawMessage   `json:"value,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// sizeSpec is the object form of a window or layer value.
type sizeSpec struct {
	Title  *string `json:"title"`
	Width  *int    `json:"width"`
	Height *int    `json:"height"`
}

func (r *Router) handleDeclareVariable(data json.RawMessage) (Response, error) {
	var d declareVariableData
	if err := decode("declare_variable", data, &d); err != nil {
		return Response{}, err
	}
	if d.VarType == "" {
		return Response{}, missing("declare_variable", "var_type")
	}
	if d.Name == "" {
		return Response{}, missing("declare_variable", "name")
	}
	typ, err := model.ParseVarType(d.VarType)
	if err != nil {
		return Response{}, err
	}

	switch typ {
	case model.VarWindow:
		size, err := parseSize(d.Value)
		if err != nil {
			return Response{}, fmt.Errorf("window '%s': %w", d.Name, err)
		}
		w := model.NewWindow(d.Name, d.Name, defaultWidth, defaultHeight)
		if size.Title != nil {
			w.Title = *size.Title
		}
		if size.Width != nil {
			w.Width = *size.Width
		}
		if size.Height != nil {
			w.Height = *size.Height
		}
		if err := r.state.CreateWindow(w); err != nil {
			return Response{}, err
		}
		return Response{Message: fmt.Sprintf("Window '%s' created (%dx%d)", w.Name, w.Width, w.Height)}, nil

	case model.VarLayer:
		size, err := parseSize(d.Value)
		if err != nil {
			return Response{}, fmt.Errorf("layer '%s': %w", d.Name, err)
		}
		l := model.NewLayer(d.Name, defaultWidth, defaultHeight)
		if size.Width != nil {
			l.Width = *size.Width
		}
		if size.Height != nil {
			l.Height = *size.Height
		}
		if err := r.state.CreateLayer(l); err != nil {
			return Response{}, err
		}
		return Response{Message: fmt.Sprintf("Layer '%s' created (%dx%d)", l.Name, l.Width, l.Height)}, nil
	}

	value := model.NullValue()
	if len(d.Value) > 0 {
		if err := json.Unmarshal(d.Value, &value); err != nil {
			return Response{}, fmt.Errorf("%w: invalid value for '%s': %v", ErrBadRequest, d.Name, err)
		}
	}
	switch typ {
	case model.VarVideoIn, model.VarAudioIn:
		if id, ok := value.AsInt(); ok {
			value = model.DeviceValue(id)
		}
	case model.VarNumber:
		if !value.IsNull() && value.Kind != model.KindNumber {
			return Response{}, fmt.Errorf("%w: %s '%s' requires a number, got %s", ErrBadRequest, typ, d.Name, value.Kind)
		}
	}

	v := model.NewVariable(d.Name, typ, value)
	v.Metadata = d.Metadata
	if err := r.state.SetVariable(v); err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Variable '%s' declared as %s", d.Name, typ)}, nil
}

// parseSize accepts null, [w, h] or {"title", "width", "height"}.
func parseSize(raw json.RawMessage) (sizeSpec, error) {
	var size sizeSpec
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return size, nil
	}
	switch raw[0] {
	case '[':
		var dims []int
		if err := json.Unmarshal(raw, &dims); err != nil || len(dims) != 2 {
			return size, fmt.Errorf("%w: size must be [width, height]", ErrBadRequest)
		}
		size.Width, size.Height = &dims[0], &dims[1]
	case '{':
		if err := json.Unmarshal(raw, &size); err != nil {
			return size, fmt.Errorf("%w: invalid size object: %v", ErrBadRequest, err)
		}
	case '"':
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return size, fmt.Errorf("%w: invalid title: %v", ErrBadRequest, err)
		}
		size.Title = &title
	default:
		return size, fmt.Errorf("%w: expected size object or [width, height]", ErrBadRequest)
	}
	return size, nil
}
