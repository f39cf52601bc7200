package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

type methodCallData struct {
	Object    string        `json:"object"`
	Method    string        `json:"method"`
	Arguments []model.Value `json:"arguments"`
}

type propertyAssignmentData struct {
	Object   string      `json:"object"`
	Property string      `json:"property"`
	Value    model.Value `json:"value"`
}

func (r *Router) handleMethodCall(data json.RawMessage) (Response, error) {
	var d methodCallData
	if err := decode("method_call", data, &d); err != nil {
		return Response{}, err
	}
	if d.Object == "" {
		return Response{}, missing("method_call", "object")
	}
	if d.Method == "" {
		return Response{}, missing("method_call", "method")
	}
	v, ok := r.state.GetVariable(d.Object)
	if !ok {
		return Response{}, fmt.Errorf("Unknown variable '%s'", d.Object)
	}

	method := strings.ToLower(d.Method)
	var err error
	switch v.Type {
	case model.VarWindow:
		err = r.windowMethod(d.Object, method, d.Arguments)
	case model.VarLayer:
		err = r.layerMethod(d.Object, method, d.Arguments)
	default:
		err = fmt.Errorf("%w: type '%s' has no methods ('%s.%s')", ErrBadRequest, v.Type, d.Object, d.Method)
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Method '%s.%s' applied", d.Object, method)}, nil
}

func (r *Router) handlePropertyAssignment(data json.RawMessage) (Response, error) {
	var d propertyAssignmentData
	if err := decode("property_assignment", data, &d); err != nil {
		return Response{}, err
	}
	if d.Object == "" {
		return Response{}, missing("property_assignment", "object")
	}
	if d.Property == "" {
		return Response{}, missing("property_assignment", "property")
	}
	v, ok := r.state.GetVariable(d.Object)
	if !ok {
		return Response{}, fmt.Errorf("Unknown variable '%s'", d.Object)
	}

	property := strings.ToLower(d.Property)
	var err error
	switch v.Type {
	case model.VarWindow:
		err = r.windowProperty(d.Object, property, d.Value)
	case model.VarLayer:
		err = r.layerProperty(d.Object, property, d.Value)
	default:
		err = fmt.Errorf("%w: type '%s' has no properties ('%s.%s')", ErrBadRequest, v.Type, d.Object, d.Property)
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Property '%s.%s' set to %s", d.Object, property, d.Value)}, nil
}

func (r *Router) windowMethod(window, method string, args []model.Value) error {
	switch method {
	case "project":
		layer, priority, err := layerAndPriority(method, args)
		if err != nil {
			return err
		}
		return r.state.WindowProjectLayer(window, layer, priority)

	case "layerpriority":
		layer, priority, err := layerAndPriority(method, args)
		if err != nil {
			return err
		}
		return r.state.WindowSetLayerPriority(window, layer, priority)

	case "layeropacity":
		if err := arity(method, args, 2, "layer, opacity"); err != nil {
			return err
		}
		layer, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		opacity, err := numberArg(method, args, 1)
		if err != nil {
			return err
		}
		return r.state.WindowSetLayerOpacity(window, layer, opacity)

	case "layerposition", "layerscale":
		if len(args) < 2 {
			return arity(method, args, 2, "layer, [x, y]")
		}
		layer, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		vec, err := vec2Args(method, args[1:])
		if err != nil {
			return err
		}
		if method == "layerposition" {
			return r.state.WindowSetLayerPosition(window, layer, vec)
		}
		return r.state.WindowSetLayerScale(window, layer, vec)

	case "layerremove":
		if err := arity(method, args, 1, "layer"); err != nil {
			return err
		}
		layer, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		return r.state.WindowRemoveLayer(window, layer)
	}
	return unsupported("method", method, model.VarWindow)
}

func (r *Router) layerMethod(layer, method string, args []model.Value) error {
	switch method {
	case "cast":
		if err := arity(method, args, 1, "source"); err != nil {
			return err
		}
		source, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		return r.state.SetLayerSource(layer, &source)

	case "uncast":
		if err := arity(method, args, 0, ""); err != nil {
			return err
		}
		return r.state.SetLayerSource(layer, nil)

	case "opacity":
		if err := arity(method, args, 1, "opacity"); err != nil {
			return err
		}
		opacity, err := numberArg(method, args, 0)
		if err != nil {
			return err
		}
		return r.state.UpdateLayerDefaults(layer, model.LayerDefaults{Opacity: &opacity})

	case "position", "scale":
		vec, err := vec2Args(method, args)
		if err != nil {
			return err
		}
		if method == "position" {
			return r.state.UpdateLayerDefaults(layer, model.LayerDefaults{Position: &vec})
		}
		return r.state.UpdateLayerDefaults(layer, model.LayerDefaults{Scale: &vec})
	}
	return unsupported("method", method, model.VarLayer)
}

func (r *Router) windowProperty(window, property string, value model.Value) error {
	switch property {
	case "title":
		if value.Kind != model.KindString {
			return fmt.Errorf("%w: title must be a string, got %s", ErrBadRequest, value.Kind)
		}
		return r.state.UpdateWindowTitle(window, value.Str)
	}
	return unsupported("property", property, model.VarWindow)
}

func (r *Router) layerProperty(layer, property string, value model.Value) error {
	switch property {
	case "opacity":
		if value.Kind != model.KindNumber {
			return fmt.Errorf("%w: opacity must be a number, got %s", ErrBadRequest, value.Kind)
		}
		o := value.Num
		return r.state.UpdateLayerDefaults(layer, model.LayerDefaults{Opacity: &o})

	case "position", "scale":
		vec, ok := value.AsVec2()
		if !ok {
			return fmt.Errorf("%w: %s must be [x, y]", ErrBadRequest, property)
		}
		if property == "position" {
			return r.state.UpdateLayerDefaults(layer, model.LayerDefaults{Position: &vec})
		}
		return r.state.UpdateLayerDefaults(layer, model.LayerDefaults{Scale: &vec})

	case "source":
		switch value.Kind {
		case model.KindString:
			return r.state.SetLayerSource(layer, &value.Str)
		case model.KindNull, "":
			return r.state.SetLayerSource(layer, nil)
		}
		return fmt.Errorf("%w: source must be a variable name or null, got %s", ErrBadRequest, value.Kind)
	}
	return unsupported("property", property, model.VarLayer)
}

func unsupported(what, name string, typ model.VarType) error {
	return fmt.Errorf("%w: unsupported %s '%s' for type '%s'", ErrBadRequest, what, name, typ)
}
