package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/model"
	"github.com/AaronLay10/Haeccstable/internal/registry"
	"github.com/google/uuid"
)

type nameData struct {
	Name string `json:"name"`
}

type defineFunctionData struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
	Body       *string  `json:"body"`
}

type callFunctionData struct {
	Name      string        `json:"name"`
	Arguments []model.Value `json:"arguments"`
}

// FunctionCall is the result of call_function: the stored body and the
// parameter bindings, unevaluated.
type FunctionCall struct {
	Name     string                 `json:"name"`
	Body     string                 `json:"body"`
	Bindings map[string]model.Value `json:"bindings"`
}

type defineProcessData struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
	Body       *string  `json:"body"`
}

type callProcessData struct {
	Name      string                 `json:"name"`
	Arguments map[string]model.Value `json:"arguments"`
}

// ProcessCall is the result of call_process.
type ProcessCall struct {
	Process    string              `json:"process"`
	InstanceID string              `json:"instance_id"`
	Status     model.ProcessStatus `json:"status"`
}

type stopProcessData struct {
	Name       string `json:"name"`
	InstanceID string `json:"instance_id"`
}

type getStateData struct {
	Verbose bool `json:"verbose"`
}

func (r *Router) handleDefineFunction(data json.RawMessage) (Response, error) {
	var d defineFunctionData
	if err := decode("define_function", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("define_function", "name")
	}
	if d.Body == nil {
		return Response{}, missing("define_function", "body")
	}
	if err := r.state.DefineFunction(model.NewFunction(d.Name, d.Parameters, *d.Body)); err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Function '%s' defined with %d parameters", d.Name, len(d.Parameters))}, nil
}

func (r *Router) handleCallFunction(data json.RawMessage) (Response, error) {
	var d callFunctionData
	if err := decode("call_function", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("call_function", "name")
	}
	f, ok := r.state.GetFunction(d.Name)
	if !ok {
		return Response{}, fmt.Errorf("Unknown function '%s'", d.Name)
	}
	if len(d.Arguments) != len(f.Parameters) {
		return Response{}, fmt.Errorf("%w: function '%s' expects %d arguments, got %d",
			ErrBadRequest, f.Name, len(f.Parameters), len(d.Arguments))
	}
	bindings := make(map[string]model.Value, len(f.Parameters))
	for i, p := range f.Parameters {
		bindings[p] = d.Arguments[i]
	}
	return Response{
		Message: fmt.Sprintf("Function '%s' called", f.Name),
		Result:  FunctionCall{Name: f.Name, Body: f.Body, Bindings: bindings},
	}, nil
}

func (r *Router) handleRemoveFunction(data json.RawMessage) (Response, error) {
	var d nameData
	if err := decode("remove_function", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("remove_function", "name")
	}
	if err := r.state.RemoveFunction(d.Name); err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Function '%s' removed", d.Name)}, nil
}

func (r *Router) handleDefineProcess(data json.RawMessage) (Response, error) {
	var d defineProcessData
	if err := decode("define_process", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("define_process", "name")
	}
	if !registry.ValidateProcessName(d.Name) {
		return Response{}, registry.SigilError(d.Name)
	}
	name := registry.StripPrefix(d.Name)

	params := d.Parameters
	body := d.Body
	if body == nil {
		if builtin, ok := registry.BuiltinParameters(name); ok {
			params = builtin
		} else {
			empty := ""
			body = &empty
		}
	}
	p := model.NewProcess(name, params, body)
	stopped, err := r.state.DefineProcess(p)
	if err != nil {
		return Response{}, err
	}
	for _, id := range stopped {
		r.registry.StopProcess(id)
	}
	return Response{Message: fmt.Sprintf("Process '%s' defined with %d parameters", p.DisplayName(), len(p.Parameters))}, nil
}

func (r *Router) handleCallProcess(data json.RawMessage) (Response, error) {
	var d callProcessData
	if err := decode("call_process", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("call_process", "name")
	}
	if !registry.ValidateProcessName(d.Name) {
		return Response{}, registry.SigilError(d.Name)
	}
	name := registry.StripPrefix(d.Name)

	p, ok := r.state.GetProcess(name)
	if !ok {
		params, builtin := registry.BuiltinParameters(name)
		if !builtin {
			return Response{}, fmt.Errorf("%w: '$%s'", registry.ErrUnknownProcess, name)
		}
		var err error
		if p, err = r.state.EnsureBuiltin(name, params); err != nil {
			return Response{}, err
		}
	}
	for key := range d.Arguments {
		if !p.HasParameter(key) {
			return Response{}, fmt.Errorf("%w: process '%s' has no parameter '%s'", ErrBadRequest, p.DisplayName(), key)
		}
	}

	inst := model.ProcessInstance{
		ID:        uuid.NewString(),
		Arguments: d.Arguments,
		Status:    model.ProcessRunning,
		StartedAt: time.Now().UTC(),
	}
	accepted := r.registry.ExecuteProcess(registry.ExecuteRequest{
		InstanceID: inst.ID,
		Process:    p.Name,
		Parameters: p.Parameters,
		Body:       p.Body,
		Arguments:  d.Arguments,
	})
	if !accepted {
		inst.Status = model.ProcessError
	}
	if err := r.state.StartProcessInstance(p.Name, inst); err != nil {
		return Response{}, err
	}
	if !accepted {
		return Response{}, fmt.Errorf("process '%s' was not accepted by the engine (instance %s)", p.DisplayName(), inst.ID)
	}
	return Response{
		Message: fmt.Sprintf("Process '%s' started", p.DisplayName()),
		Result:  ProcessCall{Process: p.DisplayName(), InstanceID: inst.ID, Status: inst.Status},
	}, nil
}

func (r *Router) handleStopProcess(data json.RawMessage) (Response, error) {
	var d stopProcessData
	if err := decode("stop_process", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("stop_process", "name")
	}
	stopped, err := r.state.StopProcessInstances(d.Name, d.InstanceID)
	if err != nil {
		return Response{}, err
	}
	for _, id := range stopped {
		r.registry.StopProcess(id)
	}
	return Response{
		Message: fmt.Sprintf("Stopped %d instances of '$%s'", len(stopped), registry.StripPrefix(d.Name)),
		Result:  stopped,
	}, nil
}

func (r *Router) handleRemoveProcess(data json.RawMessage) (Response, error) {
	var d nameData
	if err := decode("remove_process", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("remove_process", "name")
	}
	stopped, err := r.state.StopProcessInstances(d.Name, "")
	if err != nil {
		return Response{}, err
	}
	for _, id := range stopped {
		r.registry.StopProcess(id)
	}
	if err := r.state.RemoveProcess(d.Name); err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Process '$%s' removed", registry.StripPrefix(d.Name))}, nil
}

func (r *Router) handleListBuiltins(json.RawMessage) (Response, error) {
	names := registry.ListBuiltins()
	out := make([]registry.Builtin, 0, len(names))
	for _, name := range names {
		b, _ := registry.LookupBuiltin(name)
		out = append(out, b)
	}
	return Response{Result: out}, nil
}

func (r *Router) handleRemoveVariable(data json.RawMessage) (Response, error) {
	var d nameData
	if err := decode("remove_variable", data, &d); err != nil {
		return Response{}, err
	}
	if d.Name == "" {
		return Response{}, missing("remove_variable", "name")
	}
	if err := r.state.RemoveVariable(d.Name); err != nil {
		return Response{}, err
	}
	return Response{Message: fmt.Sprintf("Variable '%s' removed", d.Name)}, nil
}

func (r *Router) handleGetState(data json.RawMessage) (Response, error) {
	var d getStateData
	if err := decode("get_state", data, &d); err != nil {
		return Response{}, err
	}
	summary := r.state.StateSummary(d.Verbose)
	return Response{State: &summary}, nil
}

func (r *Router) handleResetState(json.RawMessage) (Response, error) {
	for _, id := range r.state.RunningInstances() {
		r.registry.StopProcess(id)
	}
	r.state.ResetAll()
	return Response{Message: "State reset"}, nil
}

func (r *Router) handlePing(json.RawMessage) (Response, error) {
	return Response{Type: "pong", Message: "Haeccstable is running"}, nil
}
