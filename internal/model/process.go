package model

import (
	"strings"
	"time"
)

// Sigil prefixes every process name in the DSL.
const Sigil = "$"

// ProcessStatus represents the lifecycle state of a process or instance.
type ProcessStatus string

const (
	ProcessDefined ProcessStatus = "defined"
	ProcessRunning ProcessStatus = "running"
	ProcessStopped ProcessStatus = "stopped"
	ProcessError   ProcessStatus = "error"
)

// Valid reports whether s is a known status.
func (s ProcessStatus) Valid() bool {
	switch s {
	case ProcessDefined, ProcessRunning, ProcessStopped, ProcessError:
		return true
	}
	return false
}

// Process is a filter/effect definition. Name is stored without the sigil.
// Body is nil for builtins, whose parameters come from the process registry.
type Process struct {
	Name       string            `json:"name"`
	Parameters []string          `json:"parameters"`
	Body       *string           `json:"body,omitempty"`
	Status     ProcessStatus     `json:"status"`
	Instances  []ProcessInstance `json:"instances,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ProcessInstance is one invocation of a process with concrete arguments.
type ProcessInstance struct {
	ID        string           `json:"id"`
	Arguments map[string]Value `json:"arguments"`
	Status    ProcessStatus    `json:"status"`
	StartedAt time.Time        `json:"started_at"`
}

func NewProcess(name string, parameters []string, body *string) Process {
	if parameters == nil {
		parameters = []string{}
	}
	p := Process{
		Name:       strings.TrimPrefix(name, Sigil),
		Parameters: append([]string{}, parameters...),
		Status:     ProcessDefined,
		CreatedAt:  time.Now().UTC(),
	}
	if body != nil {
		b := *body
		p.Body = &b
	}
	return p
}

// DisplayName returns the name with its sigil.
func (p Process) DisplayName() string {
	return Sigil + p.Name
}

// IsBuiltin reports whether the process has no user body.
func (p Process) IsBuiltin() bool {
	return p.Body == nil
}

// HasParameter reports whether name is a declared parameter.
func (p Process) HasParameter(name string) bool {
	for _, param := range p.Parameters {
		if param == name {
			return true
		}
	}
	return false
}

// Instance returns the index of the instance with the given id.
func (p Process) Instance(id string) int {
	for i := range p.Instances {
		if p.Instances[i].ID == id {
			return i
		}
	}
	return -1
}

// RunningCount returns the number of instances still running.
func (p Process) RunningCount() int {
	n := 0
	for _, inst := range p.Instances {
		if inst.Status == ProcessRunning {
			n++
		}
	}
	return n
}

func (p Process) Clone() Process {
	out := p
	out.Parameters = append([]string{}, p.Parameters...)
	if p.Body != nil {
		b := *p.Body
		out.Body = &b
	}
	if p.Instances != nil {
		out.Instances = make([]ProcessInstance, len(p.Instances))
		for i, inst := range p.Instances {
			out.Instances[i] = inst.Clone()
		}
	}
	return out
}

func (i ProcessInstance) Clone() ProcessInstance {
	out := i
	if i.Arguments != nil {
		out.Arguments = make(map[string]Value, len(i.Arguments))
		for k, v := range i.Arguments {
			out.Arguments[k] = v.Clone()
		}
	}
	return out
}
